package state

// Layered is a base value with an optional override on top. Value returns the
// override when one is set and the base otherwise, so "no override" always
// defers to the base without callers checking for presence.
type Layered[T comparable] struct {
	base     T
	override T
	set      bool
}

// NewLayered returns a Layered holding only base.
func NewLayered[T comparable](base T) Layered[T] {
	return Layered[T]{base: base}
}

// With returns a copy of l with override applied.
func (l Layered[T]) With(override T) Layered[T] {
	l.override = override
	l.set = true
	return l
}

// Value returns the effective value.
func (l Layered[T]) Value() T {
	if l.set {
		return l.override
	}
	return l.base
}

// Base returns the underlying value regardless of any override.
func (l Layered[T]) Base() T {
	return l.base
}

// Override returns the override and whether one is set.
func (l Layered[T]) Override() (T, bool) {
	return l.override, l.set
}

// Overridden reports whether an override is set.
func (l Layered[T]) Overridden() bool {
	return l.set
}

// Differs reports whether the effective value differs from the base.
func (l Layered[T]) Differs() bool {
	return l.set && l.override != l.base
}
