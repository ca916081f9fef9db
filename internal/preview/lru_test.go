package preview

import "testing"

func key(frame int) Key {
	return Key{SeriesID: "ts_001", FrameID: frame, Bin: 8, Quality: 90}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(30)
	c.Put(key(1), make([]byte, 10))
	c.Put(key(2), make([]byte, 10))
	c.Put(key(3), make([]byte, 10))

	if _, ok := c.Get(key(1)); !ok {
		t.Fatal("expected key 1 before eviction")
	}
	c.Put(key(4), make([]byte, 10))

	if _, ok := c.Get(key(2)); ok {
		t.Fatal("expected key 2 to be evicted as least recently used")
	}
	for _, id := range []int{1, 3, 4} {
		if _, ok := c.Get(key(id)); !ok {
			t.Fatalf("expected key %d to remain", id)
		}
	}
	if c.Size() != 30 || c.Len() != 3 {
		t.Fatalf("size=%d len=%d, want 30 and 3", c.Size(), c.Len())
	}
}

func TestLRUReplaceAdjustsSize(t *testing.T) {
	c := NewLRU(100)
	c.Put(key(1), make([]byte, 40))
	c.Put(key(1), make([]byte, 25))
	if c.Size() != 25 || c.Len() != 1 {
		t.Fatalf("size=%d len=%d, want 25 and 1", c.Size(), c.Len())
	}
	data, _ := c.Get(key(1))
	if len(data) != 25 {
		t.Fatalf("expected replaced value, got %d bytes", len(data))
	}
}

func TestLRUEvictsSeveralForLargeEntry(t *testing.T) {
	c := NewLRU(30)
	c.Put(key(1), make([]byte, 10))
	c.Put(key(2), make([]byte, 10))
	c.Put(key(3), make([]byte, 10))
	c.Put(key(4), make([]byte, 25))
	if c.Len() != 1 {
		t.Fatalf("expected only the large entry, got %d entries", c.Len())
	}
	if _, ok := c.Get(key(4)); !ok {
		t.Fatal("expected large entry to be cached")
	}
}

func TestLRUDropsOversizedEntry(t *testing.T) {
	c := NewLRU(10)
	c.Put(key(1), make([]byte, 5))
	c.Put(key(2), make([]byte, 11))
	if _, ok := c.Get(key(2)); ok {
		t.Fatal("entry larger than the budget must not be retained")
	}
	if _, ok := c.Get(key(1)); !ok {
		t.Fatal("existing entry should survive an oversized put")
	}
	if c.Size() > c.Budget() {
		t.Fatalf("size %d exceeds budget %d", c.Size(), c.Budget())
	}
}

func TestLRUKeyIncludesAllFields(t *testing.T) {
	c := NewLRU(100)
	c.Put(Key{SeriesID: "a", FrameID: 1, Bin: 8, Quality: 90}, []byte("x"))
	for _, k := range []Key{
		{SeriesID: "b", FrameID: 1, Bin: 8, Quality: 90},
		{SeriesID: "a", FrameID: 2, Bin: 8, Quality: 90},
		{SeriesID: "a", FrameID: 1, Bin: 4, Quality: 90},
		{SeriesID: "a", FrameID: 1, Bin: 8, Quality: 80},
	} {
		if _, ok := c.Get(k); ok {
			t.Fatalf("unexpected hit for %+v", k)
		}
	}
}

func TestLRUPurge(t *testing.T) {
	c := NewLRU(100)
	c.Put(key(1), []byte("abc"))
	c.Purge()
	if c.Len() != 0 || c.Size() != 0 {
		t.Fatalf("expected empty cache, len=%d size=%d", c.Len(), c.Size())
	}
	if _, ok := c.Get(key(1)); ok {
		t.Fatal("expected miss after purge")
	}
}
