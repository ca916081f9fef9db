package tilt

import "testing"

func TestSeriesID(t *testing.T) {
	cases := map[string]string{
		"/data/TS_01.mdoc":         "TS_01",
		"/data/TS_01.mrc.mdoc":     "TS_01.mrc",
		"relative/Position_3.mdoc": "Position_3",
		"noext":                    "noext",
	}
	for path, want := range cases {
		if got := SeriesID(path); got != want {
			t.Fatalf("SeriesID(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRangeOf(t *testing.T) {
	if got := RangeOf(nil); got != (AngleRange{}) {
		t.Fatalf("expected zero range, got %+v", got)
	}
	if got := RangeOf([]float64{0, 3, -60, 60}); got != (AngleRange{Min: -60, Max: 60}) {
		t.Fatalf("unexpected range %+v", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := &Series{ID: "TS", Frames: []Frame{{ID: 1, Selected: true}}}
	c := s.Clone()
	c.Frames[0].Selected = false
	if !s.Frames[0].Selected {
		t.Fatal("clone shares frame storage")
	}
	if _, ok := s.Frame(1); !ok {
		t.Fatal("expected frame 1")
	}
	if _, ok := s.Frame(2); ok {
		t.Fatal("unexpected frame 2")
	}
}
