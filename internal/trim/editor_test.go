package trim

import "testing"

func TestEditor_Zero(t *testing.T) {
	e := NewEditor([]byte{1, 2, 3, 4, 5})
	e.Zero(1, 2)
	want := []byte{1, 0, 0, 4, 5}
	for i, b := range want {
		if e.data[i] != b {
			t.Errorf("byte %d = %d, want %d", i, e.data[i], b)
		}
	}
	if e.Cleared != 2 {
		t.Errorf("Cleared = %d, want 2", e.Cleared)
	}
}

func TestEditor_ZeroClamps(t *testing.T) {
	e := NewEditor([]byte{1, 2, 3})
	e.Zero(2, 10)
	if e.data[2] != 0 || e.Cleared != 1 {
		t.Errorf("data=%v Cleared=%d, want clamp to 1 byte", e.data, e.Cleared)
	}
	e.Zero(100, 5)
	if e.Cleared != 1 {
		t.Errorf("out-of-range Zero cleared %d", e.Cleared-1)
	}
}

func TestEditor_CountDoesNotWrite(t *testing.T) {
	e := NewEditor([]byte{1, 2, 3})
	e.Count(0, 3)
	if e.data[0] != 1 || e.Counted != 3 || e.Cleared != 0 {
		t.Errorf("Count mutated or miscounted: data=%v Counted=%d Cleared=%d",
			e.data, e.Counted, e.Cleared)
	}
}

// Both capabilities satisfy RangeFn, so a walker can be handed either.
func TestEditor_Capabilities(t *testing.T) {
	e := NewEditor(make([]byte, 8))
	for _, fn := range []RangeFn{e.Zero, e.Count} {
		fn(0, 4)
	}
	if e.Cleared != 4 || e.Counted != 4 {
		t.Errorf("Cleared=%d Counted=%d, want 4/4", e.Cleared, e.Counted)
	}
}
