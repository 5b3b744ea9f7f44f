package realtime

import "testing"

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.Add(1)
	b := r.Add(1)
	r.Add(2)
	if a == b {
		t.Fatal("connection ids must be unique")
	}
	if got := r.Count(1); got != 2 {
		t.Errorf("Count(1) = %d, want 2", got)
	}

	if got := r.Remove(1, a); got != 1 {
		t.Errorf("Remove first tab = %d, want 1", got)
	}
	if got := r.Remove(1, a); got != 1 {
		t.Errorf("Remove twice = %d, want 1", got)
	}
	if got := r.Remove(1, b); got != 0 {
		t.Errorf("Remove last tab = %d, want 0", got)
	}
	if got := r.Remove(3, "nope"); got != 0 {
		t.Errorf("Remove unknown = %d", got)
	}
	if got := r.Count(2); got != 1 {
		t.Errorf("Count(2) = %d", got)
	}
}
