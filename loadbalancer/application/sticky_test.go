package application

import "testing"

func TestStickyTable_AssignAndLookup(t *testing.T) {
	tb := NewStickyTable()

	tb.Assign("s1", "A")
	id, ok := tb.Lookup("s1")
	if !ok || id != "A" {
		t.Fatalf("expected s1 -> A, got %q (ok=%v)", id, ok)
	}

	// reatribuição sobrescreve
	tb.Assign("s1", "B")
	if id, _ := tb.Lookup("s1"); id != "B" {
		t.Fatalf("expected s1 -> B after reassign, got %q", id)
	}
}

func TestStickyTable_LookupUnknownSession(t *testing.T) {
	tb := NewStickyTable()
	if _, ok := tb.Lookup("ghost"); ok {
		t.Fatalf("expected no mapping for unknown session")
	}
}

func TestStickyTable_Evict(t *testing.T) {
	tb := NewStickyTable()
	tb.Assign("s1", "A")

	if !tb.Evict("s1") {
		t.Fatalf("expected evict to report an existing mapping")
	}
	if _, ok := tb.Lookup("s1"); ok {
		t.Fatalf("expected mapping removed after evict")
	}
	if tb.Evict("s1") {
		t.Fatalf("expected evict of missing session to be a no-op")
	}
	if tb.Len() != 0 {
		t.Fatalf("expected empty table, got %d", tb.Len())
	}
}
