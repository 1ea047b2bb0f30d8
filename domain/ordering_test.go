package domain

import (
	"math"
	"testing"
)

func TestSanitizePositionsLastWins(t *testing.T) {
	changes := []PositionChange{
		{ID: "t1", Status: StatusReview, Order: 1024},
		{ID: "t2", Status: StatusTodo, Order: 512},
		{ID: "t1", Status: StatusDone, Order: 2048},
	}
	out := SanitizePositions(changes)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(out))
	}
	if out[0].ID != "t1" || out[0].Status != StatusDone || out[0].Order != 2048 {
		t.Fatalf("last occurrence must win: %+v", out[0])
	}
	if out[1].ID != "t2" {
		t.Fatalf("first-seen order must be kept: %+v", out)
	}
}

func TestSanitizePositionsDropsInvalid(t *testing.T) {
	changes := []PositionChange{
		{ID: "", Status: StatusTodo, Order: 1},
		{ID: "t1", Status: "", Order: 1},
		{ID: "t2", Status: StatusTodo, Order: math.NaN()},
		{ID: "t3", Status: StatusTodo, Order: math.Inf(1)},
		{ID: "t4", Status: StatusTodo, Order: 1024},
	}
	out := SanitizePositions(changes)
	if len(out) != 1 || out[0].ID != "t4" {
		t.Fatalf("only the valid entry should survive: %+v", out)
	}
}

func TestSanitizePositionsEmptyResult(t *testing.T) {
	if out := SanitizePositions([]PositionChange{{ID: "", Order: 0}}); len(out) != 0 {
		t.Fatalf("expected empty result, got %+v", out)
	}
	if out := SanitizePositions(nil); len(out) != 0 {
		t.Fatalf("nil input must yield empty result")
	}
}

func TestSequenceWritesAssignsIndexOrder(t *testing.T) {
	writes := SequenceWrites([]string{"b", "a", "c"})
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	for i, id := range []string{"b", "a", "c"} {
		w := writes[i]
		if w.ID != id {
			t.Fatalf("write %d targets %s, want %s", i, w.ID, id)
		}
		if w.Patch.Order == nil || *w.Patch.Order != float64(i) {
			t.Fatalf("write %d order = %v, want %d", i, w.Patch.Order, i)
		}
		if w.Patch.Status != nil {
			t.Fatalf("reorder must not touch status")
		}
	}
}
