package domain

import "testing"

func strPtr(s string) *string { return &s }

func statusPtr(s Status) *Status { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestMirrorSyncStripsPositionalFields(t *testing.T) {
	order := 2048.0
	patch := TaskPatch{
		Title:         strPtr("renamed"),
		Description:   strPtr("details"),
		Status:        statusPtr(StatusDone),
		Order:         &order,
		MirrorGroupID: strPtr("mg1"),
	}
	sync := patch.MirrorSync()
	if sync.Status != nil || sync.Order != nil || sync.MirrorGroupID != nil {
		t.Fatalf("positional fields must not propagate: %+v", sync)
	}
	if sync.Title == nil || *sync.Title != "renamed" {
		t.Fatalf("title should propagate")
	}
	if sync.Description == nil || *sync.Description != "details" {
		t.Fatalf("description should propagate")
	}
}

func TestMirrorSyncOfPositionalOnlyPatchIsZero(t *testing.T) {
	patch := TaskPatch{Status: statusPtr(StatusReview), Order: floatPtr(512)}
	if !patch.MirrorSync().IsZero() {
		t.Fatalf("status/order-only patch must yield empty sync payload")
	}
}

func TestCollapseMirrorsPrefersBrands(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Status: StatusTodo, Title: "a much longer title", MirrorGroupID: "mg1"},
		{ID: "t2", Status: StatusBrands, Title: "short", MirrorGroupID: "mg1"},
	}
	out := CollapseMirrors(tasks)
	if len(out) != 1 {
		t.Fatalf("expected one row per group, got %d", len(out))
	}
	if out[0].ID != "t2" {
		t.Fatalf("BRANDS row must represent the group, got %s", out[0].ID)
	}
}

func TestCollapseMirrorsLongestTitleFallback(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Status: StatusTodo, Title: "short", MirrorGroupID: "mg1"},
		{ID: "t2", Status: StatusReview, Title: "a longer title wins", MirrorGroupID: "mg1"},
	}
	out := CollapseMirrors(tasks)
	if len(out) != 1 || out[0].ID != "t2" {
		t.Fatalf("expected longest title representative, got %+v", out)
	}
}

func TestCollapseMirrorsPassThrough(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Status: StatusTodo},
		{ID: "t2", Status: StatusReview, MirrorGroupID: "mg1"},
		{ID: "t3", Status: StatusDone},
	}
	out := CollapseMirrors(tasks)
	if len(out) != 3 {
		t.Fatalf("ungrouped and singleton rows must pass through, got %d", len(out))
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if out[i].ID != id {
			t.Fatalf("input order must be kept, got %+v", out)
		}
	}
}

func TestCollapseMirrorsDeterministicOnTies(t *testing.T) {
	a := []Task{
		{ID: "t1", Status: StatusTodo, Title: "same", MirrorGroupID: "mg1"},
		{ID: "t2", Status: StatusTodo, Title: "same", MirrorGroupID: "mg1"},
	}
	b := []Task{a[1], a[0]}
	ra, rb := CollapseMirrors(a), CollapseMirrors(b)
	if ra[0].ID != rb[0].ID {
		t.Fatalf("tie-break must not depend on input order: %s vs %s", ra[0].ID, rb[0].ID)
	}
}
