package domain

import (
	"reflect"
	"testing"
)

func TestMentions(t *testing.T) {
	names := Mentions("ping @Ali and @Veli, then @Ali again")
	if !reflect.DeepEqual(names, []string{"Ali", "Veli"}) {
		t.Fatalf("unexpected mentions: %v", names)
	}
	if Mentions("no mentions here") != nil {
		t.Fatalf("expected nil for text without mentions")
	}
}

func TestDiffTaskCompletedTransition(t *testing.T) {
	prev := Task{Status: StatusReview}
	next := Task{Status: StatusDone}
	d := DiffTask(prev, next)
	if !d.CompletedTransition {
		t.Fatalf("REVIEW -> DONE must register as completion")
	}
	if d.EnteredColumn != StatusDone {
		t.Fatalf("entered column = %s, want DONE", d.EnteredColumn)
	}

	if DiffTask(Task{Status: StatusDone}, Task{Status: StatusDone}).CompletedTransition {
		t.Fatalf("DONE -> DONE must not fire again")
	}
}

func TestDiffTaskDescriptionMentions(t *testing.T) {
	prev := Task{Description: "cc @Ali"}
	next := Task{Description: "cc @Ali and now @Veli"}
	d := DiffTask(prev, next)
	if !reflect.DeepEqual(d.DescriptionMentions, []string{"Veli"}) {
		t.Fatalf("only new mentions should fire: %v", d.DescriptionMentions)
	}
}

func TestDiffTaskAddedMembers(t *testing.T) {
	prev := Task{Members: []string{"u1"}}
	next := Task{Members: []string{"u1", "u2", "u3"}}
	d := DiffTask(prev, next)
	if !reflect.DeepEqual(d.AddedMembers, []string{"u2", "u3"}) {
		t.Fatalf("unexpected added members: %v", d.AddedMembers)
	}
}

func TestDiffTaskChecklistCompletion(t *testing.T) {
	prev := Task{ChecklistTotal: 3, ChecklistCompleted: 2}
	next := Task{ChecklistTotal: 3, ChecklistCompleted: 3}
	if !DiffTask(prev, next).ChecklistCompleted {
		t.Fatalf("reaching the total must fire")
	}
	if DiffTask(next, next).ChecklistCompleted {
		t.Fatalf("an already complete checklist must not fire again")
	}
	if DiffTask(Task{}, Task{}).ChecklistCompleted {
		t.Fatalf("empty checklist must never fire")
	}
}

func TestDiffTaskAttachments(t *testing.T) {
	if !DiffTask(Task{AttachmentCount: 1}, Task{AttachmentCount: 2}).AttachmentsAdded {
		t.Fatalf("count increase must fire")
	}
	if DiffTask(Task{AttachmentCount: 2}, Task{AttachmentCount: 1}).AttachmentsAdded {
		t.Fatalf("count decrease must not fire")
	}
}

func TestDiffTaskCommentMentions(t *testing.T) {
	prev := Task{Comments: []Comment{{ID: "c1", AuthorID: "u1", Body: "hi @Ali"}}}
	next := Task{Comments: []Comment{
		{ID: "c1", AuthorID: "u1", Body: "hi @Ali"},
		{ID: "c2", AuthorID: "u2", Body: "ping @Veli"},
	}}
	d := DiffTask(prev, next)
	want := []CommentMention{{AuthorID: "u2", Name: "Veli"}}
	if !reflect.DeepEqual(d.CommentMentions, want) {
		t.Fatalf("only mentions of new comments should fire: %+v", d.CommentMentions)
	}
}

func TestWatcherRecipientsDedupesAndExcludesActor(t *testing.T) {
	task := Task{
		AssigneeID: "u1",
		Watchers:   []string{"u1", "u2", "u3", "u2", "actor"},
	}
	got := WatcherRecipients(task, "actor")
	if !reflect.DeepEqual(got, []string{"u1", "u2", "u3"}) {
		t.Fatalf("unexpected recipients: %v", got)
	}
}

func TestDiffEmpty(t *testing.T) {
	if !DiffTask(Task{Status: StatusTodo}, Task{Status: StatusTodo}).Empty() {
		t.Fatalf("identical tasks must produce an empty diff")
	}
}
