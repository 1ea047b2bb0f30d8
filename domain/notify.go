package domain

import "regexp"

// Notification is one "tell user X about event Y on task Z" command for
// the dispatcher.
type Notification struct {
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Type          string `json:"type"`
	ReferenceID   string `json:"referenceId"`
	ReferenceType string `json:"referenceType"`
}

// Notification types emitted by the board.
const (
	NotifyAssigned           = "task_assigned"
	NotifyMemberAdded        = "task_member_added"
	NotifyMentioned          = "task_mentioned"
	NotifyCompleted          = "task_completed"
	NotifyAttachmentAdded    = "task_attachment_added"
	NotifyChecklistCompleted = "task_checklist_completed"
	NotifyCommentMention     = "task_comment_mention"
	NotifyColumnActivity     = "column_task_moved"
)

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)

// Mentions extracts the unique @Name tokens of a text, in order of first
// appearance.
func Mentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// CommentMention is an @Name found in a newly added comment, paired with
// the comment's author so self-mentions can be skipped.
type CommentMention struct {
	AuthorID string
	Name     string
}

// TaskDiff captures the state transitions of one committed update that
// trigger derived side effects.
type TaskDiff struct {
	AssigneeChanged     bool
	AddedMembers        []string
	DescriptionMentions []string
	CompletedTransition bool
	AttachmentsAdded    bool
	ChecklistCompleted  bool
	CommentMentions     []CommentMention
	EnteredColumn       Status
}

// DiffTask compares the pre- and post-update state of a task and reports
// which notification rules fire.
func DiffTask(prev, next Task) TaskDiff {
	d := TaskDiff{}
	if next.AssigneeID != prev.AssigneeID && next.AssigneeID != "" {
		d.AssigneeChanged = true
	}
	d.AddedMembers = addedStrings(prev.Members, next.Members)
	d.DescriptionMentions = addedStrings(Mentions(prev.Description), Mentions(next.Description))
	if next.Status == StatusDone && prev.Status != StatusDone {
		d.CompletedTransition = true
	}
	if next.Status != prev.Status && next.Status != "" {
		d.EnteredColumn = next.Status
	}
	if next.AttachmentCount > prev.AttachmentCount {
		d.AttachmentsAdded = true
	}
	if next.ChecklistTotal > 0 &&
		next.ChecklistCompleted == next.ChecklistTotal &&
		prev.ChecklistCompleted != prev.ChecklistTotal {
		d.ChecklistCompleted = true
	}
	d.CommentMentions = commentMentions(prev.Comments, next.Comments)
	return d
}

// Empty reports whether no rule fired.
func (d TaskDiff) Empty() bool {
	return !d.AssigneeChanged && len(d.AddedMembers) == 0 &&
		len(d.DescriptionMentions) == 0 && !d.CompletedTransition &&
		!d.AttachmentsAdded && !d.ChecklistCompleted &&
		len(d.CommentMentions) == 0 && d.EnteredColumn == ""
}

// WatcherRecipients is the deduped assignee+watchers set of a task with
// the acting user excluded. Used by the completed, attachment and
// checklist rules.
func WatcherRecipients(t Task, actorID string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(t.Watchers)+1)
	add := func(id string) {
		if id == "" || id == actorID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(t.AssigneeID)
	for _, w := range t.Watchers {
		add(w)
	}
	return out
}

func addedStrings(prev, next []string) []string {
	if len(next) == 0 {
		return nil
	}
	old := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		old[s] = struct{}{}
	}
	var added []string
	seen := make(map[string]struct{}, len(next))
	for _, s := range next {
		if _, ok := old[s]; ok {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		added = append(added, s)
	}
	return added
}

func commentMentions(prev, next []Comment) []CommentMention {
	if len(next) <= len(prev) {
		return nil
	}
	old := make(map[string]struct{}, len(prev))
	for _, c := range prev {
		old[c.ID] = struct{}{}
	}
	var out []CommentMention
	for _, c := range next {
		if _, ok := old[c.ID]; ok {
			continue
		}
		for _, name := range Mentions(c.Body) {
			out = append(out, CommentMention{AuthorID: c.AuthorID, Name: name})
		}
	}
	return out
}
