package domain

import "time"

// Status identifies a board column. Columns are swimlanes; BRANDS only
// exists on the internal agency board.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
	StatusArchived   Status = "ARCHIVED"
	StatusBrands     Status = "BRANDS"
)

// Role distinguishes internal staff users from customer-portal users.
type Role string

const (
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

// MaySetStatus reports whether a caller with this role is allowed to move
// a task into the given column. Portal users can never mark work DONE;
// their attempt is dropped from the patch rather than rejected.
func (r Role) MaySetStatus(s Status) bool {
	return !(r == RoleClient && s == StatusDone)
}

// Principal is the authenticated identity attached to every request and
// socket session.
type Principal struct {
	UserID     string
	TenantID   string
	Role       Role
	CustomerID string
}

type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Comment struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
	Body     string `json:"body"`
}

type Activity struct {
	At   int64  `json:"at"`
	Text string `json:"text"`
}

// Task is a single board row. Rows sharing a non-empty MirrorGroupID are
// one logical task shown on two boards; they agree on every field except
// Status, Order and MirrorGroupID.
type Task struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	ProjectID     string     `json:"projectId,omitempty"`
	AssigneeID    string     `json:"assigneeId,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        Status     `json:"status"`
	Order         float64    `json:"order"`
	MirrorGroupID string     `json:"mirrorGroupId,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`

	Labels             []string        `json:"labels,omitempty"`
	Checklist          []ChecklistItem `json:"checklist,omitempty"`
	ChecklistTotal     int             `json:"checklistTotal"`
	ChecklistCompleted int             `json:"checklistCompleted"`
	Members            []string        `json:"members,omitempty"`
	Watchers           []string        `json:"watchers,omitempty"`
	Attachments        []Attachment    `json:"attachments,omitempty"`
	AttachmentCount    int             `json:"attachmentCount"`
	Comments           []Comment       `json:"comments,omitempty"`
	Activities         []Activity      `json:"activities,omitempty"`
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	ProjectID     *string    `json:"projectId,omitempty"`
	AssigneeID    *string    `json:"assigneeId,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	Order         *float64   `json:"order,omitempty"`
	MirrorGroupID *string    `json:"mirrorGroupId,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`

	Labels             *[]string        `json:"labels,omitempty"`
	Checklist          *[]ChecklistItem `json:"checklist,omitempty"`
	ChecklistTotal     *int             `json:"checklistTotal,omitempty"`
	ChecklistCompleted *int             `json:"checklistCompleted,omitempty"`
	Members            *[]string        `json:"members,omitempty"`
	Watchers           *[]string        `json:"watchers,omitempty"`
	Attachments        *[]Attachment    `json:"attachments,omitempty"`
	AttachmentCount    *int             `json:"attachmentCount,omitempty"`
	Comments           *[]Comment       `json:"comments,omitempty"`
	Activities         *[]Activity      `json:"activities,omitempty"`
}

// Apply merges the patch into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.MirrorGroupID != nil {
		t.MirrorGroupID = *p.MirrorGroupID
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.Labels != nil {
		t.Labels = *p.Labels
	}
	if p.Checklist != nil {
		t.Checklist = *p.Checklist
	}
	if p.ChecklistTotal != nil {
		t.ChecklistTotal = *p.ChecklistTotal
	}
	if p.ChecklistCompleted != nil {
		t.ChecklistCompleted = *p.ChecklistCompleted
	}
	if p.Members != nil {
		t.Members = *p.Members
	}
	if p.Watchers != nil {
		t.Watchers = *p.Watchers
	}
	if p.Attachments != nil {
		t.Attachments = *p.Attachments
	}
	if p.AttachmentCount != nil {
		t.AttachmentCount = *p.AttachmentCount
	}
	if p.Comments != nil {
		t.Comments = *p.Comments
	}
	if p.Activities != nil {
		t.Activities = *p.Activities
	}
}

// Project groups tasks for one customer engagement. Creating a project
// with a customer spawns the mirrored task pair; deleting one archives
// its tasks.
type Project struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId,omitempty"`
	Name       string `json:"name"`
}

// ColumnWatcher subscribes a user to a board column, optionally scoped to
// a project. Unique per tuple.
type ColumnWatcher struct {
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	ColumnID  Status `json:"columnId"`
	ProjectID string `json:"projectId,omitempty"`
}

// User is the slice of the tenant directory the board needs: mention
// resolution and socket handshake existence checks.
type User struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	CustomerID string `json:"customerId,omitempty"`
	Active     bool   `json:"active"`
}
