package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultProjectName is the project auto-created for portal users that
// file a task without one.
const DefaultProjectName = "Genel"

// TaskFilter narrows ListTasks within a tenant.
type TaskFilter struct {
	IDs           []string
	ProjectIDs    []string
	MirrorGroupID string
}

// TaskWrite patches a single row as part of a batch.
type TaskWrite struct {
	ID    string
	Patch TaskPatch
}

// BatchOp is one operation of an atomic multi-row batch. Exactly one
// field is set.
type BatchOp struct {
	Insert *Task
	Update *TaskWrite
}

// Store is the transactional persistence boundary. ApplyBatch must apply
// all operations or none; every operation of a batch addresses the same
// tenant.
type Store interface {
	ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]Task, error)
	GetTask(ctx context.Context, tenantID, taskID string) (*Task, error)
	InsertTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, tenantID, taskID string) error
	ApplyBatch(ctx context.Context, tenantID string, ops []BatchOp) error

	GetProject(ctx context.Context, tenantID, projectID string) (*Project, error)
	InsertProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, tenantID, projectID string) error
	ListProjectsByCustomer(ctx context.Context, tenantID, customerID string) ([]Project, error)
	FindProjectByName(ctx context.Context, tenantID, customerID, name string) (*Project, error)

	UserExists(ctx context.Context, tenantID, userID string) (bool, error)
	ActiveUsersNamed(ctx context.Context, tenantID string, names []string) ([]User, error)

	ToggleColumnWatcher(ctx context.Context, w ColumnWatcher) (bool, error)
	ListColumnWatchers(ctx context.Context, tenantID string, columnID Status, projectID string) ([]ColumnWatcher, error)
}

// Notifier consumes notification commands. Called only after the primary
// batch has committed; errors are logged, never surfaced to the caller.
type Notifier interface {
	Create(ctx context.Context, tenantID string, n Notification) error
}

// SMSSender is the optional SMS side channel.
type SMSSender interface {
	TrySendEvent(ctx context.Context, tenantID, event string, payload map[string]string) error
}

// Board orchestrates task mutations: ordering and mirror consistency
// inside one storage batch, then realtime broadcast and notification
// dispatch.
type Board struct {
	store    Store
	cast     Broadcaster
	notifier Notifier
	sms      SMSSender
	log      *log.Logger
}

func NewBoard(store Store, cast Broadcaster, notifier Notifier, sms SMSSender, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board{store: store, cast: cast, notifier: notifier, sms: sms, log: logger}
}

// List returns the caller's board view. Staff see the whole tenant board
// with each mirror group collapsed to one row; portal users see the raw
// rows of their own customer's projects.
func (b *Board) List(ctx context.Context, p Principal, projectID string) ([]Task, error) {
	if p.Role == RoleClient {
		projects, err := b.store.ListProjectsByCustomer(ctx, p.TenantID, p.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("list customer projects: %w", err)
		}
		ids := make([]string, 0, len(projects))
		for _, pr := range projects {
			if projectID != "" && pr.ID != projectID {
				continue
			}
			ids = append(ids, pr.ID)
		}
		if projectID != "" && len(ids) == 0 {
			return nil, ErrNotFound
		}
		if len(ids) == 0 {
			return []Task{}, nil
		}
		return b.store.ListTasks(ctx, p.TenantID, TaskFilter{ProjectIDs: ids})
	}

	f := TaskFilter{}
	if projectID != "" {
		f.ProjectIDs = []string{projectID}
	}
	tasks, err := b.store.ListTasks(ctx, p.TenantID, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return CollapseMirrors(tasks), nil
}

// Create inserts a new task. A portal caller without a project gets the
// customer's default project resolved or created, and the row is forced
// onto the agency BRANDS column.
func (b *Board) Create(ctx context.Context, p Principal, t Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.TenantID = p.TenantID

	if p.Role == RoleClient {
		if t.ProjectID == "" {
			proj, err := b.defaultProject(ctx, p)
			if err != nil {
				return nil, err
			}
			t.ProjectID = proj.ID
		}
		t.Status = StatusBrands
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !p.Role.MaySetStatus(t.Status) {
		t.Status = StatusTodo
	}
	if t.Order == 0 {
		t.Order = OrderStep
	}
	t.ChecklistTotal = len(t.Checklist)
	t.ChecklistCompleted = countDone(t.Checklist)
	t.AttachmentCount = len(t.Attachments)

	if err := b.store.InsertTask(ctx, t); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	b.emitTask(ctx, p.TenantID, EventTaskCreated, t)
	if t.AssigneeID != "" && t.AssigneeID != p.UserID {
		b.notify(ctx, p.TenantID, Notification{
			UserID:        t.AssigneeID,
			Title:         "Task assigned",
			Message:       t.Title,
			Type:          NotifyAssigned,
			ReferenceID:   t.ID,
			ReferenceType: "task",
		})
	}
	return &t, nil
}

// Update applies a partial update. When the target belongs to a mirror
// group and the patch touches synchronized fields, every row of the
// group receives the sync payload and only the target receives the full
// patch, all in one atomic batch. Side effects run after the commit.
func (b *Board) Update(ctx context.Context, p Principal, taskID string, patch TaskPatch, notifySMS bool) (*Task, error) {
	prev, err := b.store.GetTask(ctx, p.TenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if prev == nil {
		return nil, ErrNotFound
	}

	if patch.Status != nil && !p.Role.MaySetStatus(*patch.Status) {
		patch.Status = nil
	}
	patch.normalizeCounters()
	if patch.IsZero() {
		return prev, nil
	}

	ops := []BatchOp{{Update: &TaskWrite{ID: prev.ID, Patch: patch}}}
	if sync := patch.MirrorSync(); prev.MirrorGroupID != "" && !sync.IsZero() {
		group, err := b.store.ListTasks(ctx, p.TenantID, TaskFilter{MirrorGroupID: prev.MirrorGroupID})
		if err != nil {
			return nil, fmt.Errorf("load mirror group: %w", err)
		}
		for _, sibling := range group {
			if sibling.ID == prev.ID {
				continue
			}
			ops = append(ops, BatchOp{Update: &TaskWrite{ID: sibling.ID, Patch: sync}})
		}
	}
	if err := b.store.ApplyBatch(ctx, p.TenantID, ops); err != nil {
		return nil, fmt.Errorf("apply update: %w", err)
	}

	next, err := b.store.GetTask(ctx, p.TenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}
	if next == nil {
		return nil, ErrNotFound
	}

	b.emitTask(ctx, p.TenantID, EventTaskUpdated, *next)
	b.dispatchSideEffects(ctx, p, *prev, *next, notifySMS)
	return next, nil
}

// Delete removes a single row.
func (b *Board) Delete(ctx context.Context, p Principal, taskID string) error {
	t, err := b.store.GetTask(ctx, p.TenantID, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if t == nil {
		return ErrNotFound
	}
	if err := b.store.DeleteTask(ctx, p.TenantID, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	payload := map[string]string{"id": taskID}
	b.cast.Broadcast(ctx, StaffRoom(p.TenantID), Envelope{Event: EventTaskDeleted, Data: payload})
	if customerID := b.customerForProject(ctx, p.TenantID, t.ProjectID); customerID != "" {
		b.cast.Broadcast(ctx, ClientRoom(p.TenantID, customerID), Envelope{Event: EventTaskDeleted, Data: payload})
	}
	return nil
}

// Reorder assigns order = index for the given id sequence in one batch
// and broadcasts the full ordered list.
func (b *Board) Reorder(ctx context.Context, p Principal, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	writes := SequenceWrites(taskIDs)
	ops := make([]BatchOp, 0, len(writes))
	for i := range writes {
		ops = append(ops, BatchOp{Update: &writes[i]})
	}
	if err := b.store.ApplyBatch(ctx, p.TenantID, ops); err != nil {
		return fmt.Errorf("reorder: %w", err)
	}

	b.cast.Broadcast(ctx, StaffRoom(p.TenantID), Envelope{Event: EventTaskReordered, Data: map[string]any{"taskIds": taskIDs}})
	tasks, err := b.store.ListTasks(ctx, p.TenantID, TaskFilter{IDs: taskIDs})
	if err != nil {
		b.log.WithError(err).Warn("reorder: client fan-out skipped")
		return nil
	}
	for customerID, subset := range b.groupByCustomer(ctx, p.TenantID, tasks) {
		ids := make([]string, 0, len(subset))
		for _, id := range taskIDs {
			for _, t := range subset {
				if t.ID == id {
					ids = append(ids, id)
					break
				}
			}
		}
		b.cast.Broadcast(ctx, ClientRoom(p.TenantID, customerID), Envelope{Event: EventTaskReordered, Data: map[string]any{"taskIds": ids}})
	}
	return nil
}

// ApplyPositions applies a sanitized drag batch atomically. An empty
// surviving set is a zero-effect call: nothing written, nothing
// broadcast. Returns the reloaded rows.
func (b *Board) ApplyPositions(ctx context.Context, p Principal, changes []PositionChange) ([]Task, error) {
	sane := SanitizePositions(changes)
	if len(sane) == 0 {
		return nil, nil
	}
	ops := make([]BatchOp, 0, len(sane))
	ids := make([]string, 0, len(sane))
	for _, c := range sane {
		status, order := c.Status, c.Order
		ops = append(ops, BatchOp{Update: &TaskWrite{ID: c.ID, Patch: TaskPatch{Status: &status, Order: &order}}})
		ids = append(ids, c.ID)
	}
	if err := b.store.ApplyBatch(ctx, p.TenantID, ops); err != nil {
		return nil, fmt.Errorf("apply positions: %w", err)
	}
	tasks, err := b.store.ListTasks(ctx, p.TenantID, TaskFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("reload positions: %w", err)
	}
	b.emitTasks(ctx, p.TenantID, EventTaskBulkUpdated, tasks)
	return tasks, nil
}

// CreateProject inserts a project; with a customer attached it also
// creates the linked task pair: an agency-board copy on BRANDS and a
// project-board copy on TODO sharing a fresh mirror group, committed as
// one batch.
func (b *Board) CreateProject(ctx context.Context, p Principal, proj Project) (*Project, error) {
	if proj.ID == "" {
		proj.ID = uuid.NewString()
	}
	proj.TenantID = p.TenantID
	if err := b.store.InsertProject(ctx, proj); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	if proj.CustomerID == "" {
		return &proj, nil
	}

	groupID := uuid.NewString()
	pair := []Task{
		b.mirrorSeed(proj, groupID, StatusBrands),
		b.mirrorSeed(proj, groupID, StatusTodo),
	}
	ops := []BatchOp{{Insert: &pair[0]}, {Insert: &pair[1]}}
	if err := b.store.ApplyBatch(ctx, p.TenantID, ops); err != nil {
		return nil, fmt.Errorf("insert mirror pair: %w", err)
	}
	for _, t := range pair {
		b.emitTask(ctx, p.TenantID, EventTaskCreated, t)
	}
	return &proj, nil
}

func (b *Board) mirrorSeed(proj Project, groupID string, status Status) Task {
	return Task{
		ID:            uuid.NewString(),
		TenantID:      proj.TenantID,
		ProjectID:     proj.ID,
		Title:         proj.Name,
		Status:        status,
		Order:         OrderStep,
		MirrorGroupID: groupID,
	}
}

// DeleteProject bulk-archives the project's tasks (status ARCHIVED,
// project detached) in one batch, broadcasts the archive as a bulk
// update, then removes the project row.
func (b *Board) DeleteProject(ctx context.Context, p Principal, projectID string) error {
	proj, err := b.store.GetProject(ctx, p.TenantID, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if proj == nil {
		return ErrNotFound
	}
	tasks, err := b.store.ListTasks(ctx, p.TenantID, TaskFilter{ProjectIDs: []string{projectID}})
	if err != nil {
		return fmt.Errorf("list project tasks: %w", err)
	}
	if len(tasks) > 0 {
		archived := StatusArchived
		detached := ""
		ops := make([]BatchOp, 0, len(tasks))
		ids := make([]string, 0, len(tasks))
		for _, t := range tasks {
			status, project := archived, detached
			ops = append(ops, BatchOp{Update: &TaskWrite{ID: t.ID, Patch: TaskPatch{Status: &status, ProjectID: &project}}})
			ids = append(ids, t.ID)
		}
		if err := b.store.ApplyBatch(ctx, p.TenantID, ops); err != nil {
			return fmt.Errorf("archive project tasks: %w", err)
		}
		reloaded, err := b.store.ListTasks(ctx, p.TenantID, TaskFilter{IDs: ids})
		if err != nil {
			b.log.WithError(err).Warn("archive broadcast: reload failed")
			reloaded = nil
		}
		b.cast.Broadcast(ctx, StaffRoom(p.TenantID), Envelope{Event: EventTaskBulkUpdated, Data: reloaded})
		if proj.CustomerID != "" {
			b.cast.Broadcast(ctx, ClientRoom(p.TenantID, proj.CustomerID), Envelope{Event: EventTaskBulkUpdated, Data: reloaded})
		}
	}
	if err := b.store.DeleteProject(ctx, p.TenantID, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ToggleColumnWatcher flips the caller's subscription to a column and
// returns the new state.
func (b *Board) ToggleColumnWatcher(ctx context.Context, p Principal, columnID Status, projectID string) (bool, error) {
	return b.store.ToggleColumnWatcher(ctx, ColumnWatcher{
		TenantID:  p.TenantID,
		UserID:    p.UserID,
		ColumnID:  columnID,
		ProjectID: projectID,
	})
}

func (b *Board) defaultProject(ctx context.Context, p Principal) (*Project, error) {
	proj, err := b.store.FindProjectByName(ctx, p.TenantID, p.CustomerID, DefaultProjectName)
	if err != nil {
		return nil, fmt.Errorf("resolve default project: %w", err)
	}
	if proj != nil {
		return proj, nil
	}
	created := Project{
		ID:         uuid.NewString(),
		TenantID:   p.TenantID,
		CustomerID: p.CustomerID,
		Name:       DefaultProjectName,
	}
	if err := b.store.InsertProject(ctx, created); err != nil {
		return nil, fmt.Errorf("create default project: %w", err)
	}
	return &created, nil
}

func countDone(items []ChecklistItem) int {
	n := 0
	for _, it := range items {
		if it.Done {
			n++
		}
	}
	return n
}

// normalizeCounters derives the stored counters from a patched
// collection when the caller did not send them explicitly.
func (p *TaskPatch) normalizeCounters() {
	if p.Checklist != nil && p.ChecklistTotal == nil {
		total := len(*p.Checklist)
		done := countDone(*p.Checklist)
		p.ChecklistTotal = &total
		p.ChecklistCompleted = &done
	}
	if p.Attachments != nil && p.AttachmentCount == nil {
		n := len(*p.Attachments)
		p.AttachmentCount = &n
	}
}
