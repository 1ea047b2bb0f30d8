package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/dogukan1212/moiport-sub000/domain"
)

// Storage persists board state in Azure Tables. Every tenant's rows live
// in one partition (PartitionKey = tenant id), which makes a table
// transaction the atomic multi-row batch the mirror and ordering rules
// require.
type Storage struct {
	taskTable    *aztables.Client
	projectTable *aztables.Client
	userTable    *aztables.Client
	watcherTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, projectsTable, usersTable, watchersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:    svc.NewClient(tasksTable),
		projectTable: svc.NewClient(projectsTable),
		userTable:    svc.NewClient(usersTable),
		watcherTable: svc.NewClient(watchersTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	ProjectID          string  `json:"ProjectId"`
	AssigneeID         string  `json:"AssigneeId"`
	Title              string  `json:"Title"`
	Description        string  `json:"Description"`
	Status             string  `json:"Status"`
	Order              float64 `json:"Order"`
	MirrorGroupID      string  `json:"MirrorGroupId"`
	DueDate            string  `json:"DueDate"`
	Labels             string  `json:"Labels"`
	Checklist          string  `json:"Checklist"`
	ChecklistTotal     int     `json:"ChecklistTotal"`
	ChecklistCompleted int     `json:"ChecklistCompleted"`
	Members            string  `json:"Members"`
	Watchers           string  `json:"Watchers"`
	Attachments        string  `json:"Attachments"`
	AttachmentCount    int     `json:"AttachmentCount"`
	Comments           string  `json:"Comments"`
	Activities         string  `json:"Activities"`
}

func encodeTask(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:             aztables.Entity{PartitionKey: t.TenantID, RowKey: t.ID},
		ProjectID:          t.ProjectID,
		AssigneeID:         t.AssigneeID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             string(t.Status),
		Order:              t.Order,
		MirrorGroupID:      t.MirrorGroupID,
		ChecklistTotal:     t.ChecklistTotal,
		ChecklistCompleted: t.ChecklistCompleted,
		AttachmentCount:    t.AttachmentCount,
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339)
	}
	ent.Labels = encodeColumn(t.Labels)
	ent.Checklist = encodeColumn(t.Checklist)
	ent.Members = encodeColumn(t.Members)
	ent.Watchers = encodeColumn(t.Watchers)
	ent.Attachments = encodeColumn(t.Attachments)
	ent.Comments = encodeColumn(t.Comments)
	ent.Activities = encodeColumn(t.Activities)
	return ent
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:                 ent.RowKey,
		TenantID:           ent.PartitionKey,
		ProjectID:          ent.ProjectID,
		AssigneeID:         ent.AssigneeID,
		Title:              ent.Title,
		Description:        ent.Description,
		Status:             domain.Status(ent.Status),
		Order:              ent.Order,
		MirrorGroupID:      ent.MirrorGroupID,
		ChecklistTotal:     ent.ChecklistTotal,
		ChecklistCompleted: ent.ChecklistCompleted,
		AttachmentCount:    ent.AttachmentCount,
	}
	if ent.DueDate != "" {
		if due, err := time.Parse(time.RFC3339, ent.DueDate); err == nil {
			t.DueDate = &due
		}
	}
	if err := errors.Join(
		decodeColumn(ent.Labels, &t.Labels),
		decodeColumn(ent.Checklist, &t.Checklist),
		decodeColumn(ent.Members, &t.Members),
		decodeColumn(ent.Watchers, &t.Watchers),
		decodeColumn(ent.Attachments, &t.Attachments),
		decodeColumn(ent.Comments, &t.Comments),
		decodeColumn(ent.Activities, &t.Activities),
	); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// encodeColumn serializes a collection into one text column; empty
// collections store as an empty string.
func encodeColumn(v any) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return ""
	}
	return string(data)
}

func decodeColumn(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// ListTasks retrieves the tenant's tasks matching the filter.
func (s *Storage) ListTasks(ctx context.Context, tenantID string, f domain.TaskFilter) ([]domain.Task, error) {
	filter := taskFilterExpr(tenantID, f)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTask(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// taskFilterExpr builds the OData filter for a tenant-scoped task query.
func taskFilterExpr(tenantID string, f domain.TaskFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PartitionKey eq '%s'", escapeOData(tenantID))
	if f.MirrorGroupID != "" {
		fmt.Fprintf(&b, " and MirrorGroupId eq '%s'", escapeOData(f.MirrorGroupID))
	}
	if len(f.ProjectIDs) > 0 {
		b.WriteString(" and " + anyOf("ProjectId", f.ProjectIDs))
	}
	if len(f.IDs) > 0 {
		b.WriteString(" and " + anyOf("RowKey", f.IDs))
	}
	return b.String()
}

func anyOf(field string, values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%s eq '%s'", field, escapeOData(v)))
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// escapeOData doubles single quotes per the OData string literal rules.
func escapeOData(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// GetTask loads one row; a missing row returns (nil, nil).
func (s *Storage) GetTask(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, tenantID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTask(resp.Value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	data, err := json.Marshal(encodeTask(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

func (s *Storage) DeleteTask(ctx context.Context, tenantID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, tenantID, taskID, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ApplyBatch submits all operations as one table transaction: they apply
// atomically or not at all. All rows must belong to the given tenant's
// partition.
func (s *Storage) ApplyBatch(ctx context.Context, tenantID string, ops []domain.BatchOp) error {
	if len(ops) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.Insert != nil:
			data, err := json.Marshal(encodeTask(*op.Insert))
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeAdd,
				Entity:     data,
			})
		case op.Update != nil:
			data, err := patchEntity(tenantID, *op.Update)
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeUpdateMerge,
				Entity:     data,
			})
		default:
			return errors.New("empty batch operation")
		}
	}
	_, err := s.taskTable.SubmitTransaction(ctx, actions, nil)
	return err
}

// patchEntity builds a merge entity holding only the patched properties.
func patchEntity(tenantID string, w domain.TaskWrite) ([]byte, error) {
	m := map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       w.ID,
	}
	p := w.Patch
	if p.Title != nil {
		m["Title"] = *p.Title
	}
	if p.Description != nil {
		m["Description"] = *p.Description
	}
	if p.ProjectID != nil {
		m["ProjectId"] = *p.ProjectID
	}
	if p.AssigneeID != nil {
		m["AssigneeId"] = *p.AssigneeID
	}
	if p.Status != nil {
		m["Status"] = string(*p.Status)
	}
	if p.Order != nil {
		m["Order"] = *p.Order
	}
	if p.MirrorGroupID != nil {
		m["MirrorGroupId"] = *p.MirrorGroupID
	}
	if p.DueDate != nil {
		m["DueDate"] = p.DueDate.UTC().Format(time.RFC3339)
	}
	if p.Labels != nil {
		m["Labels"] = encodeColumn(*p.Labels)
	}
	if p.Checklist != nil {
		m["Checklist"] = encodeColumn(*p.Checklist)
	}
	if p.ChecklistTotal != nil {
		m["ChecklistTotal"] = *p.ChecklistTotal
	}
	if p.ChecklistCompleted != nil {
		m["ChecklistCompleted"] = *p.ChecklistCompleted
	}
	if p.Members != nil {
		m["Members"] = encodeColumn(*p.Members)
	}
	if p.Watchers != nil {
		m["Watchers"] = encodeColumn(*p.Watchers)
	}
	if p.Attachments != nil {
		m["Attachments"] = encodeColumn(*p.Attachments)
	}
	if p.AttachmentCount != nil {
		m["AttachmentCount"] = *p.AttachmentCount
	}
	if p.Comments != nil {
		m["Comments"] = encodeColumn(*p.Comments)
	}
	if p.Activities != nil {
		m["Activities"] = encodeColumn(*p.Activities)
	}
	return json.Marshal(m)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
