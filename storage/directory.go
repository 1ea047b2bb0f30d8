package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/dogukan1212/moiport-sub000/domain"
)

type projectEntity struct {
	aztables.Entity
	CustomerID string `json:"CustomerId"`
	Name       string `json:"Name"`
}

func decodeProject(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:         ent.RowKey,
		TenantID:   ent.PartitionKey,
		CustomerID: ent.CustomerID,
		Name:       ent.Name,
	}, nil
}

// GetProject loads one project; a missing row returns (nil, nil).
func (s *Storage) GetProject(ctx context.Context, tenantID, projectID string) (*domain.Project, error) {
	resp, err := s.projectTable.GetEntity(ctx, tenantID, projectID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	p, err := decodeProject(resp.Value)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) InsertProject(ctx context.Context, p domain.Project) error {
	data, err := json.Marshal(projectEntity{
		Entity:     aztables.Entity{PartitionKey: p.TenantID, RowKey: p.ID},
		CustomerID: p.CustomerID,
		Name:       p.Name,
	})
	if err != nil {
		return err
	}
	_, err = s.projectTable.AddEntity(ctx, data, nil)
	return err
}

func (s *Storage) DeleteProject(ctx context.Context, tenantID, projectID string) error {
	_, err := s.projectTable.DeleteEntity(ctx, tenantID, projectID, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *Storage) ListProjectsByCustomer(ctx context.Context, tenantID, customerID string) ([]domain.Project, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and CustomerId eq '%s'",
		escapeOData(tenantID), escapeOData(customerID))
	return s.listProjects(ctx, filter)
}

// FindProjectByName returns the customer's project with the given name,
// or (nil, nil) when none exists.
func (s *Storage) FindProjectByName(ctx context.Context, tenantID, customerID, name string) (*domain.Project, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and CustomerId eq '%s' and Name eq '%s'",
		escapeOData(tenantID), escapeOData(customerID), escapeOData(name))
	projects, err := s.listProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}
	return &projects[0], nil
}

func (s *Storage) listProjects(ctx context.Context, filter string) ([]domain.Project, error) {
	pager := s.projectTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			p, err := decodeProject(e)
			if err != nil {
				return nil, err
			}
			projects = append(projects, p)
		}
	}
	return projects, nil
}

type userEntity struct {
	aztables.Entity
	Name       string `json:"Name"`
	Role       string `json:"Role"`
	CustomerID string `json:"CustomerId"`
	Active     bool   `json:"Active"`
}

// UserExists reports whether the user is present in the tenant
// directory.
func (s *Storage) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	_, err := s.userTable.GetEntity(ctx, tenantID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ActiveUsersNamed resolves display names to active tenant users, used
// for @mention notifications.
func (s *Storage) ActiveUsersNamed(ctx context.Context, tenantID string, names []string) ([]domain.User, error) {
	if len(names) == 0 {
		return nil, nil
	}
	filter := fmt.Sprintf("PartitionKey eq '%s' and %s and Active eq true",
		escapeOData(tenantID), anyOf("Name", names))
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			users = append(users, domain.User{
				ID:         ent.RowKey,
				TenantID:   ent.PartitionKey,
				Name:       ent.Name,
				Role:       domain.Role(ent.Role),
				CustomerID: ent.CustomerID,
				Active:     ent.Active,
			})
		}
	}
	return users, nil
}

type watcherEntity struct {
	aztables.Entity
	UserID    string `json:"UserId"`
	ColumnID  string `json:"ColumnId"`
	ProjectID string `json:"ProjectId"`
}

// watcherKey makes the (user, column, project) tuple unique per tenant
// partition.
func watcherKey(w domain.ColumnWatcher) string {
	return strings.Join([]string{w.UserID, string(w.ColumnID), w.ProjectID}, "|")
}

// ToggleColumnWatcher flips the subscription tuple and returns the new
// state: true when the user now watches the column.
func (s *Storage) ToggleColumnWatcher(ctx context.Context, w domain.ColumnWatcher) (bool, error) {
	rk := watcherKey(w)
	_, err := s.watcherTable.GetEntity(ctx, w.TenantID, rk, nil)
	if err == nil {
		if _, err := s.watcherTable.DeleteEntity(ctx, w.TenantID, rk, nil); err != nil {
			return true, err
		}
		return false, nil
	}
	if !isNotFound(err) {
		return false, err
	}
	data, err := json.Marshal(watcherEntity{
		Entity:    aztables.Entity{PartitionKey: w.TenantID, RowKey: rk},
		UserID:    w.UserID,
		ColumnID:  string(w.ColumnID),
		ProjectID: w.ProjectID,
	})
	if err != nil {
		return false, err
	}
	if _, err := s.watcherTable.AddEntity(ctx, data, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) ListColumnWatchers(ctx context.Context, tenantID string, columnID domain.Status, projectID string) ([]domain.ColumnWatcher, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and ColumnId eq '%s' and ProjectId eq '%s'",
		escapeOData(tenantID), escapeOData(string(columnID)), escapeOData(projectID))
	pager := s.watcherTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	watchers := []domain.ColumnWatcher{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent watcherEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			watchers = append(watchers, domain.ColumnWatcher{
				TenantID:  ent.PartitionKey,
				UserID:    ent.UserID,
				ColumnID:  domain.Status(ent.ColumnID),
				ProjectID: ent.ProjectID,
			})
		}
	}
	return watchers, nil
}
