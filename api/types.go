package api

import (
	"context"

	"github.com/dogukan1212/moiport-sub000/domain"
)

// BoardService is the mutation and listing surface the handlers expose.
type BoardService interface {
	List(ctx context.Context, p domain.Principal, projectID string) ([]domain.Task, error)
	Create(ctx context.Context, p domain.Principal, t domain.Task) (*domain.Task, error)
	Update(ctx context.Context, p domain.Principal, taskID string, patch domain.TaskPatch, notifySMS bool) (*domain.Task, error)
	Delete(ctx context.Context, p domain.Principal, taskID string) error
	Reorder(ctx context.Context, p domain.Principal, taskIDs []string) error
	ApplyPositions(ctx context.Context, p domain.Principal, changes []domain.PositionChange) ([]domain.Task, error)
	CreateProject(ctx context.Context, p domain.Principal, proj domain.Project) (*domain.Project, error)
	DeleteProject(ctx context.Context, p domain.Principal, projectID string) error
	ToggleColumnWatcher(ctx context.Context, p domain.Principal, columnID domain.Status, projectID string) (bool, error)
}

// Authenticator is implemented by types able to resolve Authorization
// headers to principals.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (domain.Principal, error)
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, tenantID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, tenantID, key string) error
}

// Directory answers the socket handshake's existence check.
type Directory interface {
	UserExists(ctx context.Context, tenantID, userID string) (bool, error)
}
