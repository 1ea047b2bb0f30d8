package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/dogukan1212/moiport-sub000/domain"
	"github.com/dogukan1212/moiport-sub000/realtime"
)

const requestMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, board BoardService, auth Authenticator, deduper Deduper, hub *realtime.Hub, cast domain.Broadcaster, dir Directory, logger *log.Logger) {
	h := &handlers{board: board, auth: auth, deduper: deduper, cast: cast, log: logger}

	e.GET("/api/tasks", h.listTasks)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.updateTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/tasks/reorder", h.reorderTasks)
	e.POST("/api/tasks/positions", h.applyPositions)
	e.POST("/api/tasks/positions/client", h.relayClientPositions)
	e.POST("/api/projects", h.createProject)
	e.DELETE("/api/projects/:id", h.deleteProject)
	e.POST("/api/columns/:id/watch", h.toggleColumnWatcher)
	e.GET("/api/stream", streamBoard(auth, dir, hub, logger))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

type handlers struct {
	board   BoardService
	auth    Authenticator
	deduper Deduper
	cast    domain.Broadcaster
	log     *log.Logger
}

func (h *handlers) principal(c echo.Context) (domain.Principal, error) {
	return h.auth.PrincipalFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func (h *handlers) decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *handlers) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		return c.String(http.StatusForbidden, "forbidden")
	default:
		h.log.WithError(err).Error("request failed")
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) listTasks(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	tasks, err := h.board.List(c.Request().Context(), p, c.QueryParam("projectId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *handlers) createTask(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var t domain.Task
	if err := h.decode(c, &t); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	ctx := c.Request().Context()
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = uuid.NewString()
	} else if h.deduper != nil {
		added, err := h.deduper.Add(ctx, p.TenantID, key)
		if err != nil {
			return h.fail(c, err)
		}
		if !added {
			return c.String(http.StatusConflict, "duplicate request")
		}
	}

	created, err := h.board.Create(ctx, p, t)
	if err != nil {
		h.rollbackKey(ctx, p.TenantID, key, c)
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handlers) rollbackKey(ctx context.Context, tenantID, key string, c echo.Context) {
	if h.deduper == nil || key == "" {
		return
	}
	if err := h.deduper.Remove(ctx, tenantID, key); err != nil {
		h.log.WithError(err).WithField("key", key).Error("dedupe rollback failed")
	}
}

type updateTaskRequest struct {
	domain.TaskPatch
	NotifySMS bool `json:"notifySms,omitempty"`
}

func (h *handlers) updateTask(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req updateTaskRequest
	if err := h.decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	task, err := h.board.Update(c.Request().Context(), p, c.Param("id"), req.TaskPatch, req.NotifySMS)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := h.board.Delete(c.Request().Context(), p, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type reorderRequest struct {
	TaskIDs []string `json:"taskIds"`
}

func (h *handlers) reorderTasks(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req reorderRequest
	if err := h.decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := h.board.Reorder(c.Request().Context(), p, req.TaskIDs); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusOK)
}

type positionsRequest struct {
	Changes []json.RawMessage `json:"changes"`
	Origin  string            `json:"origin,omitempty"`
}

// decodeChanges parses position entries one by one so a malformed entry
// is dropped instead of failing the whole batch.
func decodeChanges(raw []json.RawMessage) []domain.PositionChange {
	changes := make([]domain.PositionChange, 0, len(raw))
	for _, r := range raw {
		var c domain.PositionChange
		if err := json.Unmarshal(r, &c); err != nil {
			continue
		}
		changes = append(changes, c)
	}
	return changes
}

func (h *handlers) applyPositions(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req positionsRequest
	if err := h.decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	tasks, err := h.board.ApplyPositions(c.Request().Context(), p, decodeChanges(req.Changes))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks})
}

// relayClientPositions forwards a client's tentative drag positions to
// the tenant's staff room without touching storage. The origin tag rides
// along so the sender can ignore its own echo.
func (h *handlers) relayClientPositions(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req positionsRequest
	if err := h.decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	changes := domain.SanitizePositions(decodeChanges(req.Changes))
	if len(changes) == 0 {
		return c.NoContent(http.StatusAccepted)
	}
	h.cast.Broadcast(c.Request().Context(), domain.StaffRoom(p.TenantID), domain.Envelope{
		Event:  domain.EventTaskPositions,
		Data:   map[string]any{"changes": changes},
		Origin: req.Origin,
	})
	return c.NoContent(http.StatusAccepted)
}

func (h *handlers) createProject(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var proj domain.Project
	if err := h.decode(c, &proj); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	created, err := h.board.CreateProject(c.Request().Context(), p, proj)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handlers) deleteProject(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := h.board.DeleteProject(c.Request().Context(), p, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type watchRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

func (h *handlers) toggleColumnWatcher(c echo.Context) error {
	p, err := h.principal(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req watchRequest
	if err := h.decode(c, &req); err != nil && !errors.Is(err, io.EOF) {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	watching, err := h.board.ToggleColumnWatcher(c.Request().Context(), p, domain.Status(c.Param("id")), req.ProjectID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"watching": watching})
}
