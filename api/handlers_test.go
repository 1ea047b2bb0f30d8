package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/dogukan1212/moiport-sub000/domain"
	"github.com/dogukan1212/moiport-sub000/realtime"
)

type stubAuth struct {
	principal domain.Principal
	err       error
}

func (s *stubAuth) PrincipalFromAuthHeader(h string) (domain.Principal, error) {
	if s.err != nil {
		return domain.Principal{}, s.err
	}
	return s.principal, nil
}

type stubBoard struct {
	listed    []domain.Task
	created   *domain.Task
	createErr error
	updated   *domain.Task
	updateErr error
	deleteErr error

	lastPatch     domain.TaskPatch
	lastNotifySMS bool
	lastChanges   []domain.PositionChange
	lastTaskIDs   []string
}

func (s *stubBoard) List(context.Context, domain.Principal, string) ([]domain.Task, error) {
	return s.listed, nil
}

func (s *stubBoard) Create(_ context.Context, _ domain.Principal, t domain.Task) (*domain.Task, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.created != nil {
		return s.created, nil
	}
	return &t, nil
}

func (s *stubBoard) Update(_ context.Context, _ domain.Principal, _ string, patch domain.TaskPatch, notifySMS bool) (*domain.Task, error) {
	s.lastPatch = patch
	s.lastNotifySMS = notifySMS
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.updated, nil
}

func (s *stubBoard) Delete(context.Context, domain.Principal, string) error { return s.deleteErr }

func (s *stubBoard) Reorder(_ context.Context, _ domain.Principal, ids []string) error {
	s.lastTaskIDs = ids
	return nil
}

func (s *stubBoard) ApplyPositions(_ context.Context, _ domain.Principal, changes []domain.PositionChange) ([]domain.Task, error) {
	s.lastChanges = changes
	return nil, nil
}

func (s *stubBoard) CreateProject(_ context.Context, _ domain.Principal, proj domain.Project) (*domain.Project, error) {
	return &proj, nil
}

func (s *stubBoard) DeleteProject(context.Context, domain.Principal, string) error { return nil }

func (s *stubBoard) ToggleColumnWatcher(context.Context, domain.Principal, domain.Status, string) (bool, error) {
	return true, nil
}

type stubDeduper struct {
	added   map[string]bool
	removed []string
}

func (s *stubDeduper) Add(_ context.Context, tenantID, key string) (bool, error) {
	if s.added == nil {
		s.added = map[string]bool{}
	}
	full := tenantID + ":" + key
	if s.added[full] {
		return false, nil
	}
	s.added[full] = true
	return true, nil
}

func (s *stubDeduper) Remove(_ context.Context, tenantID, key string) error {
	s.removed = append(s.removed, tenantID+":"+key)
	return nil
}

type stubDirectory struct{ exists bool }

func (s *stubDirectory) UserExists(context.Context, string, string) (bool, error) {
	return s.exists, nil
}

type castSpy struct {
	mu     sync.Mutex
	rooms  []string
	frames []domain.Envelope
}

func (c *castSpy) Broadcast(_ context.Context, room string, ev domain.Envelope) {
	c.mu.Lock()
	c.rooms = append(c.rooms, room)
	c.frames = append(c.frames, ev)
	c.mu.Unlock()
}

type testServer struct {
	e     *echo.Echo
	board *stubBoard
	auth  *stubAuth
	dedup *stubDeduper
	cast  *castSpy
	hub   *realtime.Hub
}

func newTestServer() *testServer {
	s := &testServer{
		e:     echo.New(),
		board: &stubBoard{},
		auth:  &stubAuth{principal: domain.Principal{UserID: "u1", TenantID: "tn1", Role: domain.RoleStaff}},
		dedup: &stubDeduper{},
		cast:  &castSpy{},
		hub:   realtime.NewHub(),
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	Register(s.e, s.board, s.auth, s.dedup, s.hub, s.cast, &stubDirectory{exists: true}, logger)
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	s := newTestServer()
	s.auth.err = errors.New("bad token")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPatch, "/api/tasks/t1"},
		{http.MethodDelete, "/api/tasks/t1"},
		{http.MethodPost, "/api/tasks/reorder"},
		{http.MethodPost, "/api/tasks/positions"},
		{http.MethodPost, "/api/tasks/positions/client"},
		{http.MethodPost, "/api/projects"},
		{http.MethodDelete, "/api/projects/p1"},
		{http.MethodPost, "/api/columns/DONE/watch"},
	} {
		rec := s.do(route.method, route.path, `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, rec.Code)
		}
	}
}

func TestCreateTaskReturnsCreated(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/tasks", `{"title":"New task"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if task.Title != "New task" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestCreateTaskRejectsUnknownFields(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/tasks", `{"title":"x","bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTaskIdempotencyConflict(t *testing.T) {
	s := newTestServer()
	body := `{"title":"once"}`

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set("Idempotency-Key", "k1")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay: expected 409, got %d", rec.Code)
	}
}

func TestCreateFailureReleasesIdempotencyKey(t *testing.T) {
	s := newTestServer()
	s.board.createErr = errors.New("storage down")

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(s.dedup.removed) != 1 || s.dedup.removed[0] != "tn1:k1" {
		t.Fatalf("key must be released after a failed create: %v", s.dedup.removed)
	}
}

func TestUpdateTaskNotFoundMapsTo404(t *testing.T) {
	s := newTestServer()
	s.board.updateErr = domain.ErrNotFound
	rec := s.do(http.MethodPatch, "/api/tasks/absent", `{"title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateTaskPassesSMSFlag(t *testing.T) {
	s := newTestServer()
	s.board.updated = &domain.Task{ID: "t1"}
	rec := s.do(http.MethodPatch, "/api/tasks/t1", `{"status":"DONE","notifySms":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !s.board.lastNotifySMS {
		t.Fatalf("notifySms flag must reach the board")
	}
	if s.board.lastPatch.Status == nil || *s.board.lastPatch.Status != domain.StatusDone {
		t.Fatalf("patch lost the status: %+v", s.board.lastPatch)
	}
}

func TestApplyPositionsDropsMalformedEntries(t *testing.T) {
	s := newTestServer()
	body := `{"changes":[{"id":"t1","status":"DONE","order":2048},{"id":42,"status":"DONE","order":1}]}`
	rec := s.do(http.MethodPost, "/api/tasks/positions", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(s.board.lastChanges) != 1 || s.board.lastChanges[0].ID != "t1" {
		t.Fatalf("malformed entries must be dropped, kept %+v", s.board.lastChanges)
	}
}

func TestRelayClientPositionsBroadcastsWithOrigin(t *testing.T) {
	s := newTestServer()
	body := `{"changes":[{"id":"t1","status":"TODO","order":512}],"origin":"socket-7"}`
	rec := s.do(http.MethodPost, "/api/tasks/positions/client", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(s.cast.frames) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(s.cast.frames))
	}
	if s.cast.rooms[0] != domain.StaffRoom("tn1") {
		t.Fatalf("relay must target the staff room, got %s", s.cast.rooms[0])
	}
	ev := s.cast.frames[0]
	if ev.Event != domain.EventTaskPositions || ev.Origin != "socket-7" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
}

func TestRelayClientPositionsEmptySetSkipsBroadcast(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/tasks/positions/client", `{"changes":[{"id":"","status":"TODO","order":1}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(s.cast.frames) != 0 {
		t.Fatalf("empty surviving set must not broadcast")
	}
}

func TestReorderPassesIDSequence(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/tasks/reorder", `{"taskIds":["b","a","c"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(s.board.lastTaskIDs) != 3 || s.board.lastTaskIDs[0] != "b" {
		t.Fatalf("id sequence lost: %v", s.board.lastTaskIDs)
	}
}

func TestToggleColumnWatcherAcceptsEmptyBody(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/columns/DONE/watch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !resp["watching"] {
		t.Fatalf("expected watching=true, got %v", resp)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
