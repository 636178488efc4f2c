package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/api/middleware"
	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func newContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func asIdentity(c echo.Context, id int64, username string, role domain.Role) {
	c.Set(middleware.KeyUserID, id)
	c.Set(middleware.KeyUsername, username)
	c.Set(middleware.KeyRole, role)
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return he.Code
}

// --- auth ---

type stubAuthService struct {
	loginFn  func(ctx context.Context, username, password string) (*ports.LoginResult, error)
	meFn     func(ctx context.Context, userID int64) (*domain.AccountView, error)
	changeFn func(ctx context.Context, userID int64, current, next string) error
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, username, password)
}

func (s *stubAuthService) Me(ctx context.Context, userID int64) (*domain.AccountView, error) {
	return s.meFn(ctx, userID)
}

func (s *stubAuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	return s.changeFn(ctx, userID, current, next)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (*ports.LoginResult, error) {
			if username != "alice" || password != "Secret123" {
				t.Fatalf("unexpected args: %s %s", username, password)
			}
			return &ports.LoginResult{
				Token:   "token123",
				Account: &domain.AccountView{ID: 2, Username: "alice", Role: domain.RoleUser, IsActive: true},
			}, nil
		},
	}
	c, rec := newContext(e, http.MethodPost, "/auth/login", `{"username":"alice","password":"Secret123"}`)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "token123" {
		t.Fatalf("unexpected token: %v", resp["token"])
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["username"] != "alice" {
		t.Fatalf("unexpected user payload: %+v", resp["user"])
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash must not be serialized")
	}
}

func TestAuthHandler_Login_InvalidCredential(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (*ports.LoginResult, error) {
			return nil, domain.ErrInvalidCredential
		},
	}
	c, _ := newContext(e, http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`)

	err := NewAuthHandler(stub).Login(c)
	if !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestAuthHandler_Login_BadPayload(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (*ports.LoginResult, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}

	for _, body := range []string{"not-json", `{"username":"alice"}`, `{"password":"x"}`} {
		c, _ := newContext(newEcho(), http.MethodPost, "/auth/login", body)
		if code := httpCode(t, NewAuthHandler(stub).Login(c)); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, code)
		}
	}
}

func TestAuthHandler_Me(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		meFn: func(ctx context.Context, userID int64) (*domain.AccountView, error) {
			if userID != 9 {
				t.Fatalf("unexpected id %d", userID)
			}
			return &domain.AccountView{ID: 9, Username: "bob", Role: domain.RoleUser}, nil
		},
	}

	c, rec := newContext(e, http.MethodGet, "/auth/me", "")
	asIdentity(c, 9, "bob", domain.RoleUser)
	if err := NewAuthHandler(stub).Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = newContext(e, http.MethodGet, "/auth/me", "")
	c.Set(middleware.KeyBypass, true)
	if err := NewAuthHandler(stub).Me(c); !errors.Is(err, domain.ErrAuthenticationRequired) {
		t.Fatalf("expected authentication required without identity, got %v", err)
	}
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	e := newEcho()
	var gotCurrent, gotNext string
	stub := &stubAuthService{
		changeFn: func(ctx context.Context, userID int64, current, next string) error {
			gotCurrent, gotNext = current, next
			return nil
		},
	}

	c, rec := newContext(e, http.MethodPost, "/auth/password", `{"current_password":"Old12345","new_password":"New12345"}`)
	asIdentity(c, 3, "carol", domain.RoleUser)
	if err := NewAuthHandler(stub).ChangePassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotCurrent != "Old12345" || gotNext != "New12345" {
		t.Fatalf("unexpected args: %s %s", gotCurrent, gotNext)
	}
}

// --- accounts ---

type stubAccountService struct {
	ports.AccountService
	createFn     func(username, password string, role domain.Role) (*domain.AccountView, error)
	listFn       func() ([]domain.AccountView, error)
	updateFn     func(actorID, id int64, u domain.AccountUpdate) (*domain.AccountView, error)
	deactivateFn func(actorID, id int64) error
	hardDeleteFn func(actorID, id int64, confirm string) error
}

func (s *stubAccountService) Create(_ context.Context, username, password string, role domain.Role) (*domain.AccountView, error) {
	return s.createFn(username, password, role)
}

func (s *stubAccountService) List(context.Context) ([]domain.AccountView, error) {
	return s.listFn()
}

func (s *stubAccountService) Update(_ context.Context, actorID, id int64, u domain.AccountUpdate) (*domain.AccountView, error) {
	return s.updateFn(actorID, id, u)
}

func (s *stubAccountService) Deactivate(_ context.Context, actorID, id int64) error {
	return s.deactivateFn(actorID, id)
}

func (s *stubAccountService) HardDelete(_ context.Context, actorID, id int64, confirm string) error {
	return s.hardDeleteFn(actorID, id, confirm)
}

func TestAccountHandler_Create(t *testing.T) {
	e := newEcho()
	stub := &stubAccountService{
		createFn: func(username, password string, role domain.Role) (*domain.AccountView, error) {
			if username != "dave" || role != domain.RoleAdmin {
				t.Fatalf("unexpected args: %s %s", username, role)
			}
			return &domain.AccountView{ID: 5, Username: username, Role: role, IsActive: true}, nil
		},
	}

	c, rec := newContext(e, http.MethodPost, "/admin/accounts", `{"username":"dave","password":"Passw0rd!","role":"admin"}`)
	if err := NewAccountHandler(stub).Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestAccountHandler_Create_Errors(t *testing.T) {
	stub := &stubAccountService{
		createFn: func(username, password string, role domain.Role) (*domain.AccountView, error) {
			return nil, domain.ErrDuplicateUsername
		},
	}

	c, _ := newContext(newEcho(), http.MethodPost, "/admin/accounts", `{"username":"dave","password":"Passw0rd!"}`)
	if err := NewAccountHandler(stub).Create(c); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}

	c, _ = newContext(newEcho(), http.MethodPost, "/admin/accounts", `{"username":"dave","password":"Passw0rd!","role":"root"}`)
	if code := httpCode(t, NewAccountHandler(stub).Create(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", code)
	}
}

func TestAccountHandler_List_Empty(t *testing.T) {
	stub := &stubAccountService{
		listFn: func() ([]domain.AccountView, error) { return nil, nil },
	}

	c, rec := newContext(newEcho(), http.MethodGet, "/admin/accounts", "")
	if err := NewAccountHandler(stub).List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"accounts":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestAccountHandler_Update_PassesActorAndFields(t *testing.T) {
	stub := &stubAccountService{
		updateFn: func(actorID, id int64, u domain.AccountUpdate) (*domain.AccountView, error) {
			if actorID != 1 || id != 4 {
				t.Fatalf("unexpected ids: actor=%d id=%d", actorID, id)
			}
			if u.Role == nil || *u.Role != domain.RoleAdmin || u.Username != nil || u.IsActive != nil {
				t.Fatalf("unexpected update: %+v", u)
			}
			return &domain.AccountView{ID: id, Role: *u.Role}, nil
		},
	}

	c, rec := newContext(newEcho(), http.MethodPatch, "/admin/accounts/4", `{"role":"admin"}`)
	c.SetParamNames("id")
	c.SetParamValues("4")
	asIdentity(c, 1, "admin", domain.RoleAdmin)

	if err := NewAccountHandler(stub).Update(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAccountHandler_Deactivate_BadID(t *testing.T) {
	stub := &stubAccountService{
		deactivateFn: func(actorID, id int64) error {
			t.Fatalf("should not be called")
			return nil
		},
	}

	c, _ := newContext(newEcho(), http.MethodDelete, "/admin/accounts/abc", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	if code := httpCode(t, NewAccountHandler(stub).Deactivate(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestAccountHandler_Deactivate_Bypassed(t *testing.T) {
	stub := &stubAccountService{
		deactivateFn: func(actorID, id int64) error {
			if actorID != 0 {
				t.Fatalf("bypassed request must have no actor, got %d", actorID)
			}
			return nil
		},
	}

	c, rec := newContext(newEcho(), http.MethodDelete, "/admin/accounts/2", "")
	c.SetParamNames("id")
	c.SetParamValues("2")
	c.Set(middleware.KeyBypass, true)
	if err := NewAccountHandler(stub).Deactivate(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestAccountHandler_HardDelete_RequiresConfirm(t *testing.T) {
	var gotConfirm string
	stub := &stubAccountService{
		hardDeleteFn: func(actorID, id int64, confirm string) error {
			gotConfirm = confirm
			return nil
		},
	}

	c, _ := newContext(newEcho(), http.MethodDelete, "/admin/accounts/2/hard", "")
	c.SetParamNames("id")
	c.SetParamValues("2")
	if code := httpCode(t, NewAccountHandler(stub).HardDelete(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm, got %d", code)
	}

	c, rec := newContext(newEcho(), http.MethodDelete, "/admin/accounts/2/hard?confirm=bob", "")
	c.SetParamNames("id")
	c.SetParamValues("2")
	if err := NewAccountHandler(stub).HardDelete(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || gotConfirm != "bob" {
		t.Fatalf("unexpected result: code=%d confirm=%q", rec.Code, gotConfirm)
	}
}

// --- enforcement ---

type stubToggle struct {
	setting   domain.EnforcementSetting
	writeErr  error
	writtenBy string
}

func (s *stubToggle) Read(context.Context) domain.EnforcementSetting { return s.setting }

func (s *stubToggle) Write(_ context.Context, enabled bool, updatedBy string) (domain.EnforcementSetting, error) {
	if s.writeErr != nil {
		return domain.EnforcementSetting{}, s.writeErr
	}
	s.writtenBy = updatedBy
	s.setting = domain.EnforcementSetting{Enabled: enabled, UpdatedAt: time.Now().UTC(), UpdatedBy: updatedBy}
	return s.setting, nil
}

func TestEnforcementHandler_GetAndSet(t *testing.T) {
	toggle := &stubToggle{setting: domain.DefaultEnforcement()}
	h := NewEnforcementHandler(toggle)

	c, rec := newContext(newEcho(), http.MethodGet, "/admin/enforcement", "")
	if err := h.Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"authentication_enabled":true`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	c, rec = newContext(newEcho(), http.MethodPut, "/admin/enforcement", `{"authentication_enabled":false}`)
	asIdentity(c, 1, "admin", domain.RoleAdmin)
	if err := h.Set(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || toggle.setting.Enabled || toggle.writtenBy != "admin" {
		t.Fatalf("unexpected result: code=%d setting=%+v", rec.Code, toggle.setting)
	}
}

func TestEnforcementHandler_Set_Errors(t *testing.T) {
	toggle := &stubToggle{writeErr: domain.ErrPersistenceFailure}
	h := NewEnforcementHandler(toggle)

	c, _ := newContext(newEcho(), http.MethodPut, "/admin/enforcement", `{}`)
	if code := httpCode(t, h.Set(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing flag, got %d", code)
	}

	c, _ = newContext(newEcho(), http.MethodPut, "/admin/enforcement", `{"authentication_enabled":true}`)
	if err := h.Set(c); !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected persistence failure to propagate, got %v", err)
	}
}

// --- health ---

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_Readiness(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	c, rec := newContext(newEcho(), http.MethodGet, "/health/ready", "")
	if err := NewHealthDependenciesHandler(map[string]Pinger{"store": ok}).Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(newEcho(), http.MethodGet, "/health/ready", "")
	if err := NewHealthDependenciesHandler(map[string]Pinger{"store": ok, "redis": down}).Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("expected dependency error in body, got %s", rec.Body.String())
	}
}
