package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prolearn/prolearn/internal/handler/dto"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
	"github.com/prolearn/prolearn/internal/service"
)

type stubUserService struct {
	registerErr error
	lastInput   service.RegisterInput
	users       map[string]*model.User
}

func (s *stubUserService) Register(ctx context.Context, input service.RegisterInput) (*model.User, error) {
	s.lastInput = input
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &model.User{
		ID:           "01J0000000000000000000000A",
		Code:         "prln26aa042",
		Email:        input.Email,
		Name:         input.Name,
		Role:         model.RoleStudent,
		PasswordHash: "$argon2id$secret",
		CreatedAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubUserService) GetByCode(ctx context.Context, code string) (*model.User, error) {
	if !idalloc.Valid(code) {
		return nil, service.ErrInvalidCode
	}
	if u, ok := s.users[code]; ok {
		return u, nil
	}
	return nil, service.ErrUserNotFound
}

func (s *stubUserService) Delete(ctx context.Context, code string) error {
	if _, ok := s.users[code]; !ok {
		return service.ErrUserNotFound
	}
	delete(s.users, code)
	return nil
}

func newUserRouter(svc UserService) http.Handler {
	h := NewUserHandler(svc, discardLogger)
	r := chi.NewRouter()
	r.Post("/api/v1/users", h.Register)
	r.Get("/api/v1/users/{code}", h.Get)
	r.Delete("/api/v1/users/{code}", h.Delete)
	return r
}

func TestUserHandler_Register(t *testing.T) {
	t.Parallel()

	svc := &stubUserService{}
	router := newUserRouter(svc)

	body := `{"email":"ada@example.com","name":"Ada","password":"analytical","role":"mentor"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/users/prln26aa042" {
		t.Errorf("Location = %q", loc)
	}
	if strings.Contains(rec.Body.String(), "argon2id") || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password material leaked: %s", rec.Body.String())
	}

	var resp dto.UserResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "prln26aa042" {
		t.Errorf("code = %q", resp.Code)
	}
	if svc.lastInput.Role != "mentor" || svc.lastInput.Password != "analytical" {
		t.Errorf("input not forwarded: %+v", svc.lastInput)
	}
}

func TestUserHandler_RegisterErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"email":`, nil, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown field", `{"email":"a@b.io","admin":true}`, nil, http.StatusBadRequest, "INVALID_JSON"},
		{"validation", `{"email":"a@b.io"}`, service.ErrInvalidName, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"duplicate", `{"email":"a@b.io"}`, service.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS"},
		{"capacity", `{"email":"a@b.io"}`, fmt.Errorf("x: %w", idalloc.ErrCapacityExhausted), http.StatusServiceUnavailable, "IDENTIFIER_CAPACITY_EXHAUSTED"},
		{"busy", `{"email":"a@b.io"}`, fmt.Errorf("x: %w", idalloc.ErrRetryLimitExceeded), http.StatusServiceUnavailable, "IDENTIFIER_ALLOCATION_BUSY"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newUserRouter(&stubUserService{registerErr: tt.svcErr})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Fatalf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestUserHandler_GetAndDelete(t *testing.T) {
	t.Parallel()

	svc := &stubUserService{users: map[string]*model.User{
		"prln26aa001": {ID: "u1", Code: "prln26aa001", Email: "a@b.io", Role: model.RoleStudent},
	}}
	router := newUserRouter(svc)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/api/v1/users/prln26aa001", http.StatusOK},
		{http.MethodGet, "/api/v1/users/prln26pa001", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/users/prln26aa002", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/users/prln26aa001", http.StatusNoContent},
		{http.MethodDelete, "/api/v1/users/prln26aa001", http.StatusNotFound},
		{http.MethodGet, "/api/v1/users/prln26aa001", http.StatusNotFound},
	}

	// Sequential: later steps depend on earlier deletes.
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Fatalf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
	}
}
