package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prolearn/prolearn/internal/auth"
)

type memAdminCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *memAdminCache) IsAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[fingerprint] == hashVersion, nil
}

func (m *memAdminCache) MarkAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fingerprint] = hashVersion
	return nil
}

func adminHandler(cfg AdminConfig) http.Handler {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return AdminOnly(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAdminOnly(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashPasswordWithParams("operator-token", auth.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	tests := []struct {
		name       string
		tokenHash  string
		header     string
		wantStatus int
	}{
		{"disabled", "", "Bearer operator-token", http.StatusForbidden},
		{"missing header", hash, "", http.StatusUnauthorized},
		{"wrong scheme", hash, "Basic operator-token", http.StatusUnauthorized},
		{"empty bearer", hash, "Bearer ", http.StatusUnauthorized},
		{"wrong token", hash, "Bearer nope", http.StatusUnauthorized},
		{"malformed hash", "not-a-hash", "Bearer operator-token", http.StatusUnauthorized},
		{"valid", hash, "Bearer operator-token", http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/identifier-cursors", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			adminHandler(AdminConfig{TokenHash: tt.tokenHash}).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestAdminOnly_CachesVerification(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := &memAdminCache{entries: make(map[string]string)}
	handler := adminHandler(AdminConfig{
		TokenHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Cache:     cache,
		verify: func(token, hash string) (bool, error) {
			calls++
			return token == "good", nil
		},
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("verify calls = %d, want 1", calls)
	}
}

func TestAdminOnly_RotatedHashIgnoresCache(t *testing.T) {
	t.Parallel()

	cache := &memAdminCache{entries: make(map[string]string)}
	allow := func(token, hash string) (bool, error) { return true, nil }
	deny := func(token, hash string) (bool, error) { return false, nil }

	send := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send(adminHandler(AdminConfig{TokenHash: "hash-v1", Cache: cache, verify: allow})); got != http.StatusOK {
		t.Fatalf("v1 status = %d", got)
	}
	if got := send(adminHandler(AdminConfig{TokenHash: "hash-v2", Cache: cache, verify: deny})); got != http.StatusUnauthorized {
		t.Fatalf("v2 status = %d, want 401", got)
	}
}
