package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error {
	return s.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHealthHandler(&stubPinger{err: errors.New("down")}, nil).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("liveness must not depend on dependencies, got %d", rec.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		db, cache    HealthChecker
		wantStatus   int
		wantBody     string
		wantPostgres string
		wantRedis    string
	}{
		{"all healthy", &stubPinger{}, &stubPinger{}, http.StatusOK, "ok", "ok", "ok"},
		{"database down", &stubPinger{err: errors.New("connection refused")}, &stubPinger{}, http.StatusServiceUnavailable, "unhealthy", "error: connection refused", "ok"},
		{"redis down", &stubPinger{}, &stubPinger{err: errors.New("timeout")}, http.StatusServiceUnavailable, "unhealthy", "ok", "error: timeout"},
		{"nothing configured", nil, nil, http.StatusOK, "ok", "not configured", "not configured"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			NewHealthHandler(tt.db, tt.cache).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantBody)
			}
			if resp.Checks["postgres"] != tt.wantPostgres {
				t.Errorf("postgres = %q, want %q", resp.Checks["postgres"], tt.wantPostgres)
			}
			if resp.Checks["redis"] != tt.wantRedis {
				t.Errorf("redis = %q, want %q", resp.Checks["redis"], tt.wantRedis)
			}
		})
	}
}
