package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prolearn/prolearn/internal/auth"
)

// minAdminAuthDuration pads failed checks so response time does not reveal
// whether the cache or Argon2id answered.
const minAdminAuthDuration = 100 * time.Millisecond

// AdminTokenCache remembers recent successful verifications.
type AdminTokenCache interface {
	IsAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) (bool, error)
	MarkAdminTokenVerified(ctx context.Context, fingerprint, hashVersion string) error
}

// AdminConfig holds configuration for the admin guard.
type AdminConfig struct {
	Logger *slog.Logger
	// TokenHash is the Argon2id PHC hash of the admin bearer token.
	// Empty disables every admin route.
	TokenHash string
	// Cache is optional.
	Cache AdminTokenCache
	// verify is swapped in tests.
	verify func(token, hash string) (bool, error)
}

// AdminOnly guards operator routes with a bearer token.
func AdminOnly(cfg AdminConfig) func(http.Handler) http.Handler {
	verify := cfg.verify
	if verify == nil {
		verify = auth.VerifyPassword
	}
	// Cached verifications are bound to the configured hash.
	hashVersion := auth.TokenFingerprint(cfg.TokenHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.TokenHash == "" {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin access is disabled")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				cfg.Logger.WarnContext(ctx, "admin authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing admin token")
				return
			}

			fingerprint := auth.TokenFingerprint(token)
			if cfg.Cache != nil {
				if hit, _ := cfg.Cache.IsAdminTokenVerified(ctx, fingerprint, hashVersion); hit {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			match, err := verify(token, cfg.TokenHash)
			if err != nil || !match {
				if elapsed := time.Since(start); elapsed < minAdminAuthDuration {
					time.Sleep(minAdminAuthDuration - elapsed)
				}
				reason := "invalid_token"
				if err != nil {
					reason = "invalid_hash"
				}
				cfg.Logger.WarnContext(ctx, "admin authentication failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing admin token")
				return
			}

			if cfg.Cache != nil {
				_ = cfg.Cache.MarkAdminTokenVerified(ctx, fingerprint, hashVersion)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}
