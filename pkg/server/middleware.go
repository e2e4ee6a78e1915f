package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/modelpark/asset-registry/pkg/events"
	"github.com/modelpark/asset-registry/pkg/ratelimit"
	"github.com/modelpark/asset-registry/pkg/rbac"
	"github.com/modelpark/asset-registry/pkg/registry"
)

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "requestID"
)

// Identity is who is making the request, extracted from the X-User and
// X-Roles headers set by the authenticating proxy in front of the server.
type Identity struct {
	User  string
	Roles []string
}

// IdentityFromContext returns the request identity, defaulting to an
// anonymous viewer.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{User: "anonymous", Roles: []string{rbac.RoleViewer}}
}

// RequestIDFromContext returns the request correlation id.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// identityMiddleware parses the identity headers into the context.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{User: r.Header.Get("X-User"), Roles: []string{rbac.RoleViewer}}
		if id.User == "" {
			id.User = "anonymous"
		}
		if raw := r.Header.Get("X-Roles"); raw != "" {
			id.Roles = id.Roles[:0]
			for _, role := range strings.Split(raw, ",") {
				if role = strings.TrimSpace(role); role != "" {
					id.Roles = append(id.Roles, role)
				}
			}
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDMiddleware assigns a correlation id to every request, echoing
// a caller-supplied X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		// Events recorded during this request carry the same id.
		ctx = events.WithCorrelationID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission enforces one resource:action permission against the
// request identity's effective permission set. Unknown roles contribute
// nothing, so requests with only bogus roles are denied.
func requirePermission(evaluator *rbac.Evaluator, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if !evaluator.Allowed(id.Roles, resource, action) {
				writeError(w, registry.NewPermissionDeniedError(resource, action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware charges one token per request against the caller's
// bucket, keyed by user when known and source address otherwise. A failed
// limiter check is surfaced as unavailable, never as an implicit allow.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			key := id.User
			if key == "" || key == "anonymous" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				} else {
					key = r.RemoteAddr
				}
			}
			if err := limiter.TryAcquire(r.Context(), key, 1); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
