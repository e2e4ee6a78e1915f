// Package server exposes the registry engine over HTTP. It is a thin
// shell: request decoding, identity extraction, permission and rate-limit
// gates, and error mapping. All semantics live in the engine packages.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/lifecycle"
	"github.com/modelpark/asset-registry/pkg/ratelimit"
	"github.com/modelpark/asset-registry/pkg/rbac"
)

// Server holds the engine components the HTTP layer delegates to.
type Server struct {
	manager   *lifecycle.Manager
	graph     *graph.Engine
	evaluator *rbac.Evaluator
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// New creates a Server. limiter may be nil to disable rate limiting.
func New(manager *lifecycle.Manager, graphEngine *graph.Engine, evaluator *rbac.Evaluator,
	limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:   manager,
		graph:     graphEngine,
		evaluator: evaluator,
		limiter:   limiter,
		logger:    logger,
	}
}

// Router mounts the registry API under /api/registry/v1.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(identityMiddleware)
	if s.limiter != nil {
		r.Use(rateLimitMiddleware(s.limiter))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleHealthz)

	r.Route("/api/registry/v1", func(r chi.Router) {
		read := requirePermission(s.evaluator, "asset", "read")
		write := requirePermission(s.evaluator, "asset", "write")
		del := requirePermission(s.evaluator, "asset", "delete")
		depRead := requirePermission(s.evaluator, "dependency", "read")
		depWrite := requirePermission(s.evaluator, "dependency", "write")
		eventRead := requirePermission(s.evaluator, "event", "read")

		r.With(write).Post("/assets", s.handleRegister)
		r.With(read).Get("/assets", s.handleList)
		r.With(read).Get("/assets/{assetId}", s.handleGet)
		r.With(read).Get("/assets/by-name/{name}/{version}", s.handleGetByName)
		r.With(write).Patch("/assets/{assetId}", s.handleUpdate)
		r.With(write).Post("/assets/{assetId}:deprecate", s.handleDeprecate)
		r.With(write).Post("/assets/{assetId}:verify", s.handleVerify)
		r.With(del).Delete("/assets/{assetId}", s.handleDelete)

		r.With(depWrite).Post("/assets/{assetId}/dependencies", s.handleAddDependencies)
		r.With(depRead).Get("/assets/{assetId}/dependencies", s.handleDependencies)
		r.With(depRead).Get("/assets/{assetId}/dependents", s.handleDependents)
		r.With(depRead).Get("/assets/{assetId}/impact", s.handleImpact)
		r.With(depRead).Get("/assets/{assetId}/deploy-order", s.handleDeployOrder)

		r.With(eventRead).Get("/assets/{assetId}/events", s.handleHistory)
	})

	return r
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.Router() }
