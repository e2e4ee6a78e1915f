package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/modelpark/asset-registry/pkg/lifecycle"
	"github.com/modelpark/asset-registry/pkg/registry"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, registry.NewValidationError("malformed request body"))
		return
	}
	actor := IdentityFromContext(r.Context()).User

	asset, err := s.manager.Register(r.Context(), actor, req.toSpec())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	asset, err := s.manager.Get(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleGetByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	asset, err := s.manager.GetByNameVersion(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := lifecycle.ListFilter{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
		Name:   r.URL.Query().Get("name"),
		Tag:    r.URL.Query().Get("tag"),
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	page, err := s.manager.List(r.Context(), filter, pageSize, r.URL.Query().Get("pageToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":        page.Assets,
		"nextPageToken": page.NextToken,
		"totalSize":     page.TotalSize,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, registry.NewValidationError("malformed request body"))
		return
	}
	patch, err := decodeUpdate(body)
	if err != nil {
		writeError(w, err)
		return
	}
	actor := IdentityFromContext(r.Context()).User

	asset, err := s.manager.Update(r.Context(), actor, chi.URLParam(r, "assetId"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleDeprecate(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context()).User
	asset, err := s.manager.Deprecate(r.Context(), actor, chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	actor := IdentityFromContext(r.Context()).User

	if err := s.manager.Delete(r.Context(), actor, chi.URLParam(r, "assetId"), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddDependencies(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dependencies []dependencyRequest `json:"dependencies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, registry.NewValidationError("malformed request body"))
		return
	}
	specs := (&registerRequest{Dependencies: req.Dependencies}).toSpec().Dependencies
	actor := IdentityFromContext(r.Context()).User

	if err := s.manager.AddDependencies(r.Context(), actor, chi.URLParam(r, "assetId"), specs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	deps, err := s.manager.Dependencies(r.Context(), chi.URLParam(r, "assetId"), depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependencies": deps})
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	dependents, err := s.graph.DependentsOf(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependents": dependents})
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	impact, err := s.graph.ImpactAnalysis(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"impacted": impact})
}

func (s *Server) handleDeployOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.graph.TopologicalSort(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	page, err := s.manager.History(r.Context(), chi.URLParam(r, "assetId"),
		pageSize, r.URL.Query().Get("pageToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        page.Events,
		"nextPageToken": page.NextToken,
	})
}

// handleVerify streams the request body through the asset's stored
// checksum and records the outcome.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context()).User
	if err := s.manager.VerifyContent(r.Context(), actor, chi.URLParam(r, "assetId"), r.Body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
