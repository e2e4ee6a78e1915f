package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/modelpark/asset-registry/pkg/registry"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the wire form of a rejected operation.
type errorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Field      string   `json:"field,omitempty"`
	CyclePath  []string `json:"cycle_path,omitempty"`
	RetryAfter string   `json:"retry_after,omitempty"`
}

// writeError maps a registry error to its HTTP status and serializes the
// typed detail. Unclassified errors are reported as 500 without leaking
// internals.
func writeError(w http.ResponseWriter, err error) {
	var regErr *registry.Error
	if !errors.As(err, &regErr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    "INTERNAL",
			Message: "internal error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch regErr.Code {
	case registry.CodeValidation:
		status = http.StatusBadRequest
	case registry.CodeNotFound:
		status = http.StatusNotFound
	case registry.CodeConflict, registry.CodeCycle, registry.CodeInvalidTransition:
		status = http.StatusConflict
	case registry.CodeIntegrityFailure, registry.CodeImmutableField:
		status = http.StatusUnprocessableEntity
	case registry.CodePermissionDenied:
		status = http.StatusForbidden
	case registry.CodeRateLimited:
		status = http.StatusTooManyRequests
	case registry.CodeStoreUnavailable, registry.CodeBusUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := errorBody{
		Code:      string(regErr.Code),
		Message:   regErr.Message,
		Field:     regErr.Field,
		CyclePath: regErr.CyclePath,
	}
	if regErr.RetryAfter > 0 {
		body.RetryAfter = regErr.RetryAfter.String()
		seconds := int(regErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, status, body)
}
