package server

import (
	"encoding/json"

	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/lifecycle"
	"github.com/modelpark/asset-registry/pkg/registry"
)

// registerRequest is the wire form of a registration.
type registerRequest struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	License     string            `json:"license"`
	ContentType string            `json:"content_type"`
	Tags        []string          `json:"tags"`
	Annotations map[string]string `json:"annotations"`

	Storage    registry.StorageLocation `json:"storage"`
	Checksum   registry.Checksum        `json:"checksum"`
	Signature  registry.Signature       `json:"signature"`
	Provenance registry.Provenance      `json:"provenance"`

	Dependencies []dependencyRequest `json:"dependencies"`
}

type dependencyRequest struct {
	DependencyID      string `json:"dependency_id"`
	DependencyType    string `json:"dependency_type"`
	VersionConstraint string `json:"version_constraint"`
}

func (r *registerRequest) toSpec() *lifecycle.RegisterSpec {
	spec := &lifecycle.RegisterSpec{
		Name:        r.Name,
		Version:     r.Version,
		Type:        registry.AssetType(r.Type),
		Description: r.Description,
		License:     r.License,
		ContentType: r.ContentType,
		Tags:        r.Tags,
		Annotations: r.Annotations,
		Storage:     r.Storage,
		Checksum:    r.Checksum,
		Signature:   r.Signature,
		Provenance:  r.Provenance,
	}
	for _, d := range r.Dependencies {
		spec.Dependencies = append(spec.Dependencies, graph.EdgeSpec{
			DependencyID:      d.DependencyID,
			DependencyType:    graph.DependencyType(d.DependencyType),
			VersionConstraint: d.VersionConstraint,
		})
	}
	return spec
}

// immutableFields are asset fields a PATCH may never touch.
var immutableFields = []string{
	"id", "name", "version", "type", "status",
	"checksum", "storage", "signature",
	"created_at", "updated_at", "deprecated_at",
}

// updateRequest is the wire form of a metadata patch. Raw is kept so
// attempts to patch immutable fields can be named in the rejection.
type updateRequest struct {
	Description *string              `json:"description"`
	License     *string              `json:"license"`
	ContentType *string              `json:"content_type"`
	Tags        []string             `json:"tags"`
	Annotations map[string]string    `json:"annotations"`
	Provenance  *registry.Provenance `json:"provenance"`
}

// decodeUpdate parses a patch body and rejects immutable fields before
// anything reaches the manager.
func decodeUpdate(body []byte) (*lifecycle.UpdatePatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, registry.NewValidationError("malformed patch body")
	}
	for _, field := range immutableFields {
		if _, present := raw[field]; present {
			return nil, registry.NewImmutableFieldError(field)
		}
	}

	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, registry.NewValidationError("malformed patch body")
	}
	return &lifecycle.UpdatePatch{
		Description: req.Description,
		License:     req.License,
		ContentType: req.ContentType,
		Tags:        req.Tags,
		Annotations: req.Annotations,
		Provenance:  req.Provenance,
	}, nil
}
