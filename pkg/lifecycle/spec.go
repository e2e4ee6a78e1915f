package lifecycle

import (
	"io"

	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/registry"
)

// RegisterSpec is the full input to Register. Server-assigned fields (id,
// status, timestamps) are absent: registration is the only producer of an
// active asset.
type RegisterSpec struct {
	Name        string
	Version     string
	Type        registry.AssetType
	Description string
	License     string
	ContentType string
	Tags        []string
	Annotations map[string]string

	Storage    registry.StorageLocation
	Checksum   registry.Checksum
	Signature  registry.Signature
	Provenance registry.Provenance

	// Dependencies are admitted atomically with the asset itself.
	Dependencies []graph.EdgeSpec

	// Content, when non-nil, is read once to recompute and verify the
	// declared checksum before anything is persisted.
	Content io.Reader
}

// Validate checks the spec before any store access.
func (s *RegisterSpec) Validate() error {
	probe := registry.Asset{
		Name:       s.Name,
		Version:    s.Version,
		Type:       s.Type,
		Storage:    s.Storage,
		Checksum:   s.Checksum,
		Signature:  s.Signature,
		Provenance: s.Provenance,
	}
	return probe.Validate()
}

// UpdatePatch carries the mutable metadata fields of an asset. Nil means
// "leave unchanged". Provenance may be set once on an asset registered
// without it; any later change is rejected.
type UpdatePatch struct {
	Description *string
	License     *string
	ContentType *string
	Tags        []string
	Annotations map[string]string
	Provenance  *registry.Provenance
}

// IsEmpty reports whether the patch changes nothing.
func (p *UpdatePatch) IsEmpty() bool {
	return p.Description == nil && p.License == nil && p.ContentType == nil &&
		p.Tags == nil && p.Annotations == nil && p.Provenance == nil
}
