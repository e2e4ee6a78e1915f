package registry

import "time"

// Asset is a versioned, checksummed unit of registry content. (Name,
// Version) is unique across the registry; ID is the primary key.
type Asset struct {
	ID      AssetID     `json:"id"`
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Type    AssetType   `json:"type"`
	Status  AssetStatus `json:"status"`

	Description string            `json:"description,omitempty"`
	License     string            `json:"license,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`

	Storage    StorageLocation `json:"storage"`
	Checksum   Checksum        `json:"checksum"`
	Signature  Signature       `json:"signature,omitempty"`
	Provenance Provenance      `json:"provenance,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// FullName is the human identifier name@version.
func (a *Asset) FullName() string { return a.Name + "@" + a.Version }

// IsActive reports whether the asset is in the active state.
func (a *Asset) IsActive() bool { return a.Status == StatusActive }

// IsDeleted reports whether the asset has been soft-deleted.
func (a *Asset) IsDeleted() bool { return a.Status == StatusDeleted }

// HasTag reports whether the asset carries the given tag.
func (a *Asset) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the invariants that hold for every persisted asset.
func (a *Asset) Validate() error {
	if a.Name == "" {
		return NewValidationError("asset name cannot be empty")
	}
	if a.Version == "" {
		return NewValidationError("asset version cannot be empty")
	}
	if err := a.Type.Validate(); err != nil {
		return err
	}
	if a.Checksum.IsZero() {
		return NewValidationError("checksum is mandatory")
	}
	if err := a.Checksum.Validate(); err != nil {
		return err
	}
	if err := a.Storage.Validate(); err != nil {
		return err
	}
	if !a.Provenance.IsZero() {
		if err := a.Provenance.Validate(); err != nil {
			return err
		}
	}
	if !a.Signature.IsZero() && a.Signature.KeyID == "" {
		return NewValidationError("signature present without key id")
	}
	return nil
}

// AssetRef is a lightweight reference to an asset, used in dependency
// listings.
type AssetRef struct {
	ID      AssetID     `json:"id"`
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Status  AssetStatus `json:"status"`
}
