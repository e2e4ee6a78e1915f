package lifecycle

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelpark/asset-registry/pkg/registry"
)

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringSlice: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONStringMap is a custom GORM type for map[string]string stored as JSON.
type JSONStringMap map[string]string

// Scan implements the sql.Scanner interface for JSONStringMap.
func (m *JSONStringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONStringMap.
func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// AssetRecord is the GORM model backing registry.Asset. Structured fields
// are flattened into columns so lookups and the graph engine's joins can
// index them directly.
type AssetRecord struct {
	ID      string `gorm:"primaryKey;column:id;type:varchar(26)"`
	Name    string `gorm:"column:name;uniqueIndex:idx_asset_name_version,priority:1;not null"`
	Version string `gorm:"column:version;uniqueIndex:idx_asset_name_version,priority:2;not null"`
	Type    string `gorm:"column:type;index:idx_asset_type;not null"`
	Status  string `gorm:"column:status;index:idx_asset_status;not null;default:active"`

	Description string          `gorm:"column:description"`
	License     string          `gorm:"column:license"`
	ContentType string          `gorm:"column:content_type"`
	Tags        JSONStringSlice `gorm:"column:tags;type:text"`
	Annotations JSONStringMap   `gorm:"column:annotations;type:text"`

	StorageBackend string `gorm:"column:storage_backend;not null"`
	StorageURI     string `gorm:"column:storage_uri;not null"`
	SizeBytes      *int64 `gorm:"column:size_bytes"`

	ChecksumAlgorithm  string `gorm:"column:checksum_algorithm;not null"`
	ChecksumValue      string `gorm:"column:checksum_value;not null"`
	SignatureAlgorithm string `gorm:"column:signature_algorithm"`
	SignatureValue     []byte `gorm:"column:signature_value"`
	SignatureKeyID     string `gorm:"column:signature_key_id"`

	SourceRepo    string        `gorm:"column:source_repo"`
	CommitHash    string        `gorm:"column:commit_hash"`
	BuildID       string        `gorm:"column:build_id"`
	Author        string        `gorm:"column:author"`
	BuildMetadata JSONStringMap `gorm:"column:build_metadata;type:text"`

	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
	DeprecatedAt *time.Time `gorm:"column:deprecated_at"`
}

// TableName returns the GORM table name. The graph engine joins against
// this name directly.
func (AssetRecord) TableName() string { return "assets" }

// recordFromAsset flattens a domain asset into its storage form.
func recordFromAsset(a *registry.Asset) *AssetRecord {
	return &AssetRecord{
		ID:      a.ID.String(),
		Name:    a.Name,
		Version: a.Version,
		Type:    a.Type.String(),
		Status:  a.Status.String(),

		Description: a.Description,
		License:     a.License,
		ContentType: a.ContentType,
		Tags:        JSONStringSlice(a.Tags),
		Annotations: JSONStringMap(a.Annotations),

		StorageBackend: string(a.Storage.Backend),
		StorageURI:     a.Storage.URI,
		SizeBytes:      a.Storage.SizeBytes,

		ChecksumAlgorithm:  string(a.Checksum.Algorithm),
		ChecksumValue:      a.Checksum.Value,
		SignatureAlgorithm: a.Signature.Algorithm,
		SignatureValue:     a.Signature.Value,
		SignatureKeyID:     a.Signature.KeyID,

		SourceRepo:    a.Provenance.SourceRepo,
		CommitHash:    a.Provenance.CommitHash,
		BuildID:       a.Provenance.BuildID,
		Author:        a.Provenance.Author,
		BuildMetadata: JSONStringMap(a.Provenance.BuildMetadata),

		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		DeprecatedAt: a.DeprecatedAt,
	}
}

// toAsset rebuilds the domain asset from its storage form.
func (r *AssetRecord) toAsset() *registry.Asset {
	return &registry.Asset{
		ID:      registry.AssetID(r.ID),
		Name:    r.Name,
		Version: r.Version,
		Type:    registry.AssetType(r.Type),
		Status:  registry.AssetStatus(r.Status),

		Description: r.Description,
		License:     r.License,
		ContentType: r.ContentType,
		Tags:        []string(r.Tags),
		Annotations: map[string]string(r.Annotations),

		Storage: registry.StorageLocation{
			Backend:   registry.StorageBackend(r.StorageBackend),
			URI:       r.StorageURI,
			SizeBytes: r.SizeBytes,
		},
		Checksum: registry.Checksum{
			Algorithm: registry.HashAlgorithm(r.ChecksumAlgorithm),
			Value:     r.ChecksumValue,
		},
		Signature: registry.Signature{
			Algorithm: r.SignatureAlgorithm,
			Value:     r.SignatureValue,
			KeyID:     r.SignatureKeyID,
		},
		Provenance: registry.Provenance{
			SourceRepo:    r.SourceRepo,
			CommitHash:    r.CommitHash,
			BuildID:       r.BuildID,
			Author:        r.Author,
			BuildMetadata: map[string]string(r.BuildMetadata),
		},

		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		DeprecatedAt: r.DeprecatedAt,
	}
}
