// Package registry defines the core domain types of the asset registry:
// asset identity, lifecycle status, checksums, provenance, and storage
// locations. It has no I/O and no dependencies on the persistence layer.
package registry

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AssetID is a ULID: 26 characters, globally unique, and lexicographically
// sortable by creation time.
type AssetID string

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewAssetID generates a new time-ordered asset identifier.
func NewAssetID() AssetID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return AssetID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// ParseAssetID validates and returns an AssetID from its string form.
func ParseAssetID(s string) (AssetID, error) {
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid asset id %q: %v", s, err))
	}
	return AssetID(s), nil
}

func (id AssetID) String() string { return string(id) }

// AssetType classifies what kind of artifact an asset is. The set is open:
// values outside the predefined constants are accepted as custom types as
// long as they are non-empty.
type AssetType string

const (
	TypeModel     AssetType = "model"
	TypePipeline  AssetType = "pipeline"
	TypeDataset   AssetType = "dataset"
	TypePolicy    AssetType = "policy"
	TypeTestSuite AssetType = "test_suite"
)

// Validate checks that the asset type is usable.
func (t AssetType) Validate() error {
	if t == "" {
		return NewValidationError("asset type cannot be empty")
	}
	return nil
}

func (t AssetType) String() string { return string(t) }

// AssetStatus is the lifecycle state of an asset. Transitions only move
// forward; see lifecycle.Transitions for the rule table.
type AssetStatus string

const (
	StatusActive     AssetStatus = "active"
	StatusDeprecated AssetStatus = "deprecated"
	StatusArchived   AssetStatus = "archived"
	StatusDeleted    AssetStatus = "deleted"
)

// ParseAssetStatus converts a stored string into an AssetStatus.
func ParseAssetStatus(s string) (AssetStatus, error) {
	switch AssetStatus(s) {
	case StatusActive, StatusDeprecated, StatusArchived, StatusDeleted:
		return AssetStatus(s), nil
	default:
		return "", NewValidationError(fmt.Sprintf("invalid asset status %q", s))
	}
}

func (s AssetStatus) String() string { return string(s) }
