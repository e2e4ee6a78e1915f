// Package events provides the append-only audit log for registry changes
// and the outbox dispatcher that relays committed events to the message bus.
package events

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies what happened to an asset.
type Type string

const (
	TypeAssetRegistered    Type = "asset_registered"
	TypeAssetUpdated       Type = "asset_updated"
	TypeAssetStatusChanged Type = "asset_status_changed"
	TypeAssetDeleted       Type = "asset_deleted"
	TypeDependencyAdded    Type = "dependency_added"
	TypeChecksumVerified   Type = "checksum_verified"
	TypeChecksumFailed     Type = "checksum_failed"
	TypeCycleDetected      Type = "cycle_detected"
)

var eventEntropy = struct {
	mu sync.Mutex
	r  *ulid.MonotonicEntropy
}{r: ulid.Monotonic(rand.Reader, 0)}

// NewEventID returns a ULID so events sort lexicographically in emission order.
func NewEventID() string {
	eventEntropy.mu.Lock()
	defer eventEntropy.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), eventEntropy.r).String()
}

// JSONPayload is a custom GORM type for map[string]any stored as JSON.
type JSONPayload map[string]any

// Scan implements the sql.Scanner interface for JSONPayload.
func (m *JSONPayload) Scan(value any) error {
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
		return fmt.Errorf("unsupported type for JSONPayload: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONPayload.
func (m JSONPayload) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Event is the GORM model for one audit log entry. Rows are append-only:
// nothing in the registry ever updates or deletes them, except the
// dispatcher stamping published_at.
type Event struct {
	ID            string      `json:"id" gorm:"primaryKey;column:id;type:varchar(26)"`
	AssetID       string      `json:"asset_id" gorm:"column:asset_id;index:idx_event_asset;not null"`
	Type          Type        `json:"type" gorm:"column:type;index:idx_event_type;not null"`
	Actor         string      `json:"actor" gorm:"column:actor;not null"`
	CorrelationID string      `json:"correlation_id,omitempty" gorm:"column:correlation_id"`
	Payload       JSONPayload `json:"payload,omitempty" gorm:"column:payload;type:text"`
	OccurredAt    time.Time   `json:"occurred_at" gorm:"column:occurred_at;not null"`
	PublishedAt   *time.Time  `json:"published_at,omitempty" gorm:"column:published_at;index:idx_event_published"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "registry_events" }
