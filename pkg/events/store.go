package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modelpark/asset-registry/pkg/registry"
)

type correlationIDKey struct{}

// WithCorrelationID returns a context whose events are stamped with the
// given request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// Store provides database operations for the event log.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the registry_events table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Event{})
}

// Append writes an event inside the caller's transaction so the event
// commits or rolls back together with the state change it records. The
// event id and timestamp are assigned here when unset.
func (s *Store) Append(ctx context.Context, tx *gorm.DB, ev *Event) error {
	if tx == nil {
		tx = s.db.WithContext(ctx)
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.Actor == "" {
		ev.Actor = "system"
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = CorrelationIDFromContext(ctx)
	}
	if err := tx.Create(ev).Error; err != nil {
		return registry.NewStoreUnavailableError(fmt.Errorf("append event: %w", err))
	}
	return nil
}

// HistoryPage is one page of an asset's event history.
type HistoryPage struct {
	Events    []Event
	NextToken string
}

// HistoryOf returns the events for an asset in ascending emission order.
// The returned NextToken resumes the scan after the last event of the
// page; an empty token means the history is exhausted.
func (s *Store) HistoryOf(ctx context.Context, assetID string, pageSize int, pageToken string) (*HistoryPage, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	query := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("id ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("id > ?", pageToken)
	}

	var records []Event
	if err := query.Find(&records).Error; err != nil {
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("list events: %w", err))
	}

	page := &HistoryPage{Events: records}
	if len(records) > pageSize {
		page.Events = records[:pageSize]
		page.NextToken = records[pageSize-1].ID
	}
	return page, nil
}

// Get retrieves a single event by id.
func (s *Store) Get(ctx context.Context, eventID string) (*Event, error) {
	var ev Event
	if err := s.db.WithContext(ctx).First(&ev, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, registry.NewNotFoundError(fmt.Sprintf("event %s not found", eventID))
		}
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("get event: %w", err))
	}
	return &ev, nil
}

// Unpublished returns up to limit committed events the dispatcher has not
// relayed to the bus yet, oldest first.
func (s *Store) Unpublished(ctx context.Context, limit int) ([]Event, error) {
	var records []Event
	err := s.db.WithContext(ctx).Where("published_at IS NULL").Order("id ASC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return records, nil
}

// MarkPublished stamps published_at on the given events.
func (s *Store) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Event{}).Where("id IN ?", eventIDs).Update("published_at", now)
	if result.Error != nil {
		return fmt.Errorf("mark events published: %w", result.Error)
	}
	return nil
}
