package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modelpark/asset-registry/pkg/registry"
)

// Store provides database operations for asset records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the assets table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&AssetRecord{})
}

// Create inserts a new asset record inside the caller's transaction. A
// (name, version) collision surfaces as Conflict; the unique index is the
// authority, so concurrent registrations race safely.
func (s *Store) Create(tx *gorm.DB, record *AssetRecord) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return registry.NewConflictError(fmt.Sprintf(
				"asset %s@%s already exists", record.Name, record.Version))
		}
		return registry.NewStoreUnavailableError(fmt.Errorf("create asset: %w", err))
	}
	return nil
}

// GetByID loads an asset by its id.
func (s *Store) GetByID(tx *gorm.DB, id string) (*AssetRecord, error) {
	if tx == nil {
		tx = s.db
	}
	var record AssetRecord
	if err := tx.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, registry.NewNotFoundError(fmt.Sprintf("asset %s not found", id))
		}
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("get asset: %w", err))
	}
	return &record, nil
}

// GetByNameVersion loads an asset by its unique (name, version) pair.
func (s *Store) GetByNameVersion(tx *gorm.DB, name, version string) (*AssetRecord, error) {
	if tx == nil {
		tx = s.db
	}
	var record AssetRecord
	err := tx.First(&record, "name = ? AND version = ?", name, version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, registry.NewNotFoundError(fmt.Sprintf("asset %s@%s not found", name, version))
		}
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("get asset by name: %w", err))
	}
	return &record, nil
}

// Save persists the given columns of an existing record inside the
// caller's transaction.
func (s *Store) Save(tx *gorm.DB, id string, updates map[string]any) error {
	if tx == nil {
		tx = s.db
	}
	result := tx.Model(&AssetRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return registry.NewStoreUnavailableError(fmt.Errorf("update asset: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return registry.NewNotFoundError(fmt.Sprintf("asset %s not found", id))
	}
	return nil
}

// ListFilter narrows a List call. Zero values mean "no constraint".
type ListFilter struct {
	Type   string
	Status string
	Name   string
	Tag    string
}

// ListPage is one page of a listing.
type ListPage struct {
	Assets    []*registry.Asset
	NextToken string
	TotalSize int
}

// List returns assets matching the filter, newest first, with pageToken
// pagination over created_at. Deleted assets are excluded unless the
// filter asks for them explicitly.
func (s *Store) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) (*ListPage, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	db := s.db.WithContext(ctx)

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&AssetRecord{})
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		} else {
			q = q.Where("status <> ?", registry.StatusDeleted.String())
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		if filter.Tag != "" {
			// Tags are a JSON array; match the quoted element.
			q = q.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(db).Count(&totalSize).Error; err != nil {
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("count assets: %w", err))
	}

	query := buildQuery(db).Order("created_at DESC, id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, registry.NewValidationError(fmt.Sprintf("invalid page token %q", pageToken))
		}
		query = query.Where("created_at < ?", t)
	}

	var records []AssetRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("list assets: %w", err))
	}

	page := &ListPage{TotalSize: int(totalSize)}
	if len(records) > pageSize {
		page.NextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	for i := range records {
		page.Assets = append(page.Assets, records[i].toAsset())
	}
	return page, nil
}
