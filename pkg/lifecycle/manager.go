package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/modelpark/asset-registry/pkg/cache"
	"github.com/modelpark/asset-registry/pkg/events"
	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/integrity"
	"github.com/modelpark/asset-registry/pkg/registry"
)

// ManagerOptions tune the lifecycle manager.
type ManagerOptions struct {
	Machine  MachineOptions
	CacheTTL time.Duration
}

// Manager is the single owner of asset and dependency-edge mutation.
// Every write runs in one store transaction together with its audit
// event; the cache is invalidated only after a successful commit.
type Manager struct {
	db       *gorm.DB
	store    *Store
	graph    *graph.Engine
	events   *events.Store
	cache    cache.Cache
	verifier *integrity.Verifier
	machine  *Machine
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewManager wires the lifecycle manager. cache and verifier may be nil;
// caching and signature verification are then skipped.
func NewManager(db *gorm.DB, store *Store, graphEngine *graph.Engine, eventStore *events.Store,
	assetCache cache.Cache, verifier *integrity.Verifier, opts ManagerOptions, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Manager{
		db:       db,
		store:    store,
		graph:    graphEngine,
		events:   eventStore,
		cache:    assetCache,
		verifier: verifier,
		machine:  NewMachine(opts.Machine),
		logger:   logger,
		cacheTTL: opts.CacheTTL,
	}
}

// Register validates, verifies, and persists a new asset together with
// its dependency edges and its audit event, all in one transaction.
func (m *Manager) Register(ctx context.Context, actor string, spec *RegisterSpec) (*registry.Asset, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Content != nil {
		if err := integrity.VerifyChecksum(spec.Checksum, spec.Content); err != nil {
			return nil, err
		}
	}
	if !spec.Signature.IsZero() {
		// A signature the server cannot check must never pass silently.
		if m.verifier == nil {
			return nil, registry.NewValidationError("signature supplied but no signing keys are configured")
		}
		payload := integrity.CanonicalPayload(spec.Checksum, spec.Name, spec.Version, spec.Storage.URI)
		if err := m.verifier.VerifySignature(ctx, spec.Signature, payload); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	asset := &registry.Asset{
		ID:          registry.NewAssetID(),
		Name:        spec.Name,
		Version:     spec.Version,
		Type:        spec.Type,
		Status:      registry.StatusActive,
		Description: spec.Description,
		License:     spec.License,
		ContentType: spec.ContentType,
		Tags:        spec.Tags,
		Annotations: spec.Annotations,
		Storage:     spec.Storage,
		Checksum:    spec.Checksum,
		Signature:   spec.Signature,
		Provenance:  spec.Provenance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := m.store.GetByNameVersion(tx, spec.Name, spec.Version); err == nil {
			return registry.NewConflictError(fmt.Sprintf("asset %s@%s already exists", spec.Name, spec.Version))
		} else if registry.CodeOf(err) != registry.CodeNotFound {
			return err
		}
		if err := m.store.Create(tx, recordFromAsset(asset)); err != nil {
			return err
		}
		if err := m.graph.AddEdges(ctx, tx, asset.ID.String(), spec.Dependencies); err != nil {
			return err
		}
		if err := m.events.Append(ctx, tx, &events.Event{
			AssetID: asset.ID.String(),
			Type:    events.TypeAssetRegistered,
			Actor:   actor,
			Payload: events.JSONPayload{
				"name":     asset.Name,
				"version":  asset.Version,
				"type":     asset.Type.String(),
				"checksum": asset.Checksum.String(),
			},
		}); err != nil {
			return err
		}
		if len(spec.Dependencies) > 0 {
			if err := m.events.Append(ctx, tx, &events.Event{
				AssetID: asset.ID.String(),
				Type:    events.TypeDependencyAdded,
				Actor:   actor,
				Payload: events.JSONPayload{"dependency_ids": dependencyIDs(spec.Dependencies)},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if registry.CodeOf(err) == registry.CodeCycle {
			m.recordCycle(ctx, asset.ID.String(), actor, err)
		}
		return nil, err
	}

	m.invalidate(ctx, asset)
	m.logger.Info("asset registered",
		"assetID", asset.ID.String(),
		"name", asset.FullName(),
		"type", asset.Type.String(),
		"actor", actor)
	return asset, nil
}

// Update applies a metadata patch. Name, version, checksum, and storage
// are immutable; provenance is write-once and may only be supplied here
// if the asset was registered without it.
func (m *Manager) Update(ctx context.Context, actor string, id string, patch *UpdatePatch) (*registry.Asset, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, registry.NewValidationError("update patch is empty")
	}

	var updated *registry.Asset
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := m.loadLive(tx, id)
		if err != nil {
			return err
		}

		columns := map[string]any{}
		var changed []string
		if patch.Description != nil {
			columns["description"] = *patch.Description
			changed = append(changed, "description")
		}
		if patch.License != nil {
			columns["license"] = *patch.License
			changed = append(changed, "license")
		}
		if patch.ContentType != nil {
			columns["content_type"] = *patch.ContentType
			changed = append(changed, "content_type")
		}
		if patch.Tags != nil {
			columns["tags"] = JSONStringSlice(patch.Tags)
			changed = append(changed, "tags")
		}
		if patch.Annotations != nil {
			columns["annotations"] = JSONStringMap(patch.Annotations)
			changed = append(changed, "annotations")
		}
		if patch.Provenance != nil {
			existing := record.toAsset().Provenance
			if !existing.IsZero() {
				return registry.NewImmutableFieldError("provenance")
			}
			if err := patch.Provenance.Validate(); err != nil {
				return err
			}
			columns["source_repo"] = patch.Provenance.SourceRepo
			columns["commit_hash"] = patch.Provenance.CommitHash
			columns["build_id"] = patch.Provenance.BuildID
			columns["author"] = patch.Provenance.Author
			columns["build_metadata"] = JSONStringMap(patch.Provenance.BuildMetadata)
			changed = append(changed, "provenance")
		}
		columns["updated_at"] = time.Now().UTC()

		if err := m.store.Save(tx, id, columns); err != nil {
			return err
		}
		if err := m.events.Append(ctx, tx, &events.Event{
			AssetID: id,
			Type:    events.TypeAssetUpdated,
			Actor:   actor,
			Payload: events.JSONPayload{"fields": changed},
		}); err != nil {
			return err
		}

		record, err = m.store.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = record.toAsset()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, updated)
	return updated, nil
}

// Deprecate moves an asset to deprecated and stamps deprecated_at exactly
// once. Re-deprecating, or deprecating an archived or deleted asset, is
// an InvalidTransition.
func (m *Manager) Deprecate(ctx context.Context, actor string, id string) (*registry.Asset, error) {
	var updated *registry.Asset
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := m.store.GetByID(tx, id)
		if err != nil {
			return err
		}
		from := registry.AssetStatus(record.Status)
		if err := m.machine.ValidateTransition(from, registry.StatusDeprecated); err != nil {
			return err
		}

		now := time.Now().UTC()
		columns := map[string]any{
			"status":     registry.StatusDeprecated.String(),
			"updated_at": now,
		}
		if record.DeprecatedAt == nil {
			columns["deprecated_at"] = now
		}
		if err := m.store.Save(tx, id, columns); err != nil {
			return err
		}
		if err := m.events.Append(ctx, tx, &events.Event{
			AssetID: id,
			Type:    events.TypeAssetStatusChanged,
			Actor:   actor,
			Payload: events.JSONPayload{"from": from.String(), "to": registry.StatusDeprecated.String()},
		}); err != nil {
			return err
		}

		record, err = m.store.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = record.toAsset()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, updated)
	return updated, nil
}

// Delete soft-deletes an asset: archived without force, deleted with.
// Either way the asset must have no non-deleted dependents; force skips
// the status machine's deprecation detour, never the dependents guard.
func (m *Manager) Delete(ctx context.Context, actor string, id string, force bool) error {
	target := registry.StatusArchived
	if force {
		target = registry.StatusDeleted
	}

	var deleted *registry.Asset
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := m.store.GetByID(tx, id)
		if err != nil {
			return err
		}
		from := registry.AssetStatus(record.Status)
		if err := m.machine.ValidateTransition(from, target); err != nil {
			return err
		}

		hasDependents, err := m.graph.HasActiveDependents(ctx, tx, id)
		if err != nil {
			return err
		}
		if hasDependents {
			return registry.NewConflictError(fmt.Sprintf(
				"asset %s@%s still has active dependents", record.Name, record.Version))
		}

		if err := m.store.Save(tx, id, map[string]any{
			"status":     target.String(),
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := m.events.Append(ctx, tx, &events.Event{
			AssetID: id,
			Type:    events.TypeAssetDeleted,
			Actor:   actor,
			Payload: events.JSONPayload{"from": from.String(), "to": target.String(), "force": force},
		}); err != nil {
			return err
		}
		deleted = record.toAsset()
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx, deleted)
	// Any cached dependency closure may include the deleted asset.
	if m.cache != nil {
		if err := m.cache.DeletePattern(ctx, "deps:*"); err != nil {
			m.logger.Warn("dependency cache invalidation failed", "error", err)
		}
	}
	m.logger.Info("asset deleted",
		"assetID", id,
		"name", deleted.FullName(),
		"target", target.String(),
		"force", force,
		"actor", actor)
	return nil
}

// AddDependencies admits new edges from an existing asset, atomically
// with their audit event.
func (m *Manager) AddDependencies(ctx context.Context, actor string, id string, specs []graph.EdgeSpec) error {
	if len(specs) == 0 {
		return registry.NewValidationError("no dependencies given")
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := m.loadLive(tx, id); err != nil {
			return err
		}
		if err := m.graph.AddEdges(ctx, tx, id, specs); err != nil {
			return err
		}
		return m.events.Append(ctx, tx, &events.Event{
			AssetID: id,
			Type:    events.TypeDependencyAdded,
			Actor:   actor,
			Payload: events.JSONPayload{"dependency_ids": dependencyIDs(specs)},
		})
	})
	if err != nil {
		if registry.CodeOf(err) == registry.CodeCycle {
			m.recordCycle(ctx, id, actor, err)
		}
		return err
	}

	if m.cache != nil {
		if err := m.cache.DeletePattern(ctx, "deps:*"); err != nil {
			m.logger.Warn("dependency cache invalidation failed", "error", err)
		}
	}
	return nil
}

// VerifyContent recomputes the stored checksum over the supplied content
// and records the outcome in the event log.
func (m *Manager) VerifyContent(ctx context.Context, actor string, id string, content io.Reader) error {
	record, err := m.store.GetByID(m.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	asset := record.toAsset()

	verifyErr := integrity.VerifyChecksum(asset.Checksum, content)
	eventType := events.TypeChecksumVerified
	payload := events.JSONPayload{"checksum": asset.Checksum.String()}
	if verifyErr != nil {
		eventType = events.TypeChecksumFailed
		payload["error"] = verifyErr.Error()
	}
	if err := m.events.Append(ctx, nil, &events.Event{
		AssetID: id,
		Type:    eventType,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		m.logger.Error("failed to record checksum verification", "assetID", id, "error", err)
	}
	return verifyErr
}

// Get loads an asset by id, read-through the cache. Deleted assets are
// reported as not found.
func (m *Manager) Get(ctx context.Context, id string) (*registry.Asset, error) {
	if asset := m.cached(ctx, cache.AssetIDKey(id)); asset != nil {
		return asset, nil
	}
	record, err := m.store.GetByID(m.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	asset := record.toAsset()
	if asset.IsDeleted() {
		return nil, registry.NewNotFoundError(fmt.Sprintf("asset %s not found", id))
	}
	m.fill(ctx, asset)
	return asset, nil
}

// GetByNameVersion loads an asset by its unique (name, version) pair.
func (m *Manager) GetByNameVersion(ctx context.Context, name, version string) (*registry.Asset, error) {
	if asset := m.cached(ctx, cache.AssetNameKey(name, version)); asset != nil {
		return asset, nil
	}
	record, err := m.store.GetByNameVersion(m.db.WithContext(ctx), name, version)
	if err != nil {
		return nil, err
	}
	asset := record.toAsset()
	if asset.IsDeleted() {
		return nil, registry.NewNotFoundError(fmt.Sprintf("asset %s@%s not found", name, version))
	}
	m.fill(ctx, asset)
	return asset, nil
}

// List returns assets matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) (*ListPage, error) {
	return m.store.List(ctx, filter, pageSize, pageToken)
}

// History returns the asset's event log in emission order.
func (m *Manager) History(ctx context.Context, id string, pageSize int, pageToken string) (*events.HistoryPage, error) {
	return m.events.HistoryOf(ctx, id, pageSize, pageToken)
}

// Dependencies returns the asset's dependency closure. The unbounded
// closure is served read-through the cache; depth-limited queries always
// hit the store, so invalidation only ever has one key per asset to drop.
func (m *Manager) Dependencies(ctx context.Context, id string, maxDepth int) ([]graph.Dependency, error) {
	if maxDepth > 0 {
		return m.graph.DependenciesOf(ctx, id, maxDepth)
	}

	key := cache.DepsKey(id)
	if m.cache != nil {
		raw, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			m.logger.Warn("cache read failed", "key", key, "error", err)
		} else if ok {
			var deps []graph.Dependency
			if err := json.Unmarshal(raw, &deps); err == nil {
				return deps, nil
			}
			m.logger.Warn("cache entry corrupt, dropping", "key", key)
			_ = m.cache.Delete(ctx, key)
		}
	}

	deps, err := m.graph.DependenciesOf(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if raw, err := json.Marshal(deps); err == nil {
			if err := m.cache.Set(ctx, key, raw, m.cacheTTL); err != nil {
				m.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
	}
	return deps, nil
}

// loadLive loads a record and rejects deleted assets.
func (m *Manager) loadLive(tx *gorm.DB, id string) (*AssetRecord, error) {
	record, err := m.store.GetByID(tx, id)
	if err != nil {
		return nil, err
	}
	if registry.AssetStatus(record.Status) == registry.StatusDeleted {
		return nil, registry.NewNotFoundError(fmt.Sprintf("asset %s not found", id))
	}
	return record, nil
}

// recordCycle appends a cycle_detected event outside the failed
// transaction so rejected admissions still leave an audit trace.
func (m *Manager) recordCycle(ctx context.Context, assetID, actor string, cycleErr error) {
	payload := events.JSONPayload{"error": cycleErr.Error()}
	var regErr *registry.Error
	if errors.As(cycleErr, &regErr) && len(regErr.CyclePath) > 0 {
		payload["cycle_path"] = regErr.CyclePath
	}
	if err := m.events.Append(ctx, nil, &events.Event{
		AssetID: assetID,
		Type:    events.TypeCycleDetected,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		m.logger.Error("failed to record cycle event", "assetID", assetID, "error", err)
	}
}

// cached returns the asset under key, or nil on miss or backend trouble.
func (m *Manager) cached(ctx context.Context, key string) *registry.Asset {
	if m.cache == nil {
		return nil
	}
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var asset registry.Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		m.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		_ = m.cache.Delete(ctx, key)
		return nil
	}
	return &asset
}

// fill stores the asset under both of its lookup keys, best-effort.
func (m *Manager) fill(ctx context.Context, asset *registry.Asset) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(asset)
	if err != nil {
		return
	}
	for _, key := range []string{
		cache.AssetIDKey(asset.ID.String()),
		cache.AssetNameKey(asset.Name, asset.Version),
	} {
		if err := m.cache.Set(ctx, key, raw, m.cacheTTL); err != nil {
			m.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
}

// invalidate drops every cache entry for the asset after a commit.
func (m *Manager) invalidate(ctx context.Context, asset *registry.Asset) {
	if m.cache == nil || asset == nil {
		return
	}
	err := m.cache.Delete(ctx,
		cache.AssetIDKey(asset.ID.String()),
		cache.AssetNameKey(asset.Name, asset.Version),
		cache.DepsKey(asset.ID.String()))
	if err != nil {
		m.logger.Warn("cache invalidation failed", "assetID", asset.ID.String(), "error", err)
	}
}

func dependencyIDs(specs []graph.EdgeSpec) []string {
	ids := make([]string, len(specs))
	for i, spec := range specs {
		ids[i] = spec.DependencyID
	}
	return ids
}
