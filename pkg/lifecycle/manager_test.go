package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/modelpark/asset-registry/pkg/cache"
	"github.com/modelpark/asset-registry/pkg/events"
	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/registry"
)

func setupManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	store := NewStore(db)
	graphEngine := graph.NewEngine(db)
	eventStore := events.NewStore(db)
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, graphEngine.AutoMigrate())
	require.NoError(t, eventStore.AutoMigrate())

	m := NewManager(db, store, graphEngine, eventStore, cache.NewMemory(100), nil, ManagerOptions{}, nil)
	return m, db
}

func digestOf(content string) registry.Checksum {
	sum := sha256.Sum256([]byte(content))
	return registry.Checksum{Algorithm: registry.SHA256, Value: hex.EncodeToString(sum[:])}
}

func specFor(name, version, content string) *RegisterSpec {
	return &RegisterSpec{
		Name:     name,
		Version:  version,
		Type:     registry.TypeModel,
		Checksum: digestOf(content),
		Storage: registry.StorageLocation{
			Backend: registry.BackendS3,
			URI:     "s3://models/" + name + "/" + version,
		},
	}
}

func mustRegister(t *testing.T, m *Manager, spec *RegisterSpec) *registry.Asset {
	t.Helper()
	asset, err := m.Register(context.Background(), "tester", spec)
	require.NoError(t, err)
	return asset
}

func TestRegister(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	spec := specFor("fraud-detector", "1.0.0", "weights")
	spec.Tags = []string{"prod", "vision"}
	spec.Annotations = map[string]string{"team": "ml-platform"}

	asset, err := m.Register(ctx, "alice", spec)
	require.NoError(t, err)
	assert.Len(t, asset.ID.String(), 26)
	assert.Equal(t, registry.StatusActive, asset.Status)
	assert.False(t, asset.CreatedAt.IsZero())
	assert.Equal(t, asset.CreatedAt, asset.UpdatedAt)
	assert.Nil(t, asset.DeprecatedAt)

	got, err := m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "fraud-detector", got.Name)
	assert.Equal(t, []string{"prod", "vision"}, got.Tags)
	assert.Equal(t, "ml-platform", got.Annotations["team"])
}

func TestRegisterDuplicateConflict(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	mustRegister(t, m, specFor("ranker", "1.0.0", "first"))

	// Same (name, version), different content: still a conflict.
	_, err := m.Register(ctx, "tester", specFor("ranker", "1.0.0", "second"))
	require.Error(t, err)
	assert.Equal(t, registry.CodeConflict, registry.CodeOf(err))

	// A new version is fine.
	mustRegister(t, m, specFor("ranker", "1.1.0", "second"))
}

func TestRegisterChecksumMismatchNoRow(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	spec := specFor("ranker", "1.0.0", "declared content")
	spec.Content = strings.NewReader("actual content")

	_, err := m.Register(ctx, "tester", spec)
	require.Error(t, err)
	assert.Equal(t, registry.CodeIntegrityFailure, registry.CodeOf(err))

	var count int64
	require.NoError(t, db.Model(&AssetRecord{}).Count(&count).Error)
	assert.Zero(t, count, "no asset row may exist after an integrity failure")
}

func TestRegisterWithVerifiedContent(t *testing.T) {
	m, _ := setupManager(t)

	spec := specFor("ranker", "1.0.0", "weights")
	spec.Content = strings.NewReader("weights")
	mustRegister(t, m, spec)
}

func TestRegisterWithDependencies(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	base := mustRegister(t, m, specFor("base-embeddings", "1.0.0", "emb"))

	spec := specFor("ranker", "1.0.0", "weights")
	spec.Dependencies = []graph.EdgeSpec{{DependencyID: base.ID.String(), DependencyType: graph.DependencyRuntime}}
	asset := mustRegister(t, m, spec)

	deps, err := m.graph.DependenciesOf(ctx, asset.ID.String(), 1)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, base.ID.String(), deps[0].AssetID)

	history, err := m.History(ctx, asset.ID.String(), 10, "")
	require.NoError(t, err)
	require.Len(t, history.Events, 2)
	assert.Equal(t, events.TypeAssetRegistered, history.Events[0].Type)
	assert.Equal(t, events.TypeDependencyAdded, history.Events[1].Type)
}

func TestRegisterCycleRejectedAtomically(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	// B depends on A; registering a new asset that A... the cycle has to
	// come from the new asset depending on something that reaches it, which
	// is impossible at registration time. Reproduce the documented scenario
	// through AddDependencies instead: B -> A exists, then A -> B.
	a := mustRegister(t, m, specFor("A", "1.0.0", "a"))
	bSpec := specFor("B", "1.0.0", "b")
	bSpec.Dependencies = []graph.EdgeSpec{{DependencyID: a.ID.String()}}
	b := mustRegister(t, m, bSpec)

	err := m.AddDependencies(ctx, "tester", a.ID.String(), []graph.EdgeSpec{{DependencyID: b.ID.String()}})
	require.Error(t, err)
	assert.Equal(t, registry.CodeCycle, registry.CodeOf(err))

	var regErr *registry.Error
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, []string{"A@1.0.0", "B@1.0.0", "A@1.0.0"}, regErr.CyclePath)

	// Graph unchanged: A still has no outgoing edges.
	var count int64
	require.NoError(t, db.Model(&graph.DependencyEdge{}).Where("asset_id = ?", a.ID.String()).Count(&count).Error)
	assert.Zero(t, count)

	// The rejection itself is audited.
	history, err := m.History(ctx, a.ID.String(), 10, "")
	require.NoError(t, err)
	last := history.Events[len(history.Events)-1]
	assert.Equal(t, events.TypeCycleDetected, last.Type)
}

func TestUpdateMetadata(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	desc := "learning-to-rank model"
	updated, err := m.Update(ctx, "alice", asset.ID.String(), &UpdatePatch{
		Description: &desc,
		Tags:        []string{"prod"},
	})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, []string{"prod"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(asset.UpdatedAt) || updated.UpdatedAt.Equal(asset.UpdatedAt))

	history, err := m.History(ctx, asset.ID.String(), 10, "")
	require.NoError(t, err)
	require.Len(t, history.Events, 2)
	assert.Equal(t, events.TypeAssetUpdated, history.Events[1].Type)
}

func TestUpdateEmptyPatch(t *testing.T) {
	m, _ := setupManager(t)
	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	_, err := m.Update(context.Background(), "alice", asset.ID.String(), &UpdatePatch{})
	require.Error(t, err)
	assert.Equal(t, registry.CodeValidation, registry.CodeOf(err))
}

func TestUpdateProvenanceWriteOnce(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	prov := registry.Provenance{
		SourceRepo:    "https://github.com/modelpark/ranker",
		CommitHash:    strings.Repeat("ab", 20),
		Author:        "alice",
		BuildMetadata: map[string]string{"builder": "bazel", "target": "//models/ranker"},
	}
	updated, err := m.Update(ctx, "alice", asset.ID.String(), &UpdatePatch{Provenance: &prov})
	require.NoError(t, err)
	assert.Equal(t, prov.SourceRepo, updated.Provenance.SourceRepo)
	assert.Equal(t, prov.BuildMetadata, updated.Provenance.BuildMetadata)

	other := registry.Provenance{SourceRepo: "https://github.com/modelpark/other", CommitHash: strings.Repeat("cd", 20)}
	_, err = m.Update(ctx, "alice", asset.ID.String(), &UpdatePatch{Provenance: &other})
	require.Error(t, err)
	assert.Equal(t, registry.CodeImmutableField, registry.CodeOf(err))

	var regErr *registry.Error
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "provenance", regErr.Field)
}

func TestDeprecate(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	deprecated, err := m.Deprecate(ctx, "alice", asset.ID.String())
	require.NoError(t, err)
	assert.Equal(t, registry.StatusDeprecated, deprecated.Status)
	require.NotNil(t, deprecated.DeprecatedAt)

	// Second deprecate is an InvalidTransition, not a no-op.
	_, err = m.Deprecate(ctx, "alice", asset.ID.String())
	require.Error(t, err)
	assert.Equal(t, registry.CodeInvalidTransition, registry.CodeOf(err))
}

func TestHistoryRoundTrip(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))
	_, err := m.Deprecate(ctx, "alice", asset.ID.String())
	require.NoError(t, err)

	history, err := m.History(ctx, asset.ID.String(), 10, "")
	require.NoError(t, err)
	require.Len(t, history.Events, 2)
	assert.Equal(t, events.TypeAssetRegistered, history.Events[0].Type)
	assert.Equal(t, events.TypeAssetStatusChanged, history.Events[1].Type)

	// Replaying the log reconstructs the current status.
	status := ""
	for _, ev := range history.Events {
		switch ev.Type {
		case events.TypeAssetRegistered:
			status = registry.StatusActive.String()
		case events.TypeAssetStatusChanged, events.TypeAssetDeleted:
			status = ev.Payload["to"].(string)
		}
	}
	got, err := m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	assert.Equal(t, status, got.Status.String())
}

func TestDeleteArchivesWithoutForce(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))
	require.NoError(t, m.Delete(ctx, "alice", asset.ID.String(), false))

	got, err := m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, got.Status)

	// Force-delete finishes the job; the asset then reads as gone.
	require.NoError(t, m.Delete(ctx, "alice", asset.ID.String(), true))
	_, err = m.Get(ctx, asset.ID.String())
	require.Error(t, err)
	assert.Equal(t, registry.CodeNotFound, registry.CodeOf(err))
}

func TestDeleteBlockedByActiveDependents(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	base := mustRegister(t, m, specFor("base", "1.0.0", "b"))
	depSpec := specFor("dependent", "1.0.0", "d")
	depSpec.Dependencies = []graph.EdgeSpec{{DependencyID: base.ID.String()}}
	dependent := mustRegister(t, m, depSpec)

	for _, force := range []bool{false, true} {
		err := m.Delete(ctx, "alice", base.ID.String(), force)
		require.Error(t, err)
		assert.Equal(t, registry.CodeConflict, registry.CodeOf(err), "force=%v", force)
	}

	// Once the dependent is gone, deletion proceeds.
	require.NoError(t, m.Delete(ctx, "alice", dependent.ID.String(), true))
	require.NoError(t, m.Delete(ctx, "alice", base.ID.String(), false))
}

func TestDeleteDeprecatedPolicy(t *testing.T) {
	ctx := context.Background()

	m, _ := setupManager(t)
	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))
	_, err := m.Deprecate(ctx, "alice", asset.ID.String())
	require.NoError(t, err)
	// Default policy: deprecated -> deleted is allowed directly.
	require.NoError(t, m.Delete(ctx, "alice", asset.ID.String(), true))

	// With the policy flipped, the direct move is rejected.
	strict := NewMachine(MachineOptions{DisallowDeprecatedToDeleted: true})
	err = strict.ValidateTransition(registry.StatusDeprecated, registry.StatusDeleted)
	require.Error(t, err)
	assert.Equal(t, registry.CodeInvalidTransition, registry.CodeOf(err))
}

func TestMutationsRejectedOnDeletedAsset(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))
	require.NoError(t, m.Delete(ctx, "alice", asset.ID.String(), true))

	desc := "x"
	_, err := m.Update(ctx, "alice", asset.ID.String(), &UpdatePatch{Description: &desc})
	require.Error(t, err)
	assert.Equal(t, registry.CodeNotFound, registry.CodeOf(err))

	_, err = m.Deprecate(ctx, "alice", asset.ID.String())
	require.Error(t, err)
	assert.Equal(t, registry.CodeInvalidTransition, registry.CodeOf(err))

	err = m.Delete(ctx, "alice", asset.ID.String(), true)
	require.Error(t, err)
	assert.Equal(t, registry.CodeInvalidTransition, registry.CodeOf(err))
}

func TestVerifyContent(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	require.NoError(t, m.VerifyContent(ctx, "auditor", asset.ID.String(), strings.NewReader("weights")))

	err := m.VerifyContent(ctx, "auditor", asset.ID.String(), strings.NewReader("tampered"))
	require.Error(t, err)
	assert.Equal(t, registry.CodeIntegrityFailure, registry.CodeOf(err))

	history, err := m.History(ctx, asset.ID.String(), 10, "")
	require.NoError(t, err)
	require.Len(t, history.Events, 3)
	assert.Equal(t, events.TypeChecksumVerified, history.Events[1].Type)
	assert.Equal(t, events.TypeChecksumFailed, history.Events[2].Type)
}

func TestRegisterSignatureWithoutKeysRejected(t *testing.T) {
	m, db := setupManager(t) // no verifier configured

	spec := specFor("ranker", "1.0.0", "weights")
	spec.Signature = registry.Signature{
		Algorithm: "ed25519",
		Value:     []byte{1, 2, 3},
		KeyID:     "release-key",
	}

	_, err := m.Register(context.Background(), "tester", spec)
	require.Error(t, err)
	assert.Equal(t, registry.CodeValidation, registry.CodeOf(err))

	var count int64
	require.NoError(t, db.Model(&AssetRecord{}).Count(&count).Error)
	assert.Zero(t, count, "an unverifiable signature must not persist the asset")
}

func TestManagerHonorsContext(t *testing.T) {
	m, _ := setupManager(t)
	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Register(ctx, "tester", specFor("other", "1.0.0", "o"))
	require.Error(t, err)

	_, err = m.Get(ctx, asset.ID.String())
	require.Error(t, err)

	_, err = m.List(ctx, ListFilter{}, 10, "")
	require.Error(t, err)
}

func TestGetByNameVersion(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "2.0.0", "weights"))

	got, err := m.GetByNameVersion(ctx, "ranker", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, asset.ID, got.ID)

	_, err = m.GetByNameVersion(ctx, "ranker", "9.9.9")
	require.Error(t, err)
	assert.Equal(t, registry.CodeNotFound, registry.CodeOf(err))
}

func TestGetReadsThroughCache(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	asset := mustRegister(t, m, specFor("ranker", "1.0.0", "weights"))

	// Prime the cache, then change the row behind the manager's back.
	_, err := m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	require.NoError(t, db.Model(&AssetRecord{}).Where("id = ?", asset.ID.String()).
		Update("description", "changed out of band").Error)

	got, err := m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	assert.Empty(t, got.Description, "cached copy served until invalidation")

	// A real update invalidates, so the next read sees fresh state.
	desc := "via manager"
	_, err = m.Update(ctx, "alice", asset.ID.String(), &UpdatePatch{Description: &desc})
	require.NoError(t, err)
	got, err = m.Get(ctx, asset.ID.String())
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)
}

func TestDependenciesReadThroughCache(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	base := mustRegister(t, m, specFor("base", "1.0.0", "b"))
	spec := specFor("app", "1.0.0", "a")
	spec.Dependencies = []graph.EdgeSpec{{DependencyID: base.ID.String()}}
	app := mustRegister(t, m, spec)

	deps, err := m.Dependencies(ctx, app.ID.String(), 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)

	// Drop the edge behind the manager's back: the cached closure serves,
	// while a depth-limited query bypasses the cache and sees the store.
	require.NoError(t, db.Where("asset_id = ?", app.ID.String()).Delete(&graph.DependencyEdge{}).Error)
	deps, err = m.Dependencies(ctx, app.ID.String(), 0)
	require.NoError(t, err)
	assert.Len(t, deps, 1)
	deps, err = m.Dependencies(ctx, app.ID.String(), 1)
	require.NoError(t, err)
	assert.Empty(t, deps)

	// An edge mutation through the manager invalidates the whole family.
	other := mustRegister(t, m, specFor("other", "1.0.0", "o"))
	require.NoError(t, m.AddDependencies(ctx, "tester", app.ID.String(),
		[]graph.EdgeSpec{{DependencyID: other.ID.String()}}))
	deps, err = m.Dependencies(ctx, app.ID.String(), 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, other.ID.String(), deps[0].AssetID)
}

func TestList(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	for i, name := range []string{"a-model", "b-model", "c-model"} {
		spec := specFor(name, "1.0.0", name)
		if i == 2 {
			spec.Type = registry.TypeDataset
		}
		mustRegister(t, m, spec)
		time.Sleep(2 * time.Millisecond)
	}
	deleted := mustRegister(t, m, specFor("gone", "1.0.0", "g"))
	require.NoError(t, m.Delete(ctx, "alice", deleted.ID.String(), true))

	page, err := m.List(ctx, ListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Assets, 3, "deleted assets are excluded")
	assert.Equal(t, 3, page.TotalSize)

	page, err = m.List(ctx, ListFilter{Type: registry.TypeDataset.String()}, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Assets, 1)
	assert.Equal(t, "c-model", page.Assets[0].Name)

	// Pagination, newest first.
	page, err = m.List(ctx, ListFilter{}, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Assets, 2)
	require.NotEmpty(t, page.NextToken)
	rest, err := m.List(ctx, ListFilter{}, 2, page.NextToken)
	require.NoError(t, err)
	require.Len(t, rest.Assets, 1)
	assert.Equal(t, "a-model", rest.Assets[0].Name)
}
