package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/modelpark/asset-registry/pkg/registry"
)

const (
	// DefaultTraversalDepth bounds DependenciesOf when the caller does not
	// ask for a specific depth.
	DefaultTraversalDepth = 5
	// MaxTraversalDepth is the hard ceiling on transitive traversals.
	MaxTraversalDepth = 10
)

// EdgeSpec describes one edge to add from a dependent asset.
type EdgeSpec struct {
	DependencyID      string
	DependencyType    DependencyType
	VersionConstraint string
}

// Engine provides database operations over the dependency graph. It reads
// the assets table directly for endpoint checks and name resolution but
// owns only the dependency_edges table.
type Engine struct {
	db *gorm.DB
}

// NewEngine creates a new Engine.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// AutoMigrate creates or updates the dependency_edges table.
func (e *Engine) AutoMigrate() error {
	return e.db.AutoMigrate(&DependencyEdge{})
}

// assetRow is the slice of the assets table the graph needs.
type assetRow struct {
	ID      string
	Name    string
	Version string
	Status  string
}

func loadAssetRows(tx *gorm.DB, ids []string) (map[string]assetRow, error) {
	var rows []assetRow
	if err := tx.Table("assets").Select("id, name, version, status").
		Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("load assets: %w", err))
	}
	byID := make(map[string]assetRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	return byID, nil
}

// AddEdges adds edges from assetID to each spec's dependency, all or
// nothing. It rejects self-loops, unknown or deleted endpoints, duplicate
// edges, and any edge that would close a cycle. When tx is non-nil the
// edges join the caller's transaction so they commit together with the
// asset change that introduced them.
func (e *Engine) AddEdges(ctx context.Context, tx *gorm.DB, assetID string, specs []EdgeSpec) error {
	if tx == nil {
		return e.db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
			return e.AddEdges(ctx, inner, assetID, specs)
		})
	}
	if len(specs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(specs))
	ids := []string{assetID}
	for _, spec := range specs {
		if spec.DependencyID == assetID {
			return registry.NewCycleError([]string{assetID, assetID})
		}
		if spec.DependencyID == "" {
			return registry.NewValidationError("dependency id must not be empty")
		}
		if seen[spec.DependencyID] {
			return registry.NewValidationError(fmt.Sprintf("duplicate dependency %s in request", spec.DependencyID))
		}
		seen[spec.DependencyID] = true
		ids = append(ids, spec.DependencyID)
	}

	rows, err := loadAssetRows(tx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		row, ok := rows[id]
		if !ok || row.Status == "deleted" {
			return registry.NewNotFoundError(fmt.Sprintf("asset %s not found", id))
		}
	}

	var existing int64
	if err := tx.Model(&DependencyEdge{}).
		Where("asset_id = ? AND dependency_id IN ?", assetID, idsOf(specs)).
		Count(&existing).Error; err != nil {
		return registry.NewStoreUnavailableError(fmt.Errorf("check existing edges: %w", err))
	}
	if existing > 0 {
		return registry.NewConflictError(fmt.Sprintf("asset %s already depends on one of the requested assets", assetID))
	}

	for _, spec := range specs {
		if path, err := e.findPath(tx, spec.DependencyID, assetID); err != nil {
			return err
		} else if path != nil {
			// assetID -> dependency -> ... -> assetID, reported by name.
			cycle := append([]string{assetID}, path...)
			return registry.NewCycleError(e.namePath(tx, cycle))
		}
	}

	now := time.Now().UTC()
	edges := make([]DependencyEdge, 0, len(specs))
	for _, spec := range specs {
		depType := spec.DependencyType
		if depType == "" {
			depType = DependencyRuntime
		}
		edges = append(edges, DependencyEdge{
			AssetID:           assetID,
			DependencyID:      spec.DependencyID,
			DependencyType:    depType,
			VersionConstraint: spec.VersionConstraint,
			CreatedAt:         now,
		})
	}
	if err := tx.Create(&edges).Error; err != nil {
		return registry.NewStoreUnavailableError(fmt.Errorf("create edges: %w", err))
	}
	return nil
}

func idsOf(specs []EdgeSpec) []string {
	out := make([]string, len(specs))
	for i, spec := range specs {
		out[i] = spec.DependencyID
	}
	return out
}

// findPath walks existing edges breadth-first from `from` and returns the
// node path from -> ... -> to when `to` is reachable, nil otherwise.
func (e *Engine) findPath(tx *gorm.DB, from, to string) ([]string, error) {
	parent := map[string]string{from: ""}
	frontier := []string{from}

	for len(frontier) > 0 {
		var next []DependencyEdge
		if err := tx.Where("asset_id IN ?", frontier).Find(&next).Error; err != nil {
			return nil, registry.NewStoreUnavailableError(fmt.Errorf("walk edges: %w", err))
		}
		frontier = frontier[:0]
		for _, edge := range next {
			if _, visited := parent[edge.DependencyID]; visited {
				continue
			}
			parent[edge.DependencyID] = edge.AssetID
			if edge.DependencyID == to {
				path := []string{to}
				for node := edge.AssetID; node != ""; node = parent[node] {
					path = append([]string{node}, path...)
				}
				return path, nil
			}
			frontier = append(frontier, edge.DependencyID)
		}
	}
	return nil, nil
}

// namePath resolves asset ids to "name@version" labels for cycle reports.
// Ids that cannot be resolved fall back to the raw id.
func (e *Engine) namePath(tx *gorm.DB, ids []string) []string {
	rows, err := loadAssetRows(tx, ids)
	if err != nil {
		return ids
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		if row, ok := rows[id]; ok {
			labels[i] = row.Name + "@" + row.Version
		} else {
			labels[i] = id
		}
	}
	return labels
}

// RemoveEdge deletes one edge. Removing an edge can never create a cycle,
// so no reachability check is needed.
func (e *Engine) RemoveEdge(ctx context.Context, tx *gorm.DB, assetID, dependencyID string) error {
	if tx == nil {
		tx = e.db.WithContext(ctx)
	}
	result := tx.Where("asset_id = ? AND dependency_id = ?", assetID, dependencyID).
		Delete(&DependencyEdge{})
	if result.Error != nil {
		return registry.NewStoreUnavailableError(fmt.Errorf("remove edge: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return registry.NewNotFoundError(fmt.Sprintf("asset %s has no dependency on %s", assetID, dependencyID))
	}
	return nil
}

// DependenciesOf returns the transitive dependencies of an asset up to
// maxDepth edges away, each annotated with its minimal depth. maxDepth is
// clamped to [1, MaxTraversalDepth]; zero selects DefaultTraversalDepth.
func (e *Engine) DependenciesOf(ctx context.Context, assetID string, maxDepth int) ([]Dependency, error) {
	if maxDepth == 0 {
		maxDepth = DefaultTraversalDepth
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}
	return e.traverse(ctx, assetID, maxDepth, false)
}

// DependentsOf returns the assets that directly depend on assetID.
func (e *Engine) DependentsOf(ctx context.Context, assetID string) ([]Dependency, error) {
	return e.traverse(ctx, assetID, 1, true)
}

// ImpactAnalysis returns every asset that transitively depends on assetID,
// i.e. everything a change to it could break.
func (e *Engine) ImpactAnalysis(ctx context.Context, assetID string) ([]Dependency, error) {
	return e.traverse(ctx, assetID, MaxTraversalDepth, true)
}

// traverse walks the graph breadth-first. reverse=false follows edges from
// dependent to dependency; reverse=true follows them backwards.
func (e *Engine) traverse(ctx context.Context, assetID string, maxDepth int, reverse bool) ([]Dependency, error) {
	db := e.db.WithContext(ctx)
	depths := map[string]int{assetID: 0}
	edgeFor := map[string]DependencyEdge{}
	frontier := []string{assetID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var batch []DependencyEdge
		query := db.Where("asset_id IN ?", frontier)
		if reverse {
			query = db.Where("dependency_id IN ?", frontier)
		}
		if err := query.Find(&batch).Error; err != nil {
			return nil, registry.NewStoreUnavailableError(fmt.Errorf("walk edges: %w", err))
		}
		frontier = frontier[:0]
		for _, edge := range batch {
			nodeID := edge.DependencyID
			if reverse {
				nodeID = edge.AssetID
			}
			if _, visited := depths[nodeID]; visited {
				continue
			}
			depths[nodeID] = depth
			edgeFor[nodeID] = edge
			frontier = append(frontier, nodeID)
		}
	}

	ids := make([]string, 0, len(depths)-1)
	for id := range depths {
		if id != assetID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := loadAssetRows(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Dependency, 0, len(ids))
	for _, id := range ids {
		row := rows[id]
		edge := edgeFor[id]
		out = append(out, Dependency{
			AssetID:           id,
			Name:              row.Name,
			Version:           row.Version,
			Status:            row.Status,
			DependencyType:    edge.DependencyType,
			VersionConstraint: edge.VersionConstraint,
			Depth:             depths[id],
		})
	}
	sortDependencies(out)
	return out, nil
}

// sortDependencies orders traversal results by depth, then by name so
// output is deterministic across runs.
func sortDependencies(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Depth != deps[j].Depth {
			return deps[i].Depth < deps[j].Depth
		}
		if deps[i].Name != deps[j].Name {
			return deps[i].Name < deps[j].Name
		}
		return deps[i].Version < deps[j].Version
	})
}

// HasActiveDependents reports whether any non-deleted asset still depends
// on assetID. Deletion is blocked while this holds.
func (e *Engine) HasActiveDependents(ctx context.Context, tx *gorm.DB, assetID string) (bool, error) {
	if tx == nil {
		tx = e.db.WithContext(ctx)
	}
	var count int64
	err := tx.Model(&DependencyEdge{}).
		Joins("JOIN assets ON assets.id = dependency_edges.asset_id").
		Where("dependency_edges.dependency_id = ? AND assets.status <> ?", assetID, "deleted").
		Count(&count).Error
	if err != nil {
		return false, registry.NewStoreUnavailableError(fmt.Errorf("count dependents: %w", err))
	}
	return count > 0, nil
}

// TopologicalSort orders the transitive dependencies of an asset so every
// dependency appears before the assets that require it. Useful for
// deployment ordering. The asset itself is not included.
func (e *Engine) TopologicalSort(ctx context.Context, assetID string) ([]Dependency, error) {
	deps, err := e.DependenciesOf(ctx, assetID, MaxTraversalDepth)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, nil
	}

	byID := make(map[string]Dependency, len(deps))
	nodes := make([]string, 0, len(deps))
	for _, d := range deps {
		byID[d.AssetID] = d
		nodes = append(nodes, d.AssetID)
	}

	var edges []DependencyEdge
	if err := e.db.WithContext(ctx).Where("asset_id IN ? AND dependency_id IN ?", nodes, nodes).
		Find(&edges).Error; err != nil {
		return nil, registry.NewStoreUnavailableError(fmt.Errorf("load subgraph edges: %w", err))
	}

	// Kahn's algorithm, emitting leaves (assets with no remaining
	// dependencies inside the closure) first.
	outDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		outDegree[edge.AssetID]++
		dependents[edge.DependencyID] = append(dependents[edge.DependencyID], edge.AssetID)
	}

	var ready []string
	for _, id := range nodes {
		if outDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]Dependency, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, byID[id])
		for _, dep := range dependents[id] {
			outDegree[dep]--
			if outDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return out, nil
}
