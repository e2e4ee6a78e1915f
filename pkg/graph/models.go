// Package graph maintains the dependency edges between assets and answers
// reachability questions over them: transitive dependencies, reverse
// dependencies, cycle checks, and deletion impact.
package graph

import "time"

// DependencyType classifies why an asset depends on another.
type DependencyType string

const (
	DependencyRuntime  DependencyType = "runtime"
	DependencyBuild    DependencyType = "build"
	DependencyData     DependencyType = "data"
	DependencyPolicy   DependencyType = "policy"
	DependencyOptional DependencyType = "optional"
)

// DependencyEdge is the GORM model for one directed edge from a dependent
// asset to the asset it requires. The composite primary key makes the
// edge set a proper set: re-adding an existing edge is a conflict, not a
// duplicate row.
type DependencyEdge struct {
	AssetID           string         `gorm:"primaryKey;column:asset_id;type:varchar(26)"`
	DependencyID      string         `gorm:"primaryKey;column:dependency_id;type:varchar(26);index:idx_edge_dependency"`
	DependencyType    DependencyType `gorm:"column:dependency_type;not null;default:runtime"`
	VersionConstraint string         `gorm:"column:version_constraint"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (DependencyEdge) TableName() string { return "dependency_edges" }

// Dependency is one resolved node in a traversal result. Depth is the
// minimal number of edges from the asset the traversal started at.
type Dependency struct {
	AssetID           string         `json:"asset_id"`
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	Status            string         `json:"status"`
	DependencyType    DependencyType `json:"dependency_type"`
	VersionConstraint string         `json:"version_constraint,omitempty"`
	Depth             int            `json:"depth"`
}
