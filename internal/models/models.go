// Package models defines the records shared by the storage layer, the
// search and similarity engines, and the tool surface.
package models

// EntityStatus is the lifecycle state of an entity.
type EntityStatus string

const (
	StatusActive     EntityStatus = "active"
	StatusDeprecated EntityStatus = "deprecated"
	StatusArchived   EntityStatus = "archived"
	StatusDraft      EntityStatus = "draft"
)

// Valid reports whether s is one of the known lifecycle states.
func (s EntityStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDeprecated, StatusArchived, StatusDraft:
		return true
	}
	return false
}

// Branch is a named partition of the graph. Entity names and relations
// are scoped to a branch; "main" is pre-seeded with id 1.
type Branch struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Purpose   string `db:"purpose" json:"purpose,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// BranchInfo is a branch plus aggregate counts, as returned by list_branches.
type BranchInfo struct {
	Branch
	EntityCount   int `db:"entity_count" json:"entity_count"`
	RelationCount int `db:"relation_count" json:"relation_count"`
}

// Entity is a named node scoped to a branch.
type Entity struct {
	ID               int64        `db:"id" json:"id"`
	Name             string       `db:"name" json:"name"`
	EntityType       string       `db:"entity_type" json:"entity_type"`
	BranchID         int64        `db:"branch_id" json:"branch_id"`
	Status           EntityStatus `db:"status" json:"status"`
	StatusReason     string       `db:"status_reason" json:"status_reason,omitempty"`
	OriginalContent  string       `db:"original_content" json:"-"`
	OptimizedContent string       `db:"optimized_content" json:"-"`
	TokenCount       int          `db:"token_count" json:"token_count"`
	CompressionRatio float64      `db:"compression_ratio" json:"compression_ratio"`
	CreatedAt        string       `db:"created_at" json:"created_at"`
	UpdatedAt        string       `db:"updated_at" json:"updated_at"`
	LastAccessed     string       `db:"last_accessed" json:"last_accessed"`

	Observations    []Observation   `db:"-" json:"observations,omitempty"`
	CrossReferences []CrossRefGroup `db:"-" json:"cross_references,omitempty"`
}

// ObservationContents returns the observation content strings in order.
func (e Entity) ObservationContents() []string {
	out := make([]string, len(e.Observations))
	for i, o := range e.Observations {
		out[i] = o.Content
	}
	return out
}

// Observation is an append-only fact attached to an entity, ordered by
// sequence_order within the entity.
type Observation struct {
	ID               int64  `db:"id" json:"id"`
	EntityID         int64  `db:"entity_id" json:"entity_id"`
	Content          string `db:"content" json:"content"`
	OptimizedContent string `db:"optimized_content" json:"-"`
	SequenceOrder    int    `db:"sequence_order" json:"sequence_order"`
	CreatedAt        string `db:"created_at" json:"created_at"`
}

// Relation is a directed, typed edge between two entities in the same
// branch. (from, to, type) is unique.
type Relation struct {
	ID           int64  `db:"id" json:"id"`
	FromEntityID int64  `db:"from_entity_id" json:"-"`
	ToEntityID   int64  `db:"to_entity_id" json:"-"`
	From         string `db:"from_name" json:"from"`
	To           string `db:"to_name" json:"to"`
	RelationType string `db:"relation_type" json:"relation_type"`
	BranchID     int64  `db:"branch_id" json:"-"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

// Keyword is a weighted term indexed for the keyword search strategy.
type Keyword struct {
	ID       int64   `db:"id" json:"id"`
	Keyword  string  `db:"keyword" json:"keyword"`
	EntityID int64   `db:"entity_id" json:"entity_id"`
	Weight   float64 `db:"weight" json:"weight"`
	Context  string  `db:"context" json:"context,omitempty"`
}

// CrossReference is a by-name pointer from an entity to an entity in
// another branch, resolved lazily by consumers.
type CrossReference struct {
	ID               int64  `db:"id" json:"id"`
	FromEntityID     int64  `db:"from_entity_id" json:"from_entity_id"`
	TargetBranchID   int64  `db:"target_branch_id" json:"target_branch_id"`
	TargetEntityName string `db:"target_entity_name" json:"target_entity_name"`
	CreatedAt        string `db:"created_at" json:"created_at"`
}

// CrossRefGroup is the read shape of an entity's cross-references,
// grouped by target branch.
type CrossRefGroup struct {
	TargetBranch string   `json:"memoryBranch"`
	EntityNames  []string `json:"entityNames"`
}

// EntityInput is the explicit write record accepted by the orchestrator
// and the store. Keywords and cross-references are optional; when
// Keywords is empty the orchestrator derives them from the content.
type EntityInput struct {
	Name         string          `json:"name"`
	EntityType   string          `json:"entity_type"`
	Observations []string        `json:"observations,omitempty"`
	Status       EntityStatus    `json:"status,omitempty"`
	StatusReason string          `json:"status_reason,omitempty"`
	Keywords     []Keyword       `json:"keywords,omitempty"`
	CrossRefs    []CrossRefGroup `json:"cross_references,omitempty"`

	// Derived content set by the orchestrator before the store insert.
	OriginalContent  string   `json:"-"`
	OptimizedContent string   `json:"-"`
	OptimizedObs     []string `json:"-"`
	TokenCount       int      `json:"-"`
	CompressionRatio float64  `json:"-"`
}

// RelationInput identifies a relation by endpoint names within a branch.
type RelationInput struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

// ObservationInput attaches new observation contents to a named entity.
type ObservationInput struct {
	EntityName string   `json:"entity_name"`
	Contents   []string `json:"contents"`
}

// Graph is a fragment of the store: entities plus the relations whose
// endpoints both lie in the entity set.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}
