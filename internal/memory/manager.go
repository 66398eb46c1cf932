// Package memory is the orchestration layer: it wraps the store with
// write-path compression and keyword extraction, background indexing,
// auto-relation creation, snapshot backups, and the read paths the tool
// surface exposes.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/branchmem/branchmem/internal/backup"
	"github.com/branchmem/branchmem/internal/config"
	"github.com/branchmem/branchmem/internal/indexer"
	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/similarity"
	"github.com/branchmem/branchmem/internal/storage"
	"github.com/branchmem/branchmem/internal/text"
)

// Manager owns the store, the similarity engine, the background indexer,
// and the backup writer for one memory directory. Only one Manager
// should own a given memory path at a time.
type Manager struct {
	cfg     config.Config
	store   *storage.Store
	engine  *similarity.Engine
	idx     *indexer.Indexer
	backups *backup.Writer
}

// New opens the store under cfg.MemoryPath, migrates any legacy
// line-delimited JSON files, and starts the background indexer.
func New(ctx context.Context, cfg config.Config) (*Manager, error) {
	store, err := storage.Open(cfg.MemoryPath)
	if err != nil {
		return nil, err
	}
	engine := similarity.New()
	idx, err := indexer.New(store, engine, cfg.IndexInterval, cfg.IndexCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		idx:     idx,
		backups: backup.NewWriter(store.BackupsDir(), cfg.BackupKeep),
	}

	// Legacy files are imported best-effort; a bad file never blocks
	// startup.
	if err := m.migrateLegacy(ctx); err != nil {
		log.Warn("legacy migration incomplete", "error", err)
	}

	m.idx.Start()
	return m, nil
}

// Close trims old backups, stops the indexer, and closes the store, in
// that order.
func (m *Manager) Close() error {
	if err := m.backups.Trim(); err != nil {
		log.Warn("backup trim failed", "error", err)
	}
	m.idx.Stop()
	return m.store.Close()
}

// FailedEntity reports one entity of a batch that could not be written.
type FailedEntity struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// CreateResult is the outcome of a create batch. Per-item failures and
// auto-relation failures never abort the batch.
type CreateResult struct {
	Created        []models.Entity   `json:"created"`
	Failed         []FailedEntity    `json:"failed,omitempty"`
	AutoRelations  []models.Relation `json:"auto_relations,omitempty"`
	RelationErrors []string          `json:"relation_errors,omitempty"`
	BackupPath     string            `json:"backup_path,omitempty"`
}

// CreateEntities compresses and inserts a batch of entities into a
// branch. After the batch commits it snapshots the branch, schedules
// indexing, and, when enabled, auto-creates high-confidence relations
// between each new entity and its branch peers.
func (m *Manager) CreateEntities(ctx context.Context, branch string, inputs []models.EntityInput, autoRelations bool) (CreateResult, error) {
	branch = normalizeBranch(branch)

	var result CreateResult
	for _, in := range inputs {
		prepareEntity(&in)
		entity, err := m.store.CreateEntity(ctx, branch, in)
		if err != nil {
			result.Failed = append(result.Failed, FailedEntity{Name: in.Name, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, entity)
	}
	if len(result.Created) == 0 {
		return result, nil
	}

	if graph, err := m.branchGraph(ctx, branch); err != nil {
		log.Warn("branch snapshot skipped", "branch", branch, "error", err)
	} else if path, err := m.backups.WriteSnapshot(branch, graph); err != nil {
		log.Warn("branch snapshot failed", "branch", branch, "error", err)
	} else {
		result.BackupPath = path
	}

	for _, e := range result.Created {
		m.idx.Enqueue(indexer.TaskIndexEntity, e.Name, branch, indexer.PriorityHigh)
	}

	if autoRelations && m.cfg.AutoRelations {
		m.autoCreateRelations(ctx, branch, &result)
	}
	return result, nil
}

// autoCreateRelations runs the similarity engine for each just-created
// entity against the branch's active and draft entities and inserts
// relations for the strong matches. Failures land in the result, never
// in an error.
func (m *Manager) autoCreateRelations(ctx context.Context, branch string, result *CreateResult) {
	peers, err := m.store.ListEntities(ctx, branch,
		[]models.EntityStatus{models.StatusActive, models.StatusDraft}, 0)
	if err != nil {
		result.RelationErrors = append(result.RelationErrors,
			fmt.Sprintf("list peers: %v", err))
		return
	}

	for _, e := range result.Created {
		matches := m.engine.Detect(e, peers)
		var inputs []models.RelationInput
		for _, match := range matches {
			if match.Confidence != similarity.ConfidenceHigh && match.Similarity <= similarity.Threshold {
				continue
			}
			inputs = append(inputs, models.RelationInput{
				From:         e.Name,
				To:           match.Entity.Name,
				RelationType: match.RelationType,
			})
		}
		if len(inputs) == 0 {
			continue
		}
		created, err := m.store.CreateRelations(ctx, branch, inputs)
		if err != nil {
			result.RelationErrors = append(result.RelationErrors,
				fmt.Sprintf("relations for %q: %v", e.Name, err))
			continue
		}
		result.AutoRelations = append(result.AutoRelations, created...)
	}
}

// prepareEntity fills the derived content fields: aggressive compression
// of each observation, compression and keyword extraction over a JSON
// rendering of the whole entity.
func prepareEntity(in *models.EntityInput) {
	if in.Status == "" {
		in.Status = models.StatusActive
	}

	in.OptimizedObs = make([]string, len(in.Observations))
	for i, obs := range in.Observations {
		in.OptimizedObs[i] = text.Optimize(obs, text.LevelAggressive).Optimized
	}

	rendered, err := json.Marshal(struct {
		Name         string   `json:"name"`
		EntityType   string   `json:"entityType"`
		Observations []string `json:"observations"`
	}{in.Name, in.EntityType, in.Observations})
	if err != nil {
		// Marshalling plain strings cannot fail; fall back to the name.
		rendered = []byte(in.Name)
	}

	opt := text.Optimize(string(rendered), text.LevelAggressive)
	in.OriginalContent = string(rendered)
	in.OptimizedContent = opt.Optimized
	in.TokenCount = opt.TokenCount
	in.CompressionRatio = opt.CompressionRatio

	if len(in.Keywords) == 0 {
		for _, kw := range text.ExtractKeywords(opt.Optimized, 10) {
			in.Keywords = append(in.Keywords, models.Keyword{
				Keyword: kw.Term,
				Weight:  kw.Score,
				Context: in.EntityType,
			})
		}
	}
}

// ObservationResult reports one entity of an add_observations batch.
type ObservationResult struct {
	EntityName string   `json:"entity_name"`
	Added      []string `json:"added_observations"`
	Error      string   `json:"error,omitempty"`
}

// AddObservations appends observations to named entities. Each input is
// independent; failures are reported per item.
func (m *Manager) AddObservations(ctx context.Context, branch string, inputs []models.ObservationInput) []ObservationResult {
	branch = normalizeBranch(branch)
	results := make([]ObservationResult, 0, len(inputs))
	for _, in := range inputs {
		optimized := make([]string, len(in.Contents))
		for i, content := range in.Contents {
			optimized[i] = text.Optimize(content, text.LevelAggressive).Optimized
		}
		added, err := m.store.AddObservations(ctx, branch, in.EntityName, in.Contents, optimized)
		res := ObservationResult{EntityName: in.EntityName, Added: added}
		if err != nil {
			res.Error = err.Error()
		} else {
			m.idx.Enqueue(indexer.TaskIndexEntity, in.EntityName, branch, indexer.PriorityNormal)
		}
		results = append(results, res)
	}
	return results
}

// DeleteObservations removes observations from an entity by exact
// content match and returns the number removed.
func (m *Manager) DeleteObservations(ctx context.Context, branch, entityName string, contents []string) (int, error) {
	branch = normalizeBranch(branch)
	deleted, err := m.store.DeleteObservations(ctx, branch, entityName, contents)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		m.idx.Enqueue(indexer.TaskIndexEntity, entityName, branch, indexer.PriorityNormal)
	}
	return deleted, nil
}

// UpdateEntityStatus loads an entity, changes its lifecycle status, and
// stores it back. Observations, keywords, and cross-references are
// preserved.
func (m *Manager) UpdateEntityStatus(ctx context.Context, branch, name string, status models.EntityStatus, reason string) (models.Entity, error) {
	branch = normalizeBranch(branch)
	if !status.Valid() {
		return models.Entity{}, fmt.Errorf("status %q: %w", status, storage.ErrInvalid)
	}
	e, err := m.store.GetEntityByName(ctx, branch, name)
	if err != nil {
		return models.Entity{}, err
	}
	crossRefs, err := m.store.GetCrossReferences(ctx, branch, name)
	if err != nil {
		return models.Entity{}, err
	}

	in := models.EntityInput{
		Name:             e.Name,
		EntityType:       e.EntityType,
		Observations:     e.ObservationContents(),
		Status:           status,
		StatusReason:     reason,
		CrossRefs:        crossRefs,
		OriginalContent:  e.OriginalContent,
		OptimizedContent: e.OptimizedContent,
		TokenCount:       e.TokenCount,
		CompressionRatio: e.CompressionRatio,
	}
	in.OptimizedObs = make([]string, len(e.Observations))
	for i, o := range e.Observations {
		in.OptimizedObs[i] = o.OptimizedContent
	}
	return m.store.UpdateEntity(ctx, branch, in)
}

// DeleteEntities removes entities by name and returns the count removed.
func (m *Manager) DeleteEntities(ctx context.Context, branch string, names []string) (int, error) {
	return m.store.DeleteEntities(ctx, normalizeBranch(branch), names)
}

// CreateRelations inserts relations between existing entities, skipping
// missing endpoints and duplicates.
func (m *Manager) CreateRelations(ctx context.Context, branch string, inputs []models.RelationInput) ([]models.Relation, error) {
	return m.store.CreateRelations(ctx, normalizeBranch(branch), inputs)
}

// DeleteRelations removes relations by (from, to, type).
func (m *Manager) DeleteRelations(ctx context.Context, branch string, inputs []models.RelationInput) (int, error) {
	return m.store.DeleteRelations(ctx, normalizeBranch(branch), inputs)
}

// CreateCrossReference links an entity to entities in another branch.
func (m *Manager) CreateCrossReference(ctx context.Context, sourceBranch, entityName, targetBranch string, targetNames []string) ([]string, error) {
	return m.store.CreateCrossReference(ctx, normalizeBranch(sourceBranch), entityName, targetBranch, targetNames)
}

// CreateBranch creates a branch explicitly.
func (m *Manager) CreateBranch(ctx context.Context, name, purpose string) (models.Branch, error) {
	return m.store.CreateBranch(ctx, name, purpose)
}

// DeleteBranch removes a branch and everything it owns.
func (m *Manager) DeleteBranch(ctx context.Context, name string) error {
	return m.store.DeleteBranch(ctx, name)
}

// ListBranches returns all branches with their counts, main first.
func (m *Manager) ListBranches(ctx context.Context) ([]models.BranchInfo, error) {
	return m.store.ListBranches(ctx)
}

// ReadBranch returns the graph of a branch, optionally filtered by
// entity status and with each entity's cross-branch references
// attached. When a status filter is set, relations are restricted to
// the surviving entity set.
func (m *Manager) ReadBranch(ctx context.Context, branch string, statuses []models.EntityStatus, includeCrossContext bool) (models.Graph, error) {
	branch = normalizeBranch(branch)
	if len(statuses) == 0 && !includeCrossContext {
		return m.branchGraph(ctx, branch)
	}

	entities, err := m.store.ListEntities(ctx, branch, statuses, 0)
	if err != nil {
		return models.Graph{}, err
	}

	var relations []models.Relation
	if len(statuses) == 0 {
		relations, err = m.store.BranchRelations(ctx, branch)
	} else {
		ids := make([]int64, len(entities))
		for i, e := range entities {
			ids[i] = e.ID
		}
		relations, err = m.store.RelationsWithin(ctx, ids)
	}
	if err != nil {
		return models.Graph{}, err
	}

	if includeCrossContext {
		for i := range entities {
			refs, err := m.store.GetCrossReferences(ctx, branch, entities[i].Name)
			if err != nil {
				return models.Graph{}, err
			}
			entities[i].CrossReferences = refs
		}
	}
	return models.Graph{Entities: entities, Relations: relations}, nil
}

// branchGraph loads every entity and relation in a branch.
func (m *Manager) branchGraph(ctx context.Context, branch string) (models.Graph, error) {
	entities, err := m.store.ListEntities(ctx, branch, nil, 0)
	if err != nil {
		return models.Graph{}, err
	}
	relations, err := m.store.BranchRelations(ctx, branch)
	if err != nil {
		return models.Graph{}, err
	}
	return models.Graph{Entities: entities, Relations: relations}, nil
}

func normalizeBranch(name string) string {
	if name == "" {
		return storage.MainBranch
	}
	return name
}
