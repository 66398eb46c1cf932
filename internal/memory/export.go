package memory

import (
	"context"

	"github.com/branchmem/branchmem/internal/backup"
	"github.com/branchmem/branchmem/internal/models"
)

// Export reads the full graph of a branch and writes it as a pretty
// JSON export next to the snapshots. The graph and the file path are
// returned.
func (m *Manager) Export(ctx context.Context, branch string) (models.Graph, string, error) {
	branch = normalizeBranch(branch)
	graph, err := m.branchGraph(ctx, branch)
	if err != nil {
		return models.Graph{}, "", err
	}
	path, err := m.backups.WriteExport(branch, graph)
	if err != nil {
		return models.Graph{}, "", err
	}
	return graph, path, nil
}

// ImportResult reports what an import actually wrote.
type ImportResult struct {
	EntitiesCreated  int            `json:"entities_created"`
	EntitiesFailed   []FailedEntity `json:"entities_failed,omitempty"`
	RelationsCreated int            `json:"relations_created"`
	LinesSkipped     int            `json:"lines_skipped,omitempty"`
}

// Import writes a graph into a branch: entities first, then relations.
// Auto-relation creation is disabled so the import reproduces the graph
// it was given. Per-item failures are reported, not fatal.
func (m *Manager) Import(ctx context.Context, branch string, graph models.Graph) (ImportResult, error) {
	branch = normalizeBranch(branch)
	if _, err := m.store.EnsureBranch(ctx, branch); err != nil {
		return ImportResult{}, err
	}

	inputs := make([]models.EntityInput, 0, len(graph.Entities))
	for _, e := range graph.Entities {
		inputs = append(inputs, models.EntityInput{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.ObservationContents(),
			Status:       e.Status,
			StatusReason: e.StatusReason,
		})
	}
	createRes, err := m.CreateEntities(ctx, branch, inputs, false)
	if err != nil {
		return ImportResult{}, err
	}

	relInputs := make([]models.RelationInput, 0, len(graph.Relations))
	for _, r := range graph.Relations {
		relInputs = append(relInputs, models.RelationInput{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}
	relations, err := m.store.CreateRelations(ctx, branch, relInputs)
	if err != nil {
		return ImportResult{}, err
	}

	return ImportResult{
		EntitiesCreated:  len(createRes.Created),
		EntitiesFailed:   createRes.Failed,
		RelationsCreated: len(relations),
	}, nil
}

// ImportFile parses a line-delimited JSON file and imports its records
// into a branch. Unparseable lines are skipped and counted.
func (m *Manager) ImportFile(ctx context.Context, branch, path string) (ImportResult, error) {
	records, skipped, err := backup.ReadLines(path)
	if err != nil {
		return ImportResult{}, err
	}
	result, err := m.Import(ctx, branch, graphFromRecords(records))
	if err != nil {
		return ImportResult{}, err
	}
	result.LinesSkipped = skipped
	return result, nil
}

// graphFromRecords converts snapshot records back into a graph.
func graphFromRecords(records []backup.Record) models.Graph {
	var graph models.Graph
	for _, rec := range records {
		switch rec.Type {
		case "entity":
			e := models.Entity{
				Name:         rec.Name,
				EntityType:   rec.EntityType,
				Status:       rec.Status,
				StatusReason: rec.StatusReason,
			}
			for i, content := range rec.Observations {
				e.Observations = append(e.Observations, models.Observation{
					Content:       content,
					SequenceOrder: i + 1,
				})
			}
			graph.Entities = append(graph.Entities, e)
		case "relation":
			graph.Relations = append(graph.Relations, models.Relation{
				From:         rec.From,
				To:           rec.To,
				RelationType: rec.RelationType,
			})
		}
	}
	return graph
}
