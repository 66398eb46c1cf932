package memory

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/similarity"
	"github.com/branchmem/branchmem/internal/storage"
	"github.com/branchmem/branchmem/internal/text"
)

// AllBranches is the branch argument that widens a search across every
// branch.
const AllBranches = "*"

// SearchResponse is a ranked result set plus the relations within it.
// Related holds similarity-expanded neighbours when context expansion
// ran.
type SearchResponse struct {
	Results   []storage.SearchResult `json:"results"`
	Relations []models.Relation      `json:"relations,omitempty"`
	Related   []similarity.Match     `json:"related,omitempty"`
}

// Search normalizes the query into terms, runs the multi-strategy
// search, and, for branch-scoped searches with contextDepth above 1,
// expands the result set with high and medium confidence neighbours.
// Cross-branch searches skip expansion.
func (m *Manager) Search(ctx context.Context, query, branch string, statuses []models.EntityStatus, contextDepth int) (SearchResponse, error) {
	if contextDepth < 1 {
		contextDepth = 2
	}
	if contextDepth > 3 {
		contextDepth = 3
	}

	filter := storage.SearchFilter{Statuses: statuses}
	if branch == AllBranches {
		filter.AllBranches = true
	} else {
		branch = normalizeBranch(branch)
		b, err := m.store.GetBranch(ctx, branch)
		if err != nil {
			return SearchResponse{}, err
		}
		filter.BranchID = b.ID
	}

	terms := text.PrepareTerms(query)
	results, relations, err := m.store.Search(ctx, terms, filter)
	if err != nil {
		return SearchResponse{}, err
	}
	resp := SearchResponse{Results: results, Relations: relations}
	if len(results) == 0 {
		return resp, nil
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Entity.ID
	}
	if err := m.store.TouchAccessed(ctx, ids); err != nil {
		log.Warn("touch last_accessed failed", "error", err)
	}

	if !filter.AllBranches && contextDepth > 1 {
		m.expandResults(ctx, branch, statuses, &resp)
	}
	return resp, nil
}

// expandResults adds branch neighbours that score high or medium against
// any result entity, together with the relations the wider set induces.
// Expansion is best-effort; failures only log.
func (m *Manager) expandResults(ctx context.Context, branch string, statuses []models.EntityStatus, resp *SearchResponse) {
	peers, err := m.store.ListEntities(ctx, branch, statuses, 0)
	if err != nil {
		log.Warn("context expansion skipped", "branch", branch, "error", err)
		return
	}

	inResults := make(map[int64]struct{}, len(resp.Results))
	for _, r := range resp.Results {
		inResults[r.Entity.ID] = struct{}{}
	}
	candidates := peers[:0]
	for _, p := range peers {
		if _, ok := inResults[p.ID]; ok {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return
	}

	added := make(map[int64]struct{})
	for _, r := range resp.Results {
		for _, match := range m.engine.Detect(r.Entity, candidates) {
			if match.Confidence != similarity.ConfidenceHigh && match.Confidence != similarity.ConfidenceMedium {
				continue
			}
			if _, dup := added[match.Entity.ID]; dup {
				continue
			}
			added[match.Entity.ID] = struct{}{}
			resp.Related = append(resp.Related, match)
		}
	}
	if len(added) == 0 {
		return
	}

	ids := make([]int64, 0, len(inResults)+len(added))
	for id := range inResults {
		ids = append(ids, id)
	}
	for id := range added {
		ids = append(ids, id)
	}
	relations, err := m.store.RelationsWithin(ctx, ids)
	if err != nil {
		log.Warn("expansion relations skipped", "branch", branch, "error", err)
		return
	}
	have := make(map[int64]struct{}, len(resp.Relations))
	for _, rel := range resp.Relations {
		have[rel.ID] = struct{}{}
	}
	for _, rel := range relations {
		if _, dup := have[rel.ID]; dup {
			continue
		}
		resp.Relations = append(resp.Relations, rel)
	}
}

// OpenEntities looks entities up by exact name and attaches every
// relation involving any of them within the branch.
func (m *Manager) OpenEntities(ctx context.Context, branch string, names []string, statuses []models.EntityStatus) (models.Graph, error) {
	branch = normalizeBranch(branch)
	b, err := m.store.GetBranch(ctx, branch)
	if err != nil {
		return models.Graph{}, err
	}
	entities, err := m.store.GetEntities(ctx, branch, names, statuses)
	if err != nil {
		return models.Graph{}, err
	}
	if len(entities) == 0 {
		return models.Graph{}, nil
	}

	ids := make([]int64, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	relations, err := m.store.RelationsIncident(ctx, b.ID, ids)
	if err != nil {
		return models.Graph{}, err
	}
	if err := m.store.TouchAccessed(ctx, ids); err != nil {
		log.Warn("touch last_accessed failed", "error", err)
	}
	return models.Graph{Entities: entities, Relations: relations}, nil
}
