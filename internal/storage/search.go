package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"

	"github.com/branchmem/branchmem/internal/models"
)

// SearchLimit caps the number of entities a search returns.
const SearchLimit = 50

// Per-strategy bonuses added to the merged relevance score.
const (
	keywordBonus = 15.0
	ftsBonus     = 10.0
	likeBonus    = 5.0
)

// SearchFilter scopes a search to a branch and a status set. A zero
// BranchID with AllBranches false means the caller resolved no branch;
// set AllBranches to disable the branch predicate entirely. An empty
// status set defaults to active.
type SearchFilter struct {
	BranchID    int64
	AllBranches bool
	Statuses    []models.EntityStatus
}

func (f SearchFilter) statuses() []models.EntityStatus {
	if len(f.Statuses) == 0 {
		return []models.EntityStatus{models.StatusActive}
	}
	return f.Statuses
}

// SearchResult is one ranked entity with its per-strategy raw scores.
type SearchResult struct {
	Entity         models.Entity `json:"entity"`
	RelevanceScore float64       `json:"relevance_score"`
	KeywordScore   float64       `json:"keyword_score,omitempty"`
	FTSScore       float64       `json:"fts_score,omitempty"`
	LikeScore      float64       `json:"like_score,omitempty"`
}

// Search runs the keyword, FTS, and LIKE strategies over the prepared
// terms, merges hits by entity id, ranks by relevance then recency of
// access, and truncates to SearchLimit. Relations whose endpoints both
// lie in the surviving set are returned alongside.
func (s *Store) Search(ctx context.Context, terms []string, filter SearchFilter) ([]SearchResult, []models.Relation, error) {
	if len(terms) == 0 {
		return nil, nil, nil
	}

	type merged struct {
		relevance float64
		keyword   float64
		fts       float64
		like      float64
	}
	hits := make(map[int64]*merged)
	add := func(id int64) *merged {
		m, ok := hits[id]
		if !ok {
			m = &merged{}
			hits[id] = m
		}
		return m
	}

	kw, err := s.keywordStrategy(ctx, terms, filter)
	if err != nil {
		return nil, nil, err
	}
	for id, score := range kw {
		m := add(id)
		m.relevance += keywordBonus
		m.keyword = score
	}

	// A malformed MATCH expression disables the FTS strategy only.
	fts, err := s.ftsStrategy(ctx, terms, filter)
	if err != nil {
		log.Warn("fts strategy unavailable", "error", err)
	} else {
		for id, score := range fts {
			m := add(id)
			m.relevance += ftsBonus
			m.fts = score
		}
	}

	like, err := s.likeStrategy(ctx, terms, filter)
	if err != nil {
		return nil, nil, err
	}
	for id, score := range like {
		m := add(id)
		m.relevance += likeBonus
		m.like = score
	}

	if len(hits) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	query, args, err := sqlx.In(`SELECT `+entityColumns+` FROM entities WHERE id IN (?)`, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}
	var entities []models.Entity
	if err := s.db.SelectContext(ctx, &entities, s.db.Rebind(query), args...); err != nil {
		return nil, nil, fmt.Errorf("load search entities: %w", err)
	}
	for i := range entities {
		if err := s.loadObservations(ctx, &entities[i]); err != nil {
			return nil, nil, err
		}
	}

	results := make([]SearchResult, 0, len(entities))
	for _, e := range entities {
		m := hits[e.ID]
		results = append(results, SearchResult{
			Entity:         e,
			RelevanceScore: m.relevance,
			KeywordScore:   m.keyword,
			FTSScore:       m.fts,
			LikeScore:      m.like,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Entity.LastAccessed > results[j].Entity.LastAccessed
	})
	if len(results) > SearchLimit {
		results = results[:SearchLimit]
	}

	finalIDs := make([]int64, len(results))
	for i, r := range results {
		finalIDs[i] = r.Entity.ID
	}
	rels, err := s.RelationsWithin(ctx, finalIDs)
	if err != nil {
		return nil, nil, err
	}
	return results, rels, nil
}

// keywordStrategy scores entities by matched keyword rows times the
// highest matched weight.
func (s *Store) keywordStrategy(ctx context.Context, terms []string, filter SearchFilter) (map[int64]float64, error) {
	conds := make([]string, len(terms))
	args := make([]any, 0, len(terms)+2)
	for i, t := range terms {
		conds[i] = "k.keyword LIKE ?"
		args = append(args, "%"+t+"%")
	}
	q := `SELECT e.id, COUNT(k.id) AS matches, MAX(k.weight) AS max_weight
		FROM keywords k
		JOIN entities e ON e.id = k.entity_id
		WHERE (` + strings.Join(conds, " OR ") + `)`
	if !filter.AllBranches {
		q += ` AND e.branch_id = ?`
		args = append(args, filter.BranchID)
	}
	q += ` AND e.status IN (?) GROUP BY e.id`
	args = append(args, filter.statuses())

	query, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("build keyword query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("keyword strategy: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var matches int
		var maxWeight float64
		if err := rows.Scan(&id, &matches, &maxWeight); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		scores[id] = float64(matches) * maxWeight
	}
	return scores, rows.Err()
}

// ftsStrategy matches the OR-of-terms expression against the FTS shadow
// and normalises the BM25 rank to (0, 1].
func (s *Store) ftsStrategy(ctx context.Context, terms []string, filter SearchFilter) (map[int64]float64, error) {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	q := `SELECT e.id, 1.0 / (1.0 + abs(entities_fts.rank)) AS score
		FROM entities_fts
		JOIN entities e ON e.id = entities_fts.rowid
		WHERE entities_fts MATCH ?`
	args := []any{match}
	if !filter.AllBranches {
		q += ` AND e.branch_id = ?`
		args = append(args, filter.BranchID)
	}
	q += ` AND e.status IN (?)`
	args = append(args, filter.statuses())

	query, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("build fts query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("fts match: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		scores[id] = score
	}
	return scores, rows.Err()
}

// likeStrategy scores substring matches per term: name 10, type 8,
// observation content 3, summed across terms.
func (s *Store) likeStrategy(ctx context.Context, terms []string, filter SearchFilter) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	for _, t := range terms {
		pattern := "%" + t + "%"
		q := `SELECT id, score FROM (
			SELECT e.id AS id,
			       (e.name LIKE ?) * 10
			     + (e.entity_type LIKE ?) * 8
			     + EXISTS(SELECT 1 FROM observations o
			              WHERE o.entity_id = e.id AND o.content LIKE ?) * 3 AS score
			FROM entities e
			WHERE 1 = 1`
		args := []any{pattern, pattern, pattern}
		if !filter.AllBranches {
			q += ` AND e.branch_id = ?`
			args = append(args, filter.BranchID)
		}
		q += ` AND e.status IN (?)) WHERE score > 0`
		args = append(args, filter.statuses())

		query, inArgs, err := sqlx.In(q, args...)
		if err != nil {
			return nil, fmt.Errorf("build like query: %w", err)
		}
		rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), inArgs...)
		if err != nil {
			return nil, fmt.Errorf("like strategy: %w", err)
		}
		for rows.Next() {
			var id int64
			var score float64
			if err := rows.Scan(&id, &score); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan like hit: %w", err)
			}
			scores[id] += score
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return scores, nil
}
