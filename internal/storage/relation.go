package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/branchmem/branchmem/internal/models"
)

// CreateRelations inserts relations between named entities in a branch.
// Inputs whose endpoints are missing are skipped; duplicates are silent
// no-ops. Only relations actually inserted are returned, so re-issuing
// a batch returns nothing.
func (s *Store) CreateRelations(ctx context.Context, branchName string, inputs []models.RelationInput) ([]models.Relation, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	branch, err := s.EnsureBranch(ctx, branchName)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var created []models.Relation
	for _, in := range inputs {
		fromID, ok, err := entityIDByName(ctx, tx, branch.ID, in.From)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		toID, ok, err := entityIDByName(ctx, tx, branch.ID, in.To)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO relations (from_entity_id, to_entity_id, relation_type, branch_id)
			VALUES (?, ?, ?, ?)`,
			fromID, toID, in.RelationType, branch.ID)
		if err != nil {
			return nil, fmt.Errorf("insert relation %s->%s: %w", in.From, in.To, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // already present
		}
		id, _ := res.LastInsertId()
		created = append(created, models.Relation{
			ID:           id,
			FromEntityID: fromID,
			ToEntityID:   toID,
			From:         in.From,
			To:           in.To,
			RelationType: in.RelationType,
			BranchID:     branch.ID,
		})
	}

	if len(created) > 0 {
		if err := touchBranch(ctx, tx, branch.ID); err != nil {
			return nil, fmt.Errorf("touch branch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// DeleteRelations deletes by (from, to, type) key; absent keys are
// no-ops. Returns the number of rows removed.
func (s *Store) DeleteRelations(ctx context.Context, branchName string, inputs []models.RelationInput) (int, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, in := range inputs {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM relations
			WHERE branch_id = ? AND relation_type = ?
			  AND from_entity_id = (SELECT id FROM entities WHERE name = ? AND branch_id = ?)
			  AND to_entity_id = (SELECT id FROM entities WHERE name = ? AND branch_id = ?)`,
			branch.ID, in.RelationType, in.From, branch.ID, in.To, branch.ID)
		if err != nil {
			return 0, fmt.Errorf("delete relation %s->%s: %w", in.From, in.To, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if total > 0 {
		if err := touchBranch(ctx, tx, branch.ID); err != nil {
			return 0, fmt.Errorf("touch branch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

const relationColumns = `r.id, r.from_entity_id, r.to_entity_id, r.relation_type,
	r.branch_id, r.created_at,
	ef.name AS from_name, et.name AS to_name`

const relationJoins = `
	FROM relations r
	JOIN entities ef ON ef.id = r.from_entity_id
	JOIN entities et ON et.id = r.to_entity_id`

// RelationsWithin returns relations whose endpoints both lie in the
// given entity id set.
func (s *Store) RelationsWithin(ctx context.Context, ids []int64) ([]models.Relation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+relationColumns+relationJoins+`
		WHERE r.from_entity_id IN (?) AND r.to_entity_id IN (?)
		ORDER BY r.id`, ids, ids)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rels []models.Relation
	if err := s.db.SelectContext(ctx, &rels, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("relations within set: %w", err)
	}
	return rels, nil
}

// RelationsIncident returns relations touching any of the given entity
// ids within a branch, deduplicated by row id.
func (s *Store) RelationsIncident(ctx context.Context, branchID int64, ids []int64) ([]models.Relation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT DISTINCT `+relationColumns+relationJoins+`
		WHERE r.branch_id = ? AND (r.from_entity_id IN (?) OR r.to_entity_id IN (?))
		ORDER BY r.id`, branchID, ids, ids)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rels []models.Relation
	if err := s.db.SelectContext(ctx, &rels, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("incident relations: %w", err)
	}
	return rels, nil
}

// BranchRelations returns every relation in a branch.
func (s *Store) BranchRelations(ctx context.Context, branchName string) ([]models.Relation, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return nil, err
	}
	var rels []models.Relation
	err = s.db.SelectContext(ctx, &rels, `
		SELECT `+relationColumns+relationJoins+`
		WHERE r.branch_id = ?
		ORDER BY r.id`, branch.ID)
	if err != nil {
		return nil, fmt.Errorf("branch relations: %w", err)
	}
	return rels, nil
}

func entityIDByName(ctx context.Context, tx *sqlx.Tx, branchID int64, name string) (int64, bool, error) {
	var id int64
	err := tx.GetContext(ctx, &id,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, name, branchID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup entity %q: %w", name, err)
	}
	return id, true, nil
}
