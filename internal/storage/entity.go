package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/branchmem/branchmem/internal/models"
)

const entityColumns = `id, name, entity_type, branch_id, status, status_reason,
	original_content, optimized_content, token_count, compression_ratio,
	created_at, updated_at, last_accessed`

// CreateEntity inserts an entity together with its observations,
// keywords, and cross-references in one transaction. (name, branch) is
// unique; collisions fail with ErrDuplicateEntity and leave the store
// unchanged.
func (s *Store) CreateEntity(ctx context.Context, branchName string, in models.EntityInput) (models.Entity, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.Entity{}, fmt.Errorf("entity name: %w", ErrInvalid)
	}
	status := in.Status
	if status == "" {
		status = models.StatusActive
	}
	if !status.Valid() {
		return models.Entity{}, fmt.Errorf("status %q: %w", in.Status, ErrInvalid)
	}

	branch, err := s.EnsureBranch(ctx, branchName)
	if err != nil {
		return models.Entity{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Entity{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.GetContext(ctx, &existing,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, in.Name, branch.ID)
	if err == nil {
		return models.Entity{}, fmt.Errorf("entity %q in branch %q: %w", in.Name, branch.Name, ErrDuplicateEntity)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, fmt.Errorf("check duplicate: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, branch_id, status, status_reason,
			original_content, optimized_content, token_count, compression_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.EntityType, branch.ID, status, in.StatusReason,
		in.OriginalContent, in.OptimizedContent, in.TokenCount, in.CompressionRatio)
	if err != nil {
		return models.Entity{}, fmt.Errorf("insert entity %q: %w", in.Name, err)
	}
	entityID, err := res.LastInsertId()
	if err != nil {
		return models.Entity{}, fmt.Errorf("entity id: %w", err)
	}

	if err := insertObservations(ctx, tx, entityID, in.Observations, in.OptimizedObs, 0); err != nil {
		return models.Entity{}, err
	}

	for _, kw := range in.Keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keywords (keyword, entity_id, weight, context) VALUES (?, ?, ?, ?)`,
			kw.Keyword, entityID, kw.Weight, kw.Context); err != nil {
			return models.Entity{}, fmt.Errorf("insert keyword %q: %w", kw.Keyword, err)
		}
	}

	if err := insertCrossRefs(ctx, tx, entityID, in.CrossRefs); err != nil {
		return models.Entity{}, err
	}

	if err := touchBranch(ctx, tx, branch.ID); err != nil {
		return models.Entity{}, fmt.Errorf("touch branch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Entity{}, fmt.Errorf("commit: %w", err)
	}

	return s.GetEntityByName(ctx, branch.Name, in.Name)
}

// insertObservations appends non-blank contents starting at sequence
// startAfter+1. Blank contents (after trimming) are dropped.
func insertObservations(ctx context.Context, tx *sqlx.Tx, entityID int64, contents, optimized []string, startAfter int) error {
	seq := startAfter
	for i, content := range contents {
		if strings.TrimSpace(content) == "" {
			continue
		}
		seq++
		opt := ""
		if i < len(optimized) {
			opt = optimized[i]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (entity_id, content, optimized_content, sequence_order)
			 VALUES (?, ?, ?, ?)`,
			entityID, content, opt, seq); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	return nil
}

func insertCrossRefs(ctx context.Context, tx *sqlx.Tx, entityID int64, groups []models.CrossRefGroup) error {
	for _, group := range groups {
		var targetBranchID int64
		err := tx.GetContext(ctx, &targetBranchID,
			`SELECT id FROM branches WHERE name = ?`, group.TargetBranch)
		if errors.Is(err, sql.ErrNoRows) {
			// Target branches are created on first reference.
			res, err := tx.ExecContext(ctx,
				`INSERT INTO branches (name) VALUES (?)`, group.TargetBranch)
			if err != nil {
				return fmt.Errorf("ensure target branch %q: %w", group.TargetBranch, err)
			}
			targetBranchID, _ = res.LastInsertId()
		} else if err != nil {
			return fmt.Errorf("lookup target branch %q: %w", group.TargetBranch, err)
		}
		for _, name := range group.EntityNames {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO cross_references (from_entity_id, target_branch_id, target_entity_name)
				VALUES (?, ?, ?)`,
				entityID, targetBranchID, name); err != nil {
				return fmt.Errorf("insert cross-reference: %w", err)
			}
		}
	}
	return nil
}

// UpdateEntity replaces type, status, reason, the ordered observation
// list, and the cross-references of an existing entity.
func (s *Store) UpdateEntity(ctx context.Context, branchName string, in models.EntityInput) (models.Entity, error) {
	if in.Status != "" && !in.Status.Valid() {
		return models.Entity{}, fmt.Errorf("status %q: %w", in.Status, ErrInvalid)
	}
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return models.Entity{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Entity{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var entityID int64
	err = tx.GetContext(ctx, &entityID,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, in.Name, branch.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, fmt.Errorf("entity %q in branch %q: %w", in.Name, branch.Name, ErrNotFound)
	}
	if err != nil {
		return models.Entity{}, fmt.Errorf("lookup entity %q: %w", in.Name, err)
	}

	status := in.Status
	if status == "" {
		status = models.StatusActive
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET entity_type = ?, status = ?, status_reason = ?,
		    original_content = ?, optimized_content = ?,
		    token_count = ?, compression_ratio = ?,
		    updated_at = datetime('now')
		WHERE id = ?`,
		in.EntityType, status, in.StatusReason,
		in.OriginalContent, in.OptimizedContent,
		in.TokenCount, in.CompressionRatio, entityID); err != nil {
		return models.Entity{}, fmt.Errorf("update entity %q: %w", in.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, entityID); err != nil {
		return models.Entity{}, fmt.Errorf("clear observations: %w", err)
	}
	if err := insertObservations(ctx, tx, entityID, in.Observations, in.OptimizedObs, 0); err != nil {
		return models.Entity{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cross_references WHERE from_entity_id = ?`, entityID); err != nil {
		return models.Entity{}, fmt.Errorf("clear cross-references: %w", err)
	}
	if err := insertCrossRefs(ctx, tx, entityID, in.CrossRefs); err != nil {
		return models.Entity{}, err
	}

	if err := touchBranch(ctx, tx, branch.ID); err != nil {
		return models.Entity{}, fmt.Errorf("touch branch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Entity{}, fmt.Errorf("commit: %w", err)
	}

	return s.GetEntityByName(ctx, branch.Name, in.Name)
}

// DeleteEntities removes the named entities. Observations, keywords,
// cross-references, incident relations, and the FTS shadow rows go with
// them. Names that do not exist are skipped; the count of removed
// entities is returned.
func (s *Store) DeleteEntities(ctx context.Context, branchName string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(
		`SELECT id FROM entities WHERE branch_id = ? AND name IN (?)`, branch.ID, names)
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("lookup entities: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Relations cascade via foreign keys; the entity delete also fires
	// the FTS shadow trigger per row.
	query, args, err = sqlx.In(`DELETE FROM entities WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("delete entities: %w", err)
	}

	if err := touchBranch(ctx, tx, branch.ID); err != nil {
		return 0, fmt.Errorf("touch branch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ids), nil
}

// AddObservations appends contents after the entity's current highest
// sequence_order. Blank contents are dropped; the contents actually
// added are returned in order.
func (s *Store) AddObservations(ctx context.Context, branchName, entityName string, contents []string, optimized []string) ([]string, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var entityID int64
	err = tx.GetContext(ctx, &entityID,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, entityName, branch.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %q in branch %q: %w", entityName, branch.Name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity %q: %w", entityName, err)
	}

	var maxSeq int
	if err := tx.GetContext(ctx, &maxSeq,
		`SELECT COALESCE(MAX(sequence_order), 0) FROM observations WHERE entity_id = ?`, entityID); err != nil {
		return nil, fmt.Errorf("max sequence: %w", err)
	}

	var added []string
	seq := maxSeq
	for i, content := range contents {
		if strings.TrimSpace(content) == "" {
			continue
		}
		seq++
		opt := ""
		if i < len(optimized) {
			opt = optimized[i]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (entity_id, content, optimized_content, sequence_order)
			 VALUES (?, ?, ?, ?)`,
			entityID, content, opt, seq); err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		added = append(added, content)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET updated_at = datetime('now') WHERE id = ?`, entityID); err != nil {
		return nil, fmt.Errorf("touch entity: %w", err)
	}
	if err := touchBranch(ctx, tx, branch.ID); err != nil {
		return nil, fmt.Errorf("touch branch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

// DeleteObservations removes observations by exact, case-sensitive
// content match. Survivors keep their sequence_order.
func (s *Store) DeleteObservations(ctx context.Context, branchName, entityName string, contents []string) (int, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return 0, err
	}

	var entityID int64
	err = s.db.GetContext(ctx, &entityID,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, entityName, branch.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("entity %q in branch %q: %w", entityName, branch.Name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup entity %q: %w", entityName, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, content := range contents {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM observations WHERE entity_id = ? AND content = ?`, entityID, content)
		if err != nil {
			return 0, fmt.Errorf("delete observation: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := touchBranch(ctx, tx, branch.ID); err != nil {
		return 0, fmt.Errorf("touch branch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// GetEntityByName loads a single entity with its observations.
func (s *Store) GetEntityByName(ctx context.Context, branchName, name string) (models.Entity, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return models.Entity{}, err
	}

	var e models.Entity
	err = s.db.GetContext(ctx, &e,
		`SELECT `+entityColumns+` FROM entities WHERE name = ? AND branch_id = ?`, name, branch.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, fmt.Errorf("entity %q in branch %q: %w", name, branch.Name, ErrNotFound)
	}
	if err != nil {
		return models.Entity{}, fmt.Errorf("get entity %q: %w", name, err)
	}
	if err := s.loadObservations(ctx, &e); err != nil {
		return models.Entity{}, err
	}
	return e, nil
}

// GetEntities loads entities by exact name within a branch, filtered by
// status when statuses is non-empty, with observations attached.
func (s *Store) GetEntities(ctx context.Context, branchName string, names []string, statuses []models.EntityStatus) ([]models.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + entityColumns + ` FROM entities WHERE branch_id = ? AND name IN (?)`
	args := []any{branch.ID, names}
	if len(statuses) > 0 {
		q += ` AND status IN (?)`
		args = append(args, statuses)
	}
	q += ` ORDER BY name`

	query, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var entities []models.Entity
	if err := s.db.SelectContext(ctx, &entities, s.db.Rebind(query), inArgs...); err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	for i := range entities {
		if err := s.loadObservations(ctx, &entities[i]); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// ListEntities returns entities in a branch filtered by status, ordered
// by name, capped at limit when limit > 0. Observations are attached.
func (s *Store) ListEntities(ctx context.Context, branchName string, statuses []models.EntityStatus, limit int) ([]models.Entity, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + entityColumns + ` FROM entities WHERE branch_id = ?`
	args := []any{branch.ID}
	if len(statuses) > 0 {
		q += ` AND status IN (?)`
		args = append(args, statuses)
	}
	q += ` ORDER BY name`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	query, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var entities []models.Entity
	if err := s.db.SelectContext(ctx, &entities, s.db.Rebind(query), inArgs...); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	for i := range entities {
		if err := s.loadObservations(ctx, &entities[i]); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// TouchAccessed refreshes last_accessed on a set of entities.
func (s *Store) TouchAccessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE entities SET last_accessed = datetime('now') WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build touch: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("touch accessed: %w", err)
	}
	return nil
}

func (s *Store) loadObservations(ctx context.Context, e *models.Entity) error {
	err := s.db.SelectContext(ctx, &e.Observations, `
		SELECT id, entity_id, content, optimized_content, sequence_order, created_at
		FROM observations WHERE entity_id = ? ORDER BY sequence_order`, e.ID)
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	return nil
}

func defaultBranch(name string) string {
	if name == "" {
		return MainBranch
	}
	return name
}
