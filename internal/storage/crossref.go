package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/branchmem/branchmem/internal/models"
)

// CreateCrossReference links an entity to entities in another branch by
// name. The source entity must exist; target names missing in the
// target branch at call time are skipped silently since cross-references
// resolve lazily. Duplicates are no-ops.
func (s *Store) CreateCrossReference(ctx context.Context, sourceBranch, entityName, targetBranch string, targetNames []string) ([]string, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(sourceBranch))
	if err != nil {
		return nil, err
	}

	var entityID int64
	err = s.db.GetContext(ctx, &entityID,
		`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, entityName, branch.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %q in branch %q: %w", entityName, branch.Name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity %q: %w", entityName, err)
	}

	target, err := s.EnsureBranch(ctx, targetBranch)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var linked []string
	for _, name := range targetNames {
		var targetID int64
		err := tx.GetContext(ctx, &targetID,
			`SELECT id FROM entities WHERE name = ? AND branch_id = ?`, name, target.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue // target may be created later; skip for now
		}
		if err != nil {
			return nil, fmt.Errorf("lookup target %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO cross_references (from_entity_id, target_branch_id, target_entity_name)
			VALUES (?, ?, ?)`,
			entityID, target.ID, name); err != nil {
			return nil, fmt.Errorf("insert cross-reference: %w", err)
		}
		linked = append(linked, name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return linked, nil
}

// GetCrossReferences returns an entity's outbound cross-references
// grouped by target branch.
func (s *Store) GetCrossReferences(ctx context.Context, branchName, entityName string) ([]models.CrossRefGroup, error) {
	branch, err := s.GetBranch(ctx, defaultBranch(branchName))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.name, x.target_entity_name
		FROM cross_references x
		JOIN entities e ON e.id = x.from_entity_id
		JOIN branches b ON b.id = x.target_branch_id
		WHERE e.name = ? AND e.branch_id = ?
		ORDER BY b.name, x.target_entity_name`,
		entityName, branch.ID)
	if err != nil {
		return nil, fmt.Errorf("get cross-references: %w", err)
	}
	defer rows.Close()

	var groups []models.CrossRefGroup
	for rows.Next() {
		var branchName, targetName string
		if err := rows.Scan(&branchName, &targetName); err != nil {
			return nil, fmt.Errorf("scan cross-reference: %w", err)
		}
		if len(groups) == 0 || groups[len(groups)-1].TargetBranch != branchName {
			groups = append(groups, models.CrossRefGroup{TargetBranch: branchName})
		}
		g := &groups[len(groups)-1]
		g.EntityNames = append(g.EntityNames, targetName)
	}
	return groups, rows.Err()
}
