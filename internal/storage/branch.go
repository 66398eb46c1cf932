package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/branchmem/branchmem/internal/models"
)

// MainBranch is the reserved default branch, pre-seeded with id 1.
const MainBranch = "main"

// branchNamePattern is the permissive identifier pattern branch names
// must match.
var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidBranchName reports whether name is an acceptable branch name.
func ValidBranchName(name string) bool {
	return branchNamePattern.MatchString(name)
}

// CreateBranch creates a branch explicitly, failing on duplicates and
// on the reserved name.
func (s *Store) CreateBranch(ctx context.Context, name, purpose string) (models.Branch, error) {
	if !ValidBranchName(name) {
		return models.Branch{}, fmt.Errorf("branch name %q: %w", name, ErrInvalid)
	}
	if name == MainBranch {
		return models.Branch{}, fmt.Errorf("branch %q: %w", name, ErrDuplicateBranch)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO branches (name, purpose) VALUES (?, ?)`, name, purpose)
	if err != nil {
		return models.Branch{}, fmt.Errorf("insert branch %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Branch{}, fmt.Errorf("branch %q: %w", name, ErrDuplicateBranch)
	}
	return s.GetBranch(ctx, name)
}

// EnsureBranch returns the named branch, creating it on first reference.
func (s *Store) EnsureBranch(ctx context.Context, name string) (models.Branch, error) {
	if name == "" {
		name = MainBranch
	}
	if !ValidBranchName(name) {
		return models.Branch{}, fmt.Errorf("branch name %q: %w", name, ErrInvalid)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO branches (name) VALUES (?)`, name); err != nil {
		return models.Branch{}, fmt.Errorf("ensure branch %q: %w", name, err)
	}
	return s.GetBranch(ctx, name)
}

// GetBranch looks up a branch by name.
func (s *Store) GetBranch(ctx context.Context, name string) (models.Branch, error) {
	var b models.Branch
	err := s.db.GetContext(ctx, &b,
		`SELECT id, name, purpose, created_at, updated_at FROM branches WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Branch{}, fmt.Errorf("branch %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return models.Branch{}, fmt.Errorf("get branch %q: %w", name, err)
	}
	return b, nil
}

// ListBranches returns all branches with entity and relation counts,
// main first, then lexicographic.
func (s *Store) ListBranches(ctx context.Context) ([]models.BranchInfo, error) {
	var branches []models.BranchInfo
	err := s.db.SelectContext(ctx, &branches, `
		SELECT b.id, b.name, b.purpose, b.created_at, b.updated_at,
		       COUNT(DISTINCT e.id) AS entity_count,
		       COUNT(DISTINCT r.id) AS relation_count
		FROM branches b
		LEFT JOIN entities e ON e.branch_id = b.id
		LEFT JOIN relations r ON r.branch_id = b.id
		GROUP BY b.id
		ORDER BY CASE WHEN b.name = 'main' THEN 0 ELSE 1 END, b.name`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// DeleteBranch removes a branch and everything it owns. Entities are
// deleted row by row so the FTS shadow triggers fire; the foreign keys
// then cascade observations, keywords, relations, and cross-references.
// The main branch is protected; a missing branch is NotFound.
func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	if name == MainBranch {
		return ErrCannotDeleteMain
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var branchID int64
	err = tx.GetContext(ctx, &branchID, `SELECT id FROM branches WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("branch %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup branch %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE branch_id = ?`, branchID); err != nil {
		return fmt.Errorf("delete branch entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE id = ?`, branchID); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return tx.Commit()
}
