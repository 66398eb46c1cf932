package storage

import "errors"

// Sentinel error kinds surfaced by the store. Callers match with
// errors.Is; messages carry the offending name via fmt.Errorf("%w").
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEntity  = errors.New("entity already exists")
	ErrDuplicateBranch  = errors.New("branch already exists")
	ErrCannotDeleteMain = errors.New("cannot delete the main branch")
	ErrInvalid          = errors.New("invalid input")
)
