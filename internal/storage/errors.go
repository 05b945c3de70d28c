package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tuannm99/geovec/internal/wal"
)

var (
	ErrIncompleteFileSet = errors.New("storage: dataset file set is incomplete")
	ErrTxDone            = errors.New("storage: transaction already committed or rolled back")
	ErrRequiredFile      = errors.New("storage: required file cannot be removed")
	ErrPartialCommit     = errors.New("storage: partial commit")
	ErrCorruptJournal    = wal.ErrCorruptJournal
)

// PartialCommitError reports a commit that failed after at least one file
// was swapped in. The journal is left in place; FileSet.Recover rolls the
// remaining files forward.
type PartialCommitError struct {
	Dataset string
	Swapped []Role
	Pending []Role
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("storage: partial commit of %s (swapped [%s], pending [%s]): %v",
		e.Dataset, joinRoles(e.Swapped), joinRoles(e.Pending), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

func joinRoles(rs []Role) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.Ext()
	}
	return strings.Join(parts, " ")
}
