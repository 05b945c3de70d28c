package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	locking "github.com/tuannm99/geovec/internal/lock"
	"github.com/tuannm99/geovec/internal/wal"
)

const stagedSuffix = ".tmp"

// Transaction stages replacement files for a dataset and swaps them in on
// Commit. It holds the dataset's staging lock from Begin until Commit or
// Rollback, so at most one transaction per dataset is open at a time.
// Readers are not blocked until Commit takes the exclusive lock for the
// journal and rename window.
type Transaction struct {
	fs      *FileSet
	id      string
	entry   *locking.Entry
	staged  map[Role]*StagedFile
	removed map[Role]bool
	done    bool
}

// Begin opens a transaction, waiting for any other writer on the dataset.
func (fs *FileSet) Begin(ctx context.Context) (*Transaction, error) {
	if err := fs.ops.MkdirAll(fs.Dir, 0o755); err != nil {
		return nil, err
	}
	e := fs.opts.Locks.Acquire(fs.Key())
	if err := e.Staging.Lock(ctx); err != nil {
		fs.opts.Locks.Release(e)
		return nil, fmt.Errorf("storage: begin on %s: %w", fs.Key(), err)
	}
	tx := &Transaction{
		fs:      fs,
		id:      uuid.NewString(),
		entry:   e,
		staged:  make(map[Role]*StagedFile),
		removed: make(map[Role]bool),
	}
	slog.Debug("storage: transaction begun", "dataset", fs.Key(), "tx", tx.id)
	return tx, nil
}

func (tx *Transaction) ID() string { return tx.id }

func (tx *Transaction) FileSet() *FileSet { return tx.fs }

// StagedName is the side-file name for role within transaction id.
func StagedName(base string, r Role, id string) string {
	return fmt.Sprintf("%s.%s.%s%s", base, r.Ext(), id, stagedSuffix)
}

// Stage returns the side file for r, creating it on first use. Writes made
// through it become visible only on Commit.
func (tx *Transaction) Stage(ctx context.Context, r Role) (*StagedFile, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if sf, ok := tx.staged[r]; ok {
		return sf, nil
	}
	path := filepath.Join(tx.fs.Dir, StagedName(tx.fs.Base, r, tx.id))
	f, err := tx.fs.ops.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: stage %s: %w", r, err)
	}
	sf := newStagedFile(ctx, r, path, f)
	tx.staged[r] = sf
	delete(tx.removed, r)
	return sf, nil
}

// Staged returns the side file for r if one was staged.
func (tx *Transaction) Staged(r Role) (*StagedFile, bool) {
	sf, ok := tx.staged[r]
	return sf, ok
}

// Remove schedules deletion of an optional sidecar on Commit.
func (tx *Transaction) Remove(r Role) error {
	if tx.done {
		return ErrTxDone
	}
	if !r.Optional() {
		return fmt.Errorf("%w: %s", ErrRequiredFile, r)
	}
	if sf, ok := tx.staged[r]; ok {
		sf.discard()
		_ = tx.fs.ops.Remove(sf.path)
		delete(tx.staged, r)
	}
	tx.removed[r] = true
	return nil
}

// Commit makes every staged file visible.
//
// Staged files are synced first. Then, under the exclusive lock, a journal
// naming every file and its checksum is written, files are renamed in
// CommitOrder, the directory is synced and the journal deleted. If a rename
// fails after another one succeeded, a *PartialCommitError is returned and
// the journal stays so Recover can finish the swap.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	defer tx.finish()

	for _, sf := range tx.staged {
		if err := sf.finish(); err != nil {
			tx.cleanup()
			return fmt.Errorf("storage: sync %s: %w", sf.path, err)
		}
	}

	j := &wal.Journal{TxID: tx.id, Base: tx.fs.Base, Created: time.Now().UTC()}
	var roles []Role
	for _, r := range CommitOrder {
		switch {
		case tx.staged[r] != nil:
			sf := tx.staged[r]
			sum, err := wal.ChecksumFile(sf.path)
			if err != nil {
				tx.cleanup()
				return fmt.Errorf("storage: checksum %s: %w", sf.path, err)
			}
			j.Entries = append(j.Entries, wal.Entry{
				Role:     r.Ext(),
				Target:   filepath.Base(tx.fs.Path(r)),
				Staged:   filepath.Base(sf.path),
				Checksum: sum,
			})
			roles = append(roles, r)
		case tx.removed[r] && tx.fs.Exists(r):
			j.Entries = append(j.Entries, wal.Entry{Role: r.Ext(), Target: filepath.Base(tx.fs.Path(r)), Remove: true})
			roles = append(roles, r)
		}
	}
	if len(j.Entries) == 0 {
		return nil
	}

	if err := tx.entry.Files.Lock(ctx); err != nil {
		tx.cleanup()
		return fmt.Errorf("storage: commit on %s: %w", tx.fs.Key(), err)
	}
	defer tx.entry.Files.Unlock()

	jpath := wal.Path(tx.fs.Dir, tx.fs.Base)
	if err := wal.Write(jpath, j); err != nil {
		tx.cleanup()
		return fmt.Errorf("storage: write journal: %w", err)
	}

	for i, e := range j.Entries {
		target := filepath.Join(tx.fs.Dir, e.Target)
		var err error
		if e.Remove {
			if err = tx.fs.ops.Remove(target); errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		} else {
			err = tx.fs.ops.Rename(filepath.Join(tx.fs.Dir, e.Staged), target)
		}
		if err == nil {
			continue
		}
		if i == 0 {
			// nothing visible changed yet
			_ = wal.Remove(jpath)
			tx.cleanup()
			return fmt.Errorf("storage: commit %s: %w", e.Target, err)
		}
		pce := &PartialCommitError{
			Dataset: tx.fs.Key(),
			Swapped: append([]Role(nil), roles[:i]...),
			Pending: append([]Role(nil), roles[i:]...),
			Err:     err,
		}
		slog.Error("storage: partial commit, run recovery", "dataset", tx.fs.Key(), "tx", tx.id, "err", pce)
		return pce
	}

	if err := tx.fs.ops.SyncDir(tx.fs.Dir); err != nil {
		return fmt.Errorf("storage: sync dir: %w", err)
	}
	if err := wal.Remove(jpath); err != nil {
		return fmt.Errorf("storage: remove journal: %w", err)
	}
	slog.Debug("storage: transaction committed", "dataset", tx.fs.Key(), "tx", tx.id, "files", len(j.Entries))
	return nil
}

// Rollback discards every staged file. It is a no-op after Commit.
func (tx *Transaction) Rollback() error {
	if tx.done {
		return nil
	}
	defer tx.finish()
	tx.cleanup()
	slog.Debug("storage: transaction rolled back", "dataset", tx.fs.Key(), "tx", tx.id)
	return nil
}

func (tx *Transaction) cleanup() {
	for r, sf := range tx.staged {
		sf.discard()
		if err := tx.fs.ops.Remove(sf.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("storage: remove staged file", "path", sf.path, "err", err)
		}
		delete(tx.staged, r)
	}
}

func (tx *Transaction) finish() {
	if tx.done {
		return
	}
	tx.done = true
	tx.entry.Staging.Unlock()
	tx.fs.opts.Locks.Release(tx.entry)
}

// parseStagedName splits "<base>.<ext>.<txid>.tmp".
func parseStagedName(base, name string) (Role, string, bool) {
	if !strings.HasPrefix(name, base+".") || !strings.HasSuffix(name, stagedSuffix) {
		return 0, "", false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, base+"."), stagedSuffix)
	ext, id, ok := strings.Cut(mid, ".")
	if !ok || id == "" {
		return 0, "", false
	}
	r, ok := RoleOf(ext)
	if !ok {
		return 0, "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return 0, "", false
	}
	return r, id, true
}
