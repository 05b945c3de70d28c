package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tuannm99/geovec/internal/wal"
)

// RecoveryReport describes what Recover did.
type RecoveryReport struct {
	TxID          string
	RolledForward []Role
	Orphans       []string
}

// Clean reports whether there was nothing to recover.
func (r *RecoveryReport) Clean() bool {
	return r.TxID == "" && len(r.Orphans) == 0
}

// NeedsRecovery reports whether a journal or staged side files are left
// over from an interrupted transaction.
func (fs *FileSet) NeedsRecovery() bool {
	if _, err := fs.ops.Stat(wal.Path(fs.Dir, fs.Base)); err == nil {
		return true
	}
	orphans, _ := fs.listStaged()
	return len(orphans) > 0
}

// Recover finishes an interrupted commit and removes orphan side files.
//
// A leftover journal is rolled forward: each staged file whose checksum
// matches its entry is renamed over its target, a target that already
// carries the journalled checksum is accepted as swapped, and anything else
// fails with ErrCorruptJournal leaving the files untouched.
func (fs *FileSet) Recover(ctx context.Context) (*RecoveryReport, error) {
	e := fs.opts.Locks.Acquire(fs.Key())
	defer fs.opts.Locks.Release(e)
	if err := e.Staging.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.Staging.Unlock()
	if err := e.Files.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.Files.Unlock()

	rep := &RecoveryReport{}
	jpath := wal.Path(fs.Dir, fs.Base)
	j, err := wal.Read(jpath)
	switch {
	case errors.Is(err, wal.ErrNoJournal):
	case err != nil:
		return nil, err
	default:
		if err := fs.rollForward(j, rep); err != nil {
			return nil, err
		}
		if err := fs.ops.SyncDir(fs.Dir); err != nil {
			return nil, err
		}
		if err := wal.Remove(jpath); err != nil {
			return nil, err
		}
	}

	orphans, err := fs.listStaged()
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		if err := fs.ops.Remove(filepath.Join(fs.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		rep.Orphans = append(rep.Orphans, name)
	}
	if !rep.Clean() {
		slog.Info("storage: recovered dataset", "dataset", fs.Key(), "tx", rep.TxID,
			"rolled_forward", len(rep.RolledForward), "orphans", len(rep.Orphans))
	}
	return rep, nil
}

func (fs *FileSet) rollForward(j *wal.Journal, rep *RecoveryReport) error {
	// verify everything before touching anything
	type step struct {
		role   Role
		entry  wal.Entry
		rename bool
	}
	var plan []step
	for _, e := range j.Entries {
		r, ok := RoleOf(e.Role)
		if !ok {
			return fmt.Errorf("%w: unknown role %q", ErrCorruptJournal, e.Role)
		}
		if e.Remove {
			plan = append(plan, step{role: r, entry: e})
			continue
		}
		staged := filepath.Join(fs.Dir, e.Staged)
		target := filepath.Join(fs.Dir, e.Target)
		if sum, err := wal.ChecksumFile(staged); err == nil {
			if sum != e.Checksum {
				return fmt.Errorf("%w: %s checksum mismatch", ErrCorruptJournal, e.Staged)
			}
			plan = append(plan, step{role: r, entry: e, rename: true})
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		sum, err := wal.ChecksumFile(target)
		if err != nil || sum != e.Checksum {
			return fmt.Errorf("%w: %s neither staged nor swapped", ErrCorruptJournal, e.Target)
		}
	}

	rep.TxID = j.TxID
	for _, s := range plan {
		target := filepath.Join(fs.Dir, s.entry.Target)
		if !s.rename {
			if err := fs.ops.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		} else if err := fs.ops.Rename(filepath.Join(fs.Dir, s.entry.Staged), target); err != nil {
			return err
		}
		rep.RolledForward = append(rep.RolledForward, s.role)
	}
	return nil
}

// listStaged returns the names of side files left in the directory.
func (fs *FileSet) listStaged() ([]string, error) {
	ents, err := fs.ops.ReadDir(fs.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if _, _, ok := parseStagedName(fs.Base, e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
