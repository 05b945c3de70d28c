package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	locking "github.com/tuannm99/geovec/internal/lock"
)

// Role names one file of a dataset.
type Role uint8

const (
	RoleGeometry Role = iota
	RoleIndex
	RoleTable
	RoleProjection
	RoleEncoding
)

// CommitOrder is the order in which staged files replace visible ones.
var CommitOrder = []Role{RoleGeometry, RoleIndex, RoleTable, RoleProjection, RoleEncoding}

// Ext returns the lower-case file extension of r, without the dot.
func (r Role) Ext() string {
	switch r {
	case RoleGeometry:
		return "shp"
	case RoleIndex:
		return "shx"
	case RoleTable:
		return "dbf"
	case RoleProjection:
		return "prj"
	case RoleEncoding:
		return "cpg"
	}
	return fmt.Sprintf("role%d", uint8(r))
}

// Optional reports whether a dataset is valid without this file.
func (r Role) Optional() bool { return r == RoleProjection || r == RoleEncoding }

func (r Role) String() string { return r.Ext() }

// RoleOf maps an extension (any case, with or without dot) to its role.
func RoleOf(ext string) (Role, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, r := range CommitOrder {
		if r.Ext() == ext {
			return r, true
		}
	}
	return 0, false
}

var defaultLocks = locking.NewRegistry()

type Options struct {
	// Locks is shared by every FileSet that must see each other's
	// transactions. Nil uses a process-wide registry.
	Locks *locking.Registry
	// UseMmap maps files into memory for reading where supported.
	UseMmap bool
}

// FileSet is a directory plus the base name shared by a dataset's files.
type FileSet struct {
	Dir  string
	Base string

	opts Options
	ops  osOps
}

func NewFileSet(dir, base string, opts Options) *FileSet {
	if opts.Locks == nil {
		opts.Locks = defaultLocks
	}
	return &FileSet{Dir: filepath.Clean(dir), Base: base, opts: opts, ops: osImpl{}}
}

// Key identifies the dataset in the lock registry.
func (fs *FileSet) Key() string { return locking.Key(fs.Dir, fs.Base) }

func (fs *FileSet) String() string { return fs.Key() }

func (fs *FileSet) canonical(r Role) string {
	return filepath.Join(fs.Dir, fs.Base+"."+r.Ext())
}

// Path returns the visible file for r. Existing files are matched without
// regard to case; otherwise the lower-case name is returned.
func (fs *FileSet) Path(r Role) string {
	p := fs.canonical(r)
	if _, err := fs.ops.Stat(p); err == nil {
		return p
	}
	want := fs.Base + "." + r.Ext()
	ents, err := fs.ops.ReadDir(fs.Dir)
	if err != nil {
		return p
	}
	for _, e := range ents {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(fs.Dir, e.Name())
		}
	}
	return p
}

// Exists reports whether the file for r is present.
func (fs *FileSet) Exists(r Role) bool {
	_, err := fs.ops.Stat(fs.Path(r))
	return err == nil
}

// Validate fails with ErrIncompleteFileSet when a required file is missing.
func (fs *FileSet) Validate() error {
	var missing []string
	for _, r := range CommitOrder {
		if !r.Optional() && !fs.Exists(r) {
			missing = append(missing, r.Ext())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrIncompleteFileSet, fs.Key(), strings.Join(missing, ", "))
	}
	return nil
}

// AcquireRead takes the shared lock over the visible files. Call release
// exactly once.
func (fs *FileSet) AcquireRead(ctx context.Context) (release func(), err error) {
	e := fs.opts.Locks.Acquire(fs.Key())
	if err := e.Files.RLock(ctx); err != nil {
		fs.opts.Locks.Release(e)
		return nil, fmt.Errorf("storage: acquire read lock on %s: %w", fs.Key(), err)
	}
	return func() {
		e.Files.RUnlock()
		fs.opts.Locks.Release(e)
	}, nil
}

// AcquireWrite takes the exclusive lock over the visible files.
func (fs *FileSet) AcquireWrite(ctx context.Context) (release func(), err error) {
	e := fs.opts.Locks.Acquire(fs.Key())
	if err := e.Files.Lock(ctx); err != nil {
		fs.opts.Locks.Release(e)
		return nil, fmt.Errorf("storage: acquire write lock on %s: %w", fs.Key(), err)
	}
	return func() {
		e.Files.Unlock()
		fs.opts.Locks.Release(e)
	}, nil
}

// Snapshot holds open sources for one committed generation of the files.
type Snapshot struct {
	sources map[Role]Source
	gen     Generation
}

// Generation identifies the files a snapshot opened, one entry per role.
// Absent optional files are nil.
type Generation [RoleEncoding + 1]os.FileInfo

// Same reports whether g and o were opened from the same files. A commit
// replaces files by rename, so any commit between the two makes them
// differ.
func (g Generation) Same(o Generation) bool {
	for i := range g {
		a, b := g[i], o[i]
		if a == nil || b == nil {
			if a != b {
				return false
			}
			continue
		}
		if !os.SameFile(a, b) || a.Size() != b.Size() || !a.ModTime().Equal(b.ModTime()) {
			return false
		}
	}
	return true
}

// Open validates the file set and opens every present file under the
// shared lock. The handles stay readable after a later commit replaces the
// files, so the snapshot never observes a mix of generations.
func (fs *FileSet) Open(ctx context.Context) (*Snapshot, error) {
	release, err := fs.AcquireRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := fs.Validate(); err != nil {
		return nil, err
	}
	snap := &Snapshot{sources: make(map[Role]Source, len(CommitOrder))}
	for _, r := range CommitOrder {
		p := fs.Path(r)
		if r.Optional() && !fs.Exists(r) {
			continue
		}
		src, info, err := openSource(p, fs.opts.UseMmap)
		if err != nil {
			_ = snap.Close()
			return nil, fmt.Errorf("storage: open %s: %w", p, err)
		}
		snap.sources[r] = src
		snap.gen[r] = info
	}
	slog.Debug("storage: snapshot opened", "dataset", fs.Key(), "files", len(snap.sources))
	return snap, nil
}

func (s *Snapshot) Generation() Generation { return s.gen }

// Source returns the source for r, or nil when the optional file is absent.
func (s *Snapshot) Source(r Role) Source { return s.sources[r] }

func (s *Snapshot) Close() error {
	var errs []error
	for r, src := range s.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.sources, r)
	}
	return errors.Join(errs...)
}

// ReadAll returns the whole content of r, or nil when the optional file
// is absent.
func (s *Snapshot) ReadAll(r Role) ([]byte, error) {
	src := s.sources[r]
	if src == nil {
		return nil, nil
	}
	if m := src.Mapped(); m != nil {
		return append([]byte(nil), m...), nil
	}
	buf := make([]byte, src.Size())
	if _, err := src.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}
