package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	locking "github.com/tuannm99/geovec/internal/lock"
	"github.com/tuannm99/geovec/internal/metrics"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/internal/shp"
	"github.com/tuannm99/geovec/internal/storage"
)

// Options tune a Database. The zero value is usable.
type Options struct {
	UseMmap    bool
	WindowSize int
	// Charset is assumed for tables without a .cpg file.
	Charset string
	// IDField names the column that supplies feature identifiers, when a
	// dataset has it.
	IDField string
	// LockTimeout bounds lock waits; zero waits as long as the context.
	LockTimeout time.Duration
	// AutoRecover replays a leftover commit journal when a dataset opens.
	AutoRecover bool
	// Resolver looks up reference systems; it is wrapped in a cache owned
	// by the Database. Nil uses crs.NewStatic.
	Resolver     crs.Resolver
	CRSCacheSize int
	Locks        *locking.Registry
	Metrics      *metrics.Metrics
}

type DatabaseOperation interface {
	Open(ctx context.Context, name string) (*Store, error)
	Create(ctx context.Context, name string, schema *record.Schema) (*Store, error)
	Delete(ctx context.Context, name string) error
	List() ([]string, error)
	Close() error
}

var _ DatabaseOperation = (*Database)(nil)

// Database is a directory of datasets, each a set of files sharing one
// base name.
type Database struct {
	DataDir string

	opts Options
	crs  *crs.Cache

	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

// NewDatabase creates a database handle without touching the filesystem.
func NewDatabase(dataDir string, opts Options) *Database {
	if opts.Charset == "" {
		opts.Charset = dbf.DefaultCharset
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = storage.DefaultWindowSize
	}
	if opts.Resolver == nil {
		opts.Resolver = crs.NewStatic()
	}
	if opts.CRSCacheSize <= 0 {
		opts.CRSCacheSize = crs.DefaultCacheCapacity
	}
	return &Database{
		DataDir: dataDir,
		opts:    opts,
		crs:     crs.NewCache(opts.Resolver, opts.CRSCacheSize),
		stores:  make(map[string]*Store),
	}
}

// Resolver is the database's cached reference-system lookup.
func (db *Database) Resolver() crs.Resolver { return db.crs }

func (db *Database) Metrics() *metrics.Metrics { return db.opts.Metrics }

func (db *Database) fileSet(name string) *storage.FileSet {
	return storage.NewFileSet(db.DataDir, name, storage.Options{Locks: db.opts.Locks, UseMmap: db.opts.UseMmap})
}

// lockContext applies the lock timeout to ctx.
func (db *Database) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.opts.LockTimeout > 0 {
		return context.WithTimeout(ctx, db.opts.LockTimeout)
	}
	return ctx, func() {}
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// store returns the shared handle for name; fresh is true the first time.
func (db *Database) store(name string) (s *Store, fresh bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, false, ErrDatabaseClosed
	}
	if s, ok := db.stores[name]; ok {
		return s, false, nil
	}
	s = &Store{db: db, name: name, fs: db.fileSet(name)}
	db.stores[name] = s
	return s, true, nil
}

// Open returns the store for an existing dataset.
func (db *Database) Open(ctx context.Context, name string) (*Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	s, fresh, err := db.store(name)
	if err != nil {
		return nil, err
	}
	fs := s.fs

	// only the first open looks for leftovers; later ones could mistake a
	// running writer's side files for an interrupted commit
	if fresh && fs.NeedsRecovery() {
		if !db.opts.AutoRecover {
			slog.Warn("engine: dataset has an unfinished commit, run recover", "dataset", name)
		} else if _, err := s.Recover(ctx); err != nil {
			return nil, err
		}
	}
	if !fs.Exists(storage.RoleGeometry) && !fs.Exists(storage.RoleTable) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	if err := fs.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create writes an empty dataset, replacing any existing one of the same
// name. Sidecars the new schema does not call for are removed.
func (db *Database) Create(ctx context.Context, name string, schema *record.Schema) (*Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	sc := *schema
	if sc.TypeName == "" {
		sc.TypeName = name
	}
	if sc.Geometry.Name == "" {
		sc.Geometry.Name = record.DefaultGeometryName
	}
	if sc.Charset == "" {
		sc.Charset = db.opts.Charset
	}
	if _, err := shp.ShapeTypeFor(sc.Geometry.Kind, sc.Geometry.Layout); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnsupportedGeometryKind, sc.Geometry.Kind, sc.Geometry.Layout, err)
	}

	s, _, err := db.store(name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	lctx, cancel := db.lockContext(ctx)
	tx, err := s.fs.Begin(lctx)
	cancel()
	if err != nil {
		return nil, err
	}
	w, err := record.NewWriter(ctx, &sc, nil, tx, s.writerOptions())
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := stageSidecars(ctx, tx, &sc); err != nil {
		_ = w.Close()
		return nil, err
	}
	_, err = w.Commit(ctx)
	db.opts.Metrics.RecordCommit(name, err == nil, time.Since(start))
	s.Invalidate()
	if err != nil {
		return nil, err
	}
	slog.Info("engine: dataset created", "dataset", name, "schema", sc.String())
	if _, err := s.Schema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func stageSidecars(ctx context.Context, tx *storage.Transaction, sc *record.Schema) error {
	if sc.CRS != nil && sc.CRS.WKT != "" {
		prj, err := tx.Stage(ctx, storage.RoleProjection)
		if err != nil {
			return err
		}
		if _, err := prj.WriteString(sc.CRS.WKT); err != nil {
			return err
		}
	} else if err := tx.Remove(storage.RoleProjection); err != nil {
		return err
	}
	cpg, err := tx.Stage(ctx, storage.RoleEncoding)
	if err != nil {
		return err
	}
	_, err = cpg.WriteString(sc.Charset)
	return err
}

// Recover repairs a dataset that may be too broken to Open.
func (db *Database) Recover(ctx context.Context, name string) (*storage.RecoveryReport, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	s, _, err := db.store(name)
	if err != nil {
		return nil, err
	}
	return s.Recover(ctx)
}

// Delete is not offered; datasets are removed out of band.
func (db *Database) Delete(context.Context, string) error {
	return ErrUnsupportedOperation
}

// List names the datasets in the directory, sorted.
func (db *Database) List() ([]string, error) {
	ents, err := os.ReadDir(db.DataDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !strings.EqualFold(ext, "."+storage.RoleGeometry.Ext()) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ext)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	sort.Strings(out)
	return out, nil
}

// Close ends every watch. Handles obtained earlier keep working.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	for _, s := range db.stores {
		s.closeWatchers()
	}
	return nil
}

// geometryBinding derives the binding a shape type stands for.
func geometryBinding(st shp.ShapeType) (record.GeometryBinding, error) {
	if st == shp.NullShape || !st.Valid() {
		return record.GeometryBinding{}, fmt.Errorf("%w: shape type %s", ErrUnsupportedGeometryKind, st)
	}
	return record.GeometryBinding{Name: record.DefaultGeometryName, Kind: st.Binding(), Layout: st.Layout()}, nil
}
