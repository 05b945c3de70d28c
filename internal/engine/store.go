package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/internal/shp"
	"github.com/tuannm99/geovec/internal/storage"
)

// Query selects what a Reader yields. The zero value reads everything.
type Query struct {
	Filter record.Filter
	// BBox limits the result to features whose envelope intersects it and
	// lets the spatial index skip the rest.
	BBox       *geom.Envelope
	Properties []string
	Limit      int
}

// state is what the store knows about one committed generation.
type state struct {
	gen    storage.Generation
	schema *record.Schema
	bounds geom.Envelope
	count  int

	ixMu  sync.Mutex
	index *spatialIndex
}

// Store is the handle for one dataset. It is safe for concurrent use.
type Store struct {
	db   *Database
	name string
	fs   *storage.FileSet

	mu sync.Mutex

	// epoch counts invalidations; a state derived from files opened in an
	// earlier epoch is not cached.
	epoch    uint64
	cur      *state
	watchers []chan ChangeEvent
}

func (s *Store) Name() string { return s.name }

// FileSet exposes the files behind the store.
func (s *Store) FileSet() *storage.FileSet { return s.fs }

// Invalidate drops the cached schema, extent and index.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cur = nil
	s.epoch++
	s.mu.Unlock()
}

// state returns the cached state, deriving it when there is none.
func (s *Store) state(ctx context.Context) (*state, error) {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil {
		return cur, nil
	}
	snap, epoch, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Close() }()
	return s.stateFor(snap, epoch)
}

// open takes a snapshot of the visible files and the epoch it was taken in.
func (s *Store) open(ctx context.Context) (*storage.Snapshot, uint64, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	lctx, cancel := s.db.lockContext(ctx)
	defer cancel()
	snap, err := s.fs.Open(lctx)
	return snap, epoch, err
}

// stateFor returns the state of the generation snap holds. A cached state
// of another generation is replaced.
func (s *Store) stateFor(snap *storage.Snapshot, epoch uint64) (*state, error) {
	gen := snap.Generation()
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil && cur.gen.Same(gen) {
		return cur, nil
	}
	st, err := s.derive(snap)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.cur == cur && s.epoch == epoch {
		s.cur = st
	}
	s.mu.Unlock()
	return st, nil
}

// derive reads the headers and sidecars held by snap.
func (s *Store) derive(snap *storage.Snapshot) (*state, error) {
	charset := s.db.opts.Charset
	if cpg, err := snap.ReadAll(storage.RoleEncoding); err != nil {
		return nil, err
	} else if name := strings.TrimSpace(string(cpg)); name != "" {
		charset = name
	}
	cs, err := dbf.LookupCharset(charset)
	if err != nil {
		return nil, err
	}

	var ref *crs.CRS
	if prj, err := snap.ReadAll(storage.RoleProjection); err != nil {
		return nil, err
	} else if len(prj) > 0 {
		if ref, err = crs.ParsePRJ(string(prj)); err != nil {
			slog.Warn("engine: unreadable .prj, reference system left unset", "dataset", s.name, "err", err)
			ref = nil
		}
	}

	table, err := dbf.NewReader(snap.Source(storage.RoleTable), s.db.opts.WindowSize, dbf.NewCodec(cs, nil))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	geo, err := shp.NewReader(snap.Source(storage.RoleGeometry), snap.Source(storage.RoleIndex), s.db.opts.WindowSize, s.db.crs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	binding, err := geometryBinding(geo.Header().ShapeType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	live, err := table.LiveCount()
	if err != nil {
		return nil, err
	}

	sc := &record.Schema{
		TypeName: s.name,
		Geometry: binding,
		Fields:   append([]dbf.FieldDescriptor(nil), table.Header().Fields...),
		CRS:      ref,
		Charset:  cs.Name(),
	}
	if id := s.db.opts.IDField; id != "" {
		if _, _, ok := sc.Field(id); ok {
			sc.IDField = id
		}
	}
	slog.Debug("engine: schema derived", "dataset", s.name, "schema", sc.String(), "count", live)
	return &state{gen: snap.Generation(), schema: sc, bounds: geo.Header().Bounds, count: live}, nil
}

// Schema returns the dataset schema, derived once per committed state.
func (s *Store) Schema(ctx context.Context) (*record.Schema, error) {
	st, err := s.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.schema, nil
}

// Envelope is the extent recorded in the geometry file header.
func (s *Store) Envelope(ctx context.Context) (geom.Envelope, error) {
	st, err := s.state(ctx)
	if err != nil {
		return geom.Envelope{}, err
	}
	return st.bounds, nil
}

// Count is the number of live features.
func (s *Store) Count(ctx context.Context) (int, error) {
	st, err := s.state(ctx)
	if err != nil {
		return 0, err
	}
	return st.count, nil
}

// UpdateSchema is not offered: changing columns means rewriting the table.
func (s *Store) UpdateSchema(context.Context, *record.Schema) error {
	return ErrUnsupportedOperation
}

func (s *Store) readerOptions() record.ReaderOptions {
	return record.ReaderOptions{WindowSize: s.db.opts.WindowSize, Resolver: s.db.crs}
}

func (s *Store) writerOptions() record.WriterOptions {
	return record.WriterOptions{WindowSize: s.db.opts.WindowSize, Resolver: s.db.crs}
}

// Reader counts what it yields for the metrics.
type Reader struct {
	*record.Reader
	store *Store
	n     int
}

func (r *Reader) Next() (*record.Feature, error) {
	f, err := r.Reader.Next()
	if err == nil {
		r.n++
	}
	return f, err
}

func (r *Reader) Scan(fn func(*record.Feature) error) error {
	for {
		f, err := r.Next()
		if errors.Is(err, record.ErrNoMoreRecords) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

func (r *Reader) Close() error {
	r.store.db.opts.Metrics.RecordRead(r.store.name, r.n)
	r.n = 0
	return r.Reader.Close()
}

// NewReader opens a stream over the current generation. Later commits do
// not affect it.
func (s *Store) NewReader(ctx context.Context, q Query) (*Reader, error) {
	snap, epoch, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.stateFor(snap, epoch)
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	opts := s.readerOptions()
	opts.Properties = q.Properties
	opts.Limit = q.Limit

	filter := q.Filter
	bbox, hasBBox := record.EnvelopeOf(filter)
	if q.BBox != nil {
		bbox, hasBBox = *q.BBox, true
		filter = record.And(record.BBox(bbox), filter)
	}
	opts.Filter = filter
	if hasBBox {
		ix, err := s.index(st, snap)
		if err != nil {
			_ = snap.Close()
			return nil, err
		}
		opts.Candidates = ix.Candidates(bbox)
	}

	r, err := record.NewReader(st.schema, snap, opts)
	if err != nil {
		return nil, err
	}
	return &Reader{Reader: r, store: s}, nil
}

// index returns the spatial index of st, building it from snap on first
// use. snap must hold the generation of st.
func (s *Store) index(st *state, snap *storage.Snapshot) (*spatialIndex, error) {
	st.ixMu.Lock()
	defer st.ixMu.Unlock()
	if st.index != nil {
		return st.index, nil
	}
	opts := s.readerOptions()
	opts.Properties = []string{}
	opts.BorrowSnapshot = true
	r, err := record.NewReader(st.schema, snap, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	ix, err := buildIndex(r)
	if err != nil {
		return nil, err
	}
	st.index = ix
	s.db.opts.Metrics.RecordIndexBuild(s.name)
	slog.Debug("engine: spatial index built", "dataset", s.name, "entries", ix.Len())
	return ix, nil
}

// Writer publishes a change event when its commit succeeds.
type Writer struct {
	*record.Writer
	store   *Store
	started time.Time
}

func (w *Writer) Commit(ctx context.Context) (*record.ChangeSet, error) {
	cs, err := w.Writer.Commit(ctx)
	w.store.committed(cs, err, w.started)
	return cs, err
}

// NewWriter opens a transaction over the dataset. Other writers wait until
// it commits or closes; readers are not blocked.
func (s *Store) NewWriter(ctx context.Context) (*Writer, error) {
	start := time.Now()
	lctx, cancel := s.db.lockContext(ctx)
	defer cancel()
	tx, err := s.fs.Begin(lctx)
	if err != nil {
		return nil, err
	}
	snap, epoch, err := s.open(ctx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	st, err := s.stateFor(snap, epoch)
	if err != nil {
		_ = snap.Close()
		_ = tx.Rollback()
		return nil, err
	}
	w, err := record.NewWriter(ctx, st.schema, snap, tx, s.writerOptions())
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &Writer{Writer: w, store: s, started: start}, nil
}

func (s *Store) committed(cs *record.ChangeSet, err error, started time.Time) {
	s.db.opts.Metrics.RecordCommit(s.name, err == nil, time.Since(started))
	if err != nil {
		if errors.Is(err, storage.ErrPartialCommit) {
			s.Invalidate()
		}
		return
	}
	s.Invalidate()
	s.publish(cs)
}

// AddRecords appends features and returns their identifiers.
func (s *Store) AddRecords(ctx context.Context, features []*record.Feature) ([]string, error) {
	w, err := s.NewWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = w.Close() }()
	for _, f := range features {
		if _, err := w.Append(f.Geometry, f.Properties); err != nil {
			return nil, err
		}
	}
	cs, err := w.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return cs.Added, nil
}

// UpdateRecords sets values on every feature filter matches and returns
// how many changed. The geometry is replaced when values carries the
// geometry attribute name.
func (s *Store) UpdateRecords(ctx context.Context, filter record.Filter, values map[string]any) (int, error) {
	sc, err := s.Schema(ctx)
	if err != nil {
		return 0, err
	}
	for name, v := range values {
		if strings.EqualFold(name, sc.Geometry.Name) {
			if _, ok := v.(*geom.Geometry); !ok && v != nil {
				return 0, fmt.Errorf("geovec: %s takes a geometry, got %T", name, v)
			}
			continue
		}
		if _, _, ok := sc.Field(name); !ok {
			return 0, fmt.Errorf("%w: %s", dbf.ErrUnknownField, name)
		}
	}
	return s.rewrite(ctx, filter, func(w *Writer, f *record.Feature) error {
		for name, v := range values {
			if strings.EqualFold(name, sc.Geometry.Name) {
				f.Geometry, _ = v.(*geom.Geometry)
				continue
			}
			f.Set(name, v)
		}
		return w.Write()
	})
}

// RemoveRecords deletes every feature filter matches and returns how many.
func (s *Store) RemoveRecords(ctx context.Context, filter record.Filter) (int, error) {
	return s.rewrite(ctx, filter, func(w *Writer, _ *record.Feature) error {
		return w.Remove()
	})
}

func (s *Store) rewrite(ctx context.Context, filter record.Filter, fn func(*Writer, *record.Feature) error) (int, error) {
	if filter == nil {
		filter = record.All()
	}
	w, err := s.NewWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = w.Close() }()

	n := 0
	for {
		more, err := w.HasNext()
		if err != nil {
			return 0, err
		}
		if !more {
			break
		}
		f, err := w.Next()
		if err != nil {
			return 0, err
		}
		if !filter.Match(f) {
			continue
		}
		if err := fn(w, f); err != nil {
			return 0, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := w.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// Recover finishes or discards an interrupted commit.
func (s *Store) Recover(ctx context.Context) (*storage.RecoveryReport, error) {
	lctx, cancel := s.db.lockContext(ctx)
	defer cancel()
	rep, err := s.fs.Recover(lctx)
	s.Invalidate()
	if err != nil {
		return nil, err
	}
	if !rep.Clean() {
		s.db.opts.Metrics.RecordRecovery(s.name)
		slog.Info("engine: dataset recovered", "dataset", s.name,
			"rolled_forward", len(rep.RolledForward), "orphans", len(rep.Orphans))
	}
	return rep, nil
}
