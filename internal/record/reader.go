package record

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tuannm99/geovec/internal/alias/util"
	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/shp"
	"github.com/tuannm99/geovec/internal/storage"
)

// ReaderOptions narrows what a Reader yields.
type ReaderOptions struct {
	// Filter defaults to All.
	Filter Filter
	// Candidates restricts the scan to these physical ordinals. Nil scans
	// every record.
	Candidates []int
	// Properties projects the attribute columns. Nil keeps all of them.
	Properties []string
	// Limit stops the stream after this many features when positive.
	Limit int
	// BorrowSnapshot leaves the snapshot open on Close; the caller owns it.
	BorrowSnapshot bool
	WindowSize     int
	Resolver       crs.Resolver
	Codec          *dbf.Codec
}

// Reader streams the live features of one snapshot. The geometry and the
// attribute table are advanced by a single cursor so a feature always
// pairs record i of both files. A Reader is not safe for concurrent use.
type Reader struct {
	schema *Schema
	snap   *storage.Snapshot
	shp    *shp.Reader
	dbf    *dbf.Reader
	opts   ReaderOptions

	idx    []int
	names  []string
	idCol  int
	values []any

	n       int
	pos     int
	emitted int
	peeked  *Feature
	err     error
	closed  bool
}

// NewReader takes ownership of snap, unless opts.BorrowSnapshot is set;
// Close releases it.
func NewReader(schema *Schema, snap *storage.Snapshot, opts ReaderOptions) (*Reader, error) {
	r, err := newReader(schema, snap, opts)
	if err != nil {
		if !opts.BorrowSnapshot {
			util.CloseQuietly(snap, "snapshot")
		}
		return nil, err
	}
	return r, nil
}

func newReader(schema *Schema, snap *storage.Snapshot, opts ReaderOptions) (*Reader, error) {
	if opts.Filter == nil {
		opts.Filter = All()
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = storage.DefaultWindowSize
	}
	if opts.Codec == nil {
		cs, err := dbf.LookupCharset(schema.Charset)
		if err != nil {
			return nil, err
		}
		opts.Codec = dbf.NewCodec(cs, nil)
	}

	sr, err := shp.NewReader(snap.Source(storage.RoleGeometry), snap.Source(storage.RoleIndex), opts.WindowSize, opts.Resolver)
	if err != nil {
		return nil, err
	}
	dr, err := dbf.NewReader(snap.Source(storage.RoleTable), opts.WindowSize, opts.Codec)
	if err != nil {
		return nil, err
	}

	r := &Reader{schema: schema, snap: snap, shp: sr, dbf: dr, opts: opts, idCol: -1}

	r.n = dr.Len()
	if sr.Len() != r.n {
		slog.Warn("record: geometry and table disagree on record count",
			"type", schema.TypeName, "shapes", sr.Len(), "rows", dr.Len())
		r.n = min(r.n, sr.Len())
	}

	hdr := dr.Header()
	if opts.Properties == nil {
		r.idx = nil
		r.names = make([]string, len(hdr.Fields))
		for i, fd := range hdr.Fields {
			r.names[i] = fd.Name
		}
	} else {
		r.idx, err = hdr.Project(opts.Properties...)
		if err != nil {
			return nil, err
		}
		r.names = make([]string, len(r.idx))
		for i, c := range r.idx {
			r.names[i] = hdr.Fields[c].Name
		}
	}
	if schema.IDField != "" {
		if _, c, ok := hdr.Field(schema.IDField); ok {
			r.idCol = c
		}
	}

	if opts.Candidates != nil {
		c := append([]int(nil), opts.Candidates...)
		sort.Ints(c)
		r.opts.Candidates = c
	}
	return r, nil
}

func (r *Reader) Schema() *Schema { return r.schema }

// Len is the number of physical records, deleted ones included.
func (r *Reader) Len() int { return r.n }

// HasNext reports whether Next would return a feature. It may decode the
// upcoming record but never moves past it.
func (r *Reader) HasNext() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	if r.peeked != nil {
		return true, nil
	}
	if r.err != nil {
		return false, r.err
	}
	if r.opts.Limit > 0 && r.emitted >= r.opts.Limit {
		return false, nil
	}
	for {
		ord, ok := r.nextOrdinal()
		if !ok {
			return false, nil
		}
		f, err := r.read(ord)
		if err != nil {
			r.err = err
			return false, err
		}
		if f == nil || !r.opts.Filter.Match(f) {
			continue
		}
		r.peeked = f
		return true, nil
	}
}

// Next returns the next live feature, or ErrNoMoreRecords.
func (r *Reader) Next() (*Feature, error) {
	ok, err := r.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMoreRecords
	}
	f := r.peeked
	r.peeked = nil
	r.emitted++
	return f, nil
}

// Remove is not available on a read-only stream.
func (r *Reader) Remove() error { return ErrUnsupportedOperation }

// Scan calls fn for each remaining feature until fn returns an error.
func (r *Reader) Scan(fn func(*Feature) error) error {
	for {
		f, err := r.Next()
		if errors.Is(err, ErrNoMoreRecords) {
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
	if r.closed {
		return nil
	}
	r.closed = true
	r.peeked = nil
	if r.opts.BorrowSnapshot {
		return nil
	}
	return r.snap.Close()
}

func (r *Reader) nextOrdinal() (int, bool) {
	if c := r.opts.Candidates; c != nil {
		for r.pos < len(c) {
			ord := c[r.pos]
			r.pos++
			if ord >= 0 && ord < r.n {
				return ord, true
			}
		}
		return 0, false
	}
	if r.pos >= r.n {
		return 0, false
	}
	r.pos++
	return r.pos - 1, true
}

// read decodes record ord, or returns nil for a deleted record.
func (r *Reader) read(ord int) (*Feature, error) {
	deleted, err := r.dbf.Deleted(ord)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", ord, err)
	}
	if deleted {
		return nil, nil
	}

	var idValue any
	if r.idCol >= 0 {
		v, err := r.dbf.ReadRecord(ord, []int{r.idCol}, r.values[:0])
		if err != nil {
			return nil, err
		}
		idValue = v[0]
	}
	r.values, err = r.dbf.ReadRecord(ord, r.idx, r.values[:0])
	if err != nil {
		return nil, err
	}
	g, err := r.shp.Read(ord)
	if err != nil {
		return nil, err
	}
	if g != nil && g.CRS == nil && r.schema.CRS != nil && (g.SRID == 0 || g.SRID == r.schema.CRS.SRID) {
		g.CRS = r.schema.CRS
	}

	props := make(map[string]any, len(r.names))
	for i, name := range r.names {
		props[name] = r.values[i]
	}
	return &Feature{
		ID:         r.schema.FeatureID(ord, idValue),
		Geometry:   g,
		Properties: props,
		ordinal:    ord,
	}, nil
}

// rawRecord exposes the stored table record of ord, flag byte included.
func (r *Reader) rawRecord(ord int) ([]byte, error) { return r.dbf.RawRecord(ord) }
