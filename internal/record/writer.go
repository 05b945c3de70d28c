package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tuannm99/geovec/internal/alias/util"
	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/shp"
	"github.com/tuannm99/geovec/internal/storage"
)

// ChangeSet summarises what a committed Writer did.
type ChangeSet struct {
	Added    []string
	Modified []string
	Removed  []string
	// Envelope covers the geometries of every affected feature.
	Envelope geom.Envelope
	// Count and Bounds describe the dataset after the commit.
	Count  int
	Bounds geom.Envelope
}

func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

type WriterOptions struct {
	WindowSize int
	Resolver   crs.Resolver
	Codec      *dbf.Codec
}

// Writer rewrites a dataset inside a transaction. Existing features are
// visited in order with HasNext/Next; each may be written back (possibly
// changed), removed, or left alone, in which case it is copied through
// unchanged. Calling Next once the existing features are exhausted yields
// a fresh feature to fill in and Write. Nothing is visible to readers
// until Commit.
type Writer struct {
	schema *Schema
	tx     *storage.Transaction
	src    *Reader

	hdr   *dbf.Header
	codec *dbf.Codec
	shpW  *shp.Writer
	dbfW  *dbf.Writer

	current *Feature
	pending bool
	fresh   bool

	values  []any
	changes ChangeSet
	done    bool
}

// NewWriter stages new geometry, index and table files in tx. snap holds
// the current generation to carry forward and may be nil for an empty
// dataset; the Writer takes ownership of it.
func NewWriter(ctx context.Context, schema *Schema, snap *storage.Snapshot, tx *storage.Transaction, opts WriterOptions) (*Writer, error) {
	w := &Writer{schema: schema, tx: tx, codec: opts.Codec}
	st, err := schema.ShapeType()
	if err == nil && w.codec == nil {
		var cs *dbf.Charset
		if cs, err = dbf.LookupCharset(schema.Charset); err == nil {
			w.codec = dbf.NewCodec(cs, nil)
		}
	}
	if err != nil {
		if snap != nil {
			util.CloseQuietly(snap, "snapshot")
		}
		return nil, err
	}
	if snap != nil {
		w.src, err = NewReader(schema, snap, ReaderOptions{
			WindowSize: opts.WindowSize,
			Resolver:   opts.Resolver,
			Codec:      w.codec,
		})
		if err != nil {
			return nil, err
		}
		w.hdr = w.src.dbf.Header()
		if fst := w.src.shp.Header().ShapeType; fst != shp.NullShape {
			st = fst
		}
	} else {
		w.hdr, err = schema.TableHeader()
		if err != nil {
			return nil, err
		}
	}

	if err := w.open(ctx, st); err != nil {
		w.closeSource()
		return nil, err
	}
	return w, nil
}

func (w *Writer) open(ctx context.Context, st shp.ShapeType) error {
	shpF, err := w.tx.Stage(ctx, storage.RoleGeometry)
	if err != nil {
		return err
	}
	shxF, err := w.tx.Stage(ctx, storage.RoleIndex)
	if err != nil {
		return err
	}
	dbfF, err := w.tx.Stage(ctx, storage.RoleTable)
	if err != nil {
		return err
	}
	if w.shpW, err = shp.NewWriter(shpF, shxF, st); err != nil {
		return err
	}
	w.dbfW, err = dbf.NewWriter(dbfF, w.hdr, w.codec)
	return err
}

// HasNext reports whether existing features remain to be visited.
func (w *Writer) HasNext() (bool, error) {
	if w.done {
		return false, ErrClosed
	}
	if w.src == nil {
		return false, nil
	}
	return w.src.HasNext()
}

// Next settles the current feature and moves to the next one.
func (w *Writer) Next() (*Feature, error) {
	if w.done {
		return nil, ErrClosed
	}
	if err := w.settle(); err != nil {
		return nil, err
	}
	more, err := w.HasNext()
	if err != nil {
		return nil, err
	}
	if more {
		f, err := w.src.Next()
		if err != nil {
			return nil, err
		}
		w.current, w.pending, w.fresh = f, true, false
		return f, nil
	}
	w.current = NewFeature(nil, nil)
	w.pending, w.fresh = true, true
	return w.current, nil
}

// Write stores the current feature.
func (w *Writer) Write() error {
	if w.done {
		return ErrClosed
	}
	if w.current == nil || !w.pending {
		return ErrNoCurrentFeature
	}
	f := w.current
	ord := w.dbfW.Count()
	if err := w.writeFeature(f); err != nil {
		return err
	}
	if w.fresh {
		f.ID = w.schema.FeatureID(ord, w.idValue(f))
		f.ordinal = ord
		w.changes.Added = append(w.changes.Added, f.ID)
	} else {
		w.changes.Modified = append(w.changes.Modified, f.ID)
	}
	if f.Geometry != nil {
		w.changes.Envelope.Expand(f.Geometry.Envelope())
	}
	w.pending = false
	return nil
}

// Remove drops the current feature from the new generation.
func (w *Writer) Remove() error {
	if w.done {
		return ErrClosed
	}
	if w.current == nil || !w.pending {
		return ErrNoCurrentFeature
	}
	if !w.fresh {
		w.changes.Removed = append(w.changes.Removed, w.current.ID)
		if g := w.current.Geometry; g != nil {
			w.changes.Envelope.Expand(g.Envelope())
		}
	}
	w.pending = false
	return nil
}

// Append is Next on a fresh feature followed by Write.
func (w *Writer) Append(g *geom.Geometry, props map[string]any) (*Feature, error) {
	for {
		more, err := w.HasNext()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		if _, err := w.Next(); err != nil {
			return nil, err
		}
	}
	f, err := w.Next()
	if err != nil {
		return nil, err
	}
	f.Geometry = g
	for k, v := range props {
		f.Set(k, v)
	}
	if err := w.Write(); err != nil {
		return nil, err
	}
	return f, nil
}

// settle copies an existing feature that was neither written nor removed
// through byte for byte.
func (w *Writer) settle() error {
	if w.current == nil || !w.pending {
		return nil
	}
	w.pending = false
	if w.fresh {
		return nil
	}
	// the caller may have edited the feature in place; the files hold
	// the original
	ord := w.current.ordinal
	raw, err := w.src.rawRecord(ord)
	if err != nil {
		return err
	}
	if err := w.dbfW.WriteRaw(raw); err != nil {
		return err
	}
	orig, err := w.src.shp.Read(ord)
	if err != nil {
		return err
	}
	var env geom.Envelope
	if orig != nil {
		env = orig.Envelope()
	}
	content, err := w.src.shp.Content(ord)
	if err != nil {
		return err
	}
	return w.shpW.WriteRaw(content, env)
}

func (w *Writer) writeFeature(f *Feature) error {
	w.values = w.values[:0]
	for _, fd := range w.hdr.Fields {
		v, _ := f.Get(fd.Name)
		w.values = append(w.values, v)
	}
	if err := w.shpW.Write(f.Geometry); err != nil {
		return err
	}
	return w.dbfW.WriteRecord(w.values)
}

func (w *Writer) idValue(f *Feature) any {
	if w.schema.IDField == "" {
		return nil
	}
	v, _ := f.Get(w.schema.IDField)
	return v
}

// Commit copies through whatever was not visited, patches the headers
// and publishes the new generation.
func (w *Writer) Commit(ctx context.Context) (*ChangeSet, error) {
	if w.done {
		return nil, ErrClosed
	}
	if err := w.settle(); err != nil {
		return nil, w.abort(err)
	}
	for {
		more, err := w.HasNext()
		if err != nil {
			return nil, w.abort(err)
		}
		if !more {
			break
		}
		if _, err := w.Next(); err != nil {
			return nil, w.abort(err)
		}
		if err := w.settle(); err != nil {
			return nil, w.abort(err)
		}
	}
	if err := w.shpW.Close(); err != nil {
		return nil, w.abort(err)
	}
	if err := w.dbfW.Close(); err != nil {
		return nil, w.abort(err)
	}
	w.closeSource()
	w.done = true

	if err := w.tx.Commit(ctx); err != nil {
		return nil, err
	}
	w.changes.Count = w.dbfW.Count()
	w.changes.Bounds = w.shpW.Envelope()
	slog.Debug("record: writer committed", "type", w.schema.TypeName,
		"added", len(w.changes.Added), "modified", len(w.changes.Modified), "removed", len(w.changes.Removed))
	cs := w.changes
	return &cs, nil
}

func (w *Writer) abort(err error) error {
	if rerr := w.Close(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// Close discards the staged files unless Commit succeeded.
func (w *Writer) Close() error {
	w.closeSource()
	w.done = true
	if err := w.tx.Rollback(); err != nil {
		return fmt.Errorf("record: rollback: %w", err)
	}
	return nil
}

func (w *Writer) closeSource() {
	if w.src != nil {
		_ = w.src.Close()
		w.src = nil
	}
}
