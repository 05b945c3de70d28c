package shp

import (
	"fmt"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/wkb"
)

// Sink receives a file stream and accepts a header rewrite afterwards.
type Sink interface {
	Write(p []byte) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Writer streams the geometry and index files together. Placeholder
// headers are written up front and patched with the final length and
// bounds by Close.
type Writer struct {
	shp, shx Sink
	st       ShapeType
	enc      *wkb.Encoder
	offset   int32
	n        int32
	env      geom.Envelope
	buf      []byte
}

func NewWriter(shpSink, shxSink Sink, st ShapeType) (*Writer, error) {
	if !st.Valid() || st == NullShape {
		return nil, fmt.Errorf("%w: cannot write shape type %s", ErrUnsupportedKind, st)
	}
	w := &Writer{shp: shpSink, shx: shxSink, st: st, enc: wkb.NewEncoder(bx.LE), offset: HeaderSize / 2}
	placeholder := (&Header{FileLength: HeaderSize / 2, ShapeType: st}).Bytes()
	if _, err := shpSink.Write(placeholder); err != nil {
		return nil, err
	}
	if _, err := shxSink.Write(placeholder); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) ShapeType() ShapeType { return w.st }

// Count is the number of records written.
func (w *Writer) Count() int { return int(w.n) }

// Envelope covers every geometry written so far.
func (w *Writer) Envelope() geom.Envelope { return w.env }

// Write appends g; nil writes a null shape record.
func (w *Writer) Write(g *geom.Geometry) error {
	w.buf = w.buf[:0]
	w.buf = append(w.buf, make([]byte, recordHeader+4)...)
	var env geom.Envelope
	if g != nil {
		if !w.st.Fits(g) {
			return fmt.Errorf("%w: %s %s into %s", ErrShapeMismatch, g.Kind, g.Layout, w.st)
		}
		body, err := w.enc.EncodeBytes(g)
		if err != nil {
			return err
		}
		bx.PutI32(w.buf[recordHeader:], int32(w.st))
		w.buf = append(w.buf, body...)
		env = g.Envelope()
	}
	return w.emit(env)
}

// WriteRaw appends record content taken from a file of the same shape
// type, unchanged. env is the envelope of the geometry it holds.
func (w *Writer) WriteRaw(content []byte, env geom.Envelope) error {
	if len(content) < 4 {
		return fmt.Errorf("%w: %d byte record content", ErrBadRecord, len(content))
	}
	if st := ShapeType(bx.I32(content)); st != NullShape && st != w.st {
		return fmt.Errorf("%w: %s record into %s", ErrShapeMismatch, st, w.st)
	}
	w.buf = append(w.buf[:0], make([]byte, recordHeader)...)
	w.buf = append(w.buf, content...)
	return w.emit(env)
}

// emit frames w.buf, whose content follows the record header, and appends
// it to both files.
func (w *Writer) emit(env geom.Envelope) error {
	if len(w.buf)%2 != 0 {
		w.buf = append(w.buf, 0)
	}
	words := int32(len(w.buf)-recordHeader) / 2
	w.n++
	bx.PutI32BEAt(w.buf, 0, w.n)
	bx.PutI32BEAt(w.buf, 4, words)

	var entry [indexEntrySize]byte
	bx.PutI32BEAt(entry[:], 0, w.offset)
	bx.PutI32BEAt(entry[:], 4, words)

	if _, err := w.shp.Write(w.buf); err != nil {
		return err
	}
	if _, err := w.shx.Write(entry[:]); err != nil {
		return err
	}
	w.offset += int32(len(w.buf) / 2)
	w.env.Expand(env)
	return nil
}

// Close patches both headers. The sinks are left open.
func (w *Writer) Close() error {
	h := &Header{FileLength: w.offset, ShapeType: w.st, Bounds: w.env}
	if _, err := w.shp.WriteAt(h.Bytes(), 0); err != nil {
		return err
	}
	h.FileLength = (HeaderSize + w.n*indexEntrySize) / 2
	_, err := w.shx.WriteAt(h.Bytes(), 0)
	return err
}
