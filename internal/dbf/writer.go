package dbf

import (
	"io"
	"time"
)

// Sink is where a Writer streams a table: sequential append plus rewrite
// of the header once the record count is known.
type Sink interface {
	io.Writer
	io.WriterAt
}

// Writer streams a new table. The header is written first with a zero
// count and patched by Close.
type Writer struct {
	hdr   *Header
	sink  Sink
	codec *Codec
	buf   []byte
	count uint32
	clock func() time.Time
}

// NewWriter writes hdr's header to sink. hdr is copied; its RecordCount
// is ignored.
func NewWriter(sink Sink, hdr *Header, codec *Codec) (*Writer, error) {
	if codec == nil {
		codec = NewCodec(nil, nil)
	}
	h := *hdr
	h.Fields = append([]FieldDescriptor(nil), hdr.Fields...)
	h.RecordCount = 0
	w := &Writer{
		hdr:   &h,
		sink:  sink,
		codec: codec,
		buf:   make([]byte, h.RecordLength),
		clock: func() time.Time { return time.Now().UTC() },
	}
	h.LastUpdate = w.clock()
	if _, err := sink.Write(h.Bytes()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) Header() *Header { return w.hdr }

// Count is the number of records written so far.
func (w *Writer) Count() int { return int(w.count) }

// WriteRecord encodes values, one per column, as a live record.
func (w *Writer) WriteRecord(values []any) error {
	if err := w.codec.EncodeRecord(w.hdr, values, w.buf); err != nil {
		return withRecord(err, int(w.count))
	}
	return w.WriteRaw(w.buf)
}

// WriteRaw copies an already encoded record, flag byte included.
func (w *Writer) WriteRaw(rec []byte) error {
	if _, err := w.sink.Write(rec[:w.hdr.RecordLength]); err != nil {
		return err
	}
	w.count++
	return nil
}

// Close writes the end-of-file marker and patches the count and date.
// The sink itself is left open.
func (w *Writer) Close() error {
	if _, err := w.sink.Write([]byte{EndOfFile}); err != nil {
		return err
	}
	w.hdr.RecordCount = w.count
	w.hdr.LastUpdate = w.clock()
	patch := make([]byte, 8)
	w.hdr.putCountAndDate(patch)
	_, err := w.sink.WriteAt(patch[1:8], 1)
	return err
}
