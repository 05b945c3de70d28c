package dbf

import (
	"fmt"
	"io"

	"github.com/tuannm99/geovec/internal/storage"
)

// Reader gives record-level access to a table through a private window.
// It is not safe for concurrent use; open one per cursor.
type Reader struct {
	hdr   *Header
	win   *storage.Window
	codec *Codec
	count int
}

// NewReader parses the header of src. codec may be nil.
func NewReader(src storage.Source, windowSize int, codec *Codec) (*Reader, error) {
	if codec == nil {
		codec = NewCodec(nil, nil)
	}
	win := storage.NewWindow(src, windowSize)
	fixed, err := win.Bytes(0, headerFixedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	hl := int(fixed[8]) | int(fixed[9])<<8
	if hl < headerFixedSize+1 {
		return nil, fmt.Errorf("%w: header length %d", ErrMalformedHeader, hl)
	}
	raw, err := win.Bytes(0, hl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	// trust the file size over a stale count
	count := int(hdr.RecordCount)
	if hdr.RecordLength > 0 {
		if avail := (src.Size() - int64(hdr.HeaderLength)) / int64(hdr.RecordLength); avail < int64(count) {
			count = int(avail)
		}
	}
	return &Reader{hdr: hdr, win: win, codec: codec, count: count}, nil
}

func (r *Reader) Header() *Header { return r.hdr }
func (r *Reader) Codec() *Codec   { return r.codec }

// Len is the number of physical records, deleted ones included.
func (r *Reader) Len() int { return r.count }

// RawRecord returns record i including its flag byte. The slice is valid
// until the next call on r.
func (r *Reader) RawRecord(i int) ([]byte, error) {
	if i < 0 || i >= r.count {
		return nil, io.EOF
	}
	return r.win.Bytes(r.hdr.RecordOffset(i), int(r.hdr.RecordLength))
}

// Deleted reports whether record i carries the deletion flag.
func (r *Reader) Deleted(i int) (bool, error) {
	rec, err := r.RawRecord(i)
	if err != nil {
		return false, err
	}
	return rec[0] == FlagDeleted, nil
}

// ReadRecord decodes the columns idx (all when nil) of record i into dst.
func (r *Reader) ReadRecord(i int, idx []int, dst []any) ([]any, error) {
	rec, err := r.RawRecord(i)
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeRecord(r.hdr, rec, idx, i, dst)
}

// LiveCount counts records without the deletion flag.
func (r *Reader) LiveCount() (int, error) {
	n := 0
	for i := 0; i < r.count; i++ {
		del, err := r.Deleted(i)
		if err != nil {
			return 0, err
		}
		if !del {
			n++
		}
	}
	return n, nil
}
