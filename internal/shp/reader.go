package shp

import (
	"fmt"
	"io"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/storage"
	"github.com/tuannm99/geovec/internal/wkb"
)

// Reader reads geometries by ordinal, locating each record through the
// index file. It owns its windows and decoder; use one per cursor.
type Reader struct {
	hdr *Header
	shp *storage.Window
	shx *storage.Window
	dec *wkb.Decoder
	n   int
}

func NewReader(shpSrc, shxSrc storage.Source, windowSize int, resolver crs.Resolver) (*Reader, error) {
	r := &Reader{
		shp: storage.NewWindow(shpSrc, windowSize),
		shx: storage.NewWindow(shxSrc, windowSize),
		dec: wkb.NewDecoder(bx.LE, resolver),
	}
	b, err := r.shp.Bytes(0, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	if r.hdr, err = ParseHeader(b); err != nil {
		return nil, err
	}
	if _, err := r.shx.Bytes(0, HeaderSize); err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrMalformedHeader, err)
	}
	r.n = int((shxSrc.Size() - HeaderSize) / indexEntrySize)
	return r, nil
}

func (r *Reader) Header() *Header { return r.hdr }

// Len is the number of records listed in the index.
func (r *Reader) Len() int { return r.n }

// Read decodes record i. A null shape yields a nil geometry.
func (r *Reader) Read(i int) (*geom.Geometry, error) {
	content, err := r.content(i)
	if err != nil {
		return nil, err
	}
	if ShapeType(bx.I32(content)) == NullShape {
		return nil, nil
	}
	g, err := r.dec.DecodeBytes(content[4:])
	if err != nil {
		return nil, fmt.Errorf("shp: record %d: %w", i, err)
	}
	return g, nil
}

// Content returns the raw content of record i: the shape type word and
// the geometry stream. The slice is valid until the next read.
func (r *Reader) Content(i int) ([]byte, error) { return r.content(i) }

func (r *Reader) content(i int) ([]byte, error) {
	if i < 0 || i >= r.n {
		return nil, io.EOF
	}
	entry, err := r.shx.Bytes(HeaderSize+int64(i)*indexEntrySize, indexEntrySize)
	if err != nil {
		return nil, fmt.Errorf("%w: index entry %d: %w", ErrBadRecord, i, err)
	}
	off := int64(bx.I32BEAt(entry, 0)) * 2
	words := bx.I32BEAt(entry, 4)
	if off < HeaderSize || words < 2 {
		return nil, fmt.Errorf("%w: index entry %d points at %d+%d words", ErrBadRecord, i, off, words)
	}

	rec, err := r.shp.Bytes(off, recordHeader+int(words)*2)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %w", ErrBadRecord, i, err)
	}
	if got := bx.I32BEAt(rec, 4); got != words {
		return nil, fmt.Errorf("%w: record %d length %d, index says %d", ErrBadRecord, i, got, words)
	}
	return rec[recordHeader:], nil
}
