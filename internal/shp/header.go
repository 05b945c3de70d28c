package shp

import (
	"fmt"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/geom"
)

const (
	HeaderSize     = 100
	FileCode       = 9994
	Version        = 1000
	recordHeader   = 8
	indexEntrySize = 8
)

// Header is the 100-byte header shared by the geometry and index files.
// FileLength counts 16-bit words, header included.
type Header struct {
	FileLength int32
	ShapeType  ShapeType
	Bounds     geom.Envelope
}

func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(b))
	}
	if code := bx.I32BEAt(b, 0); code != FileCode {
		return nil, fmt.Errorf("%w: file code %d", ErrMalformedHeader, code)
	}
	if v := bx.I32(b[28:]); v != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedHeader, v)
	}
	st := ShapeType(bx.I32(b[32:]))
	if !st.Valid() {
		return nil, fmt.Errorf("%w: shape type %d", ErrMalformedHeader, int32(st))
	}
	h := &Header{FileLength: bx.I32BEAt(b, 24), ShapeType: st, Bounds: geom.NewEnvelope()}
	// bounds are meaningless until the first record
	if h.FileLength > HeaderSize/2 {
		l := st.Layout()
		h.Bounds.ExpandCoord(geom.C4(bx.F64At(b, 36), bx.F64At(b, 44), bx.F64At(b, 68), bx.F64At(b, 84)), l)
		h.Bounds.ExpandCoord(geom.C4(bx.F64At(b, 52), bx.F64At(b, 60), bx.F64At(b, 76), bx.F64At(b, 92)), l)
	}
	return h, nil
}

// Bytes encodes the header. Empty bounds are written as zeros.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	bx.PutI32BEAt(b, 0, FileCode)
	bx.PutI32BEAt(b, 24, h.FileLength)
	bx.PutI32(b[28:], Version)
	bx.PutI32(b[32:], int32(h.ShapeType))
	e := h.Bounds
	if !e.IsEmpty() {
		bx.PutF64At(b, 36, e.MinX)
		bx.PutF64At(b, 44, e.MinY)
		bx.PutF64At(b, 52, e.MaxX)
		bx.PutF64At(b, 60, e.MaxY)
	}
	if e.HasZ() {
		bx.PutF64At(b, 68, e.MinZ)
		bx.PutF64At(b, 76, e.MaxZ)
	}
	if e.HasM() {
		bx.PutF64At(b, 84, e.MinM)
		bx.PutF64At(b, 92, e.MaxM)
	}
	return b
}
