package wkb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/geom"
)

// Encoder writes geometries in Order. The SRID flag is set on the root when
// its SRID is non-zero and on a child only when it differs from its parent.
type Encoder struct {
	Order binary.ByteOrder
}

func NewEncoder(order binary.ByteOrder) *Encoder {
	if order == nil {
		order = bx.LE
	}
	return &Encoder{Order: order}
}

// Size returns the encoded length of g in bytes.
func (e *Encoder) Size(g *geom.Geometry) int {
	return size(g, 0)
}

func size(g *geom.Geometry, parentSRID int32) int {
	if g == nil {
		return 0
	}
	n := 1 + 4
	if g.SRID != parentSRID {
		n += 4
	}
	stride := 8 * g.Layout.Stride()
	switch g.Kind {
	case geom.KindPoint:
		n += stride
	case geom.KindLineString:
		n += 4 + stride*len(g.Coords)
	case geom.KindPolygon:
		n += 4
		for _, r := range g.Rings {
			n += 4 + stride*len(r)
		}
	default:
		n += 4
		for _, p := range g.Parts {
			n += size(p, g.SRID)
		}
	}
	return n
}

// EncodeBytes returns the encoding of g.
func (e *Encoder) EncodeBytes(g *geom.Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	}
	return e.appendNode(make([]byte, 0, e.Size(g)), g, 0)
}

// Encode writes g to w.
func (e *Encoder) Encode(w io.Writer, g *geom.Geometry) error {
	b, err := e.EncodeBytes(g)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (e *Encoder) appendNode(b []byte, g *geom.Geometry, parentSRID int32) ([]byte, error) {
	if !g.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGeometryKind, uint32(g.Kind))
	}
	withSRID := g.SRID != parentSRID
	b = append(b, bx.Marker(e.Order))
	b = e.appendU32(b, TypeWord(g.Kind, g.Layout, withSRID))
	if withSRID {
		b = e.appendU32(b, uint32(g.SRID))
	}

	switch g.Kind {
	case geom.KindPoint:
		switch len(g.Coords) {
		case 0:
			nan := math.NaN()
			b = e.appendCoord(b, geom.Coord{nan, nan, nan, nan}, g.Layout)
		case 1:
			b = e.appendCoord(b, g.Coords[0], g.Layout)
		default:
			return nil, fmt.Errorf("%w: point with %d coordinates", ErrInvalidGeometry, len(g.Coords))
		}
	case geom.KindLineString:
		b = e.appendRun(b, g.Coords, g.Layout)
	case geom.KindPolygon:
		b = e.appendU32(b, uint32(len(g.Rings)))
		for _, r := range g.Rings {
			b = e.appendRun(b, r, g.Layout)
		}
	default:
		b = e.appendU32(b, uint32(len(g.Parts)))
		want := g.Kind.Element()
		var err error
		for _, p := range g.Parts {
			if p == nil {
				return nil, fmt.Errorf("%w: nil part in %s", ErrInvalidGeometry, g.Kind)
			}
			if want != 0 && p.Kind != want {
				return nil, fmt.Errorf("%w: %s inside %s", ErrUnknownGeometryKind, p.Kind, g.Kind)
			}
			if b, err = e.appendNode(b, p, g.SRID); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (e *Encoder) appendRun(b []byte, cs []geom.Coord, l geom.Layout) []byte {
	b = e.appendU32(b, uint32(len(cs)))
	for _, c := range cs {
		b = e.appendCoord(b, c, l)
	}
	return b
}

func (e *Encoder) appendCoord(b []byte, c geom.Coord, l geom.Layout) []byte {
	b = e.appendF64(b, c[0])
	b = e.appendF64(b, c[1])
	if l.HasZ() {
		b = e.appendF64(b, c[2])
	}
	if l.HasM() {
		b = e.appendF64(b, c[3])
	}
	return b
}

func (e *Encoder) appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	e.Order.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func (e *Encoder) appendF64(b []byte, v float64) []byte {
	var tmp [8]byte
	e.Order.PutUint64(tmp[:], math.Float64bits(v))
	return append(b, tmp[:]...)
}
