package wkb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/geom"
)

// Decoder turns an encoded stream into a geometry tree. The decoder trusts
// the declared byte order: every node must carry the marker for Order.
//
// A Decoder owns a small scratch buffer and is not safe for concurrent use;
// give each cursor its own.
type Decoder struct {
	Order    binary.ByteOrder
	Resolver crs.Resolver

	scratch [8]byte
}

// NewDecoder returns a decoder for order. resolver may be nil, in which
// case SRIDs are kept but never resolved.
func NewDecoder(order binary.ByteOrder, resolver crs.Resolver) *Decoder {
	if order == nil {
		order = bx.LE
	}
	return &Decoder{Order: order, Resolver: resolver}
}

// DecodeBytes decodes exactly one geometry from b. Trailing bytes are ignored.
func (d *Decoder) DecodeBytes(b []byte) (*geom.Geometry, error) {
	return d.Decode(bytes.NewReader(b))
}

// Decode reads one geometry from r. A stream that ends before the first
// byte returns io.EOF; one that ends anywhere later returns ErrTruncated.
func (d *Decoder) Decode(r io.Reader) (*geom.Geometry, error) {
	if _, err := io.ReadFull(r, d.scratch[:1]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}
	g, err := d.node(r, d.scratch[0], 0, 0)
	if err != nil {
		return nil, err
	}
	// negative ids are never looked up
	if g.SRID > 0 && d.Resolver != nil {
		ref, err := d.Resolver.Resolve(g.SRID)
		if err != nil {
			slog.Warn("wkb: reference system lookup failed", "srid", g.SRID, "err", err)
		} else {
			g.Walk(func(n *geom.Geometry) {
				if n.SRID == g.SRID {
					n.CRS = ref
				}
			})
		}
	}
	return g, nil
}

func (d *Decoder) node(r io.Reader, marker byte, parentSRID int32, depth int) (*geom.Geometry, error) {
	if marker != bx.Marker(d.Order) {
		return nil, fmt.Errorf("%w: got marker %d at depth %d", ErrEndianMismatch, marker, depth)
	}
	word, err := d.u32(r)
	if err != nil {
		return nil, err
	}
	kind, layout, hasSRID := ParseTypeWord(word)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGeometryKind, uint32(kind))
	}

	g := &geom.Geometry{Kind: kind, Layout: layout, SRID: parentSRID}
	if hasSRID {
		v, err := d.u32(r)
		if err != nil {
			return nil, err
		}
		g.SRID = int32(v)
	}

	switch kind {
	case geom.KindPoint:
		c, err := d.coord(r, layout)
		if err != nil {
			return nil, err
		}
		if !(math.IsNaN(c[0]) && math.IsNaN(c[1])) {
			g.Coords = []geom.Coord{c}
		}
	case geom.KindLineString:
		if g.Coords, err = d.run(r, layout); err != nil {
			return nil, err
		}
	case geom.KindPolygon:
		n, err := d.u32(r)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			g.Rings = make([][]geom.Coord, 0, capFor(n))
		}
		for i := uint32(0); i < n; i++ {
			ring, err := d.run(r, layout)
			if err != nil {
				return nil, err
			}
			g.Rings = append(g.Rings, ring)
		}
	default:
		n, err := d.u32(r)
		if err != nil {
			return nil, err
		}
		want := kind.Element()
		if n > 0 {
			g.Parts = make([]*geom.Geometry, 0, capFor(n))
		}
		for i := uint32(0); i < n; i++ {
			if _, err := io.ReadFull(r, d.scratch[:1]); err != nil {
				return nil, truncated(err)
			}
			part, err := d.node(r, d.scratch[0], g.SRID, depth+1)
			if err != nil {
				return nil, err
			}
			if want != 0 && part.Kind != want {
				return nil, fmt.Errorf("%w: %s inside %s", ErrUnknownGeometryKind, part.Kind, kind)
			}
			g.Parts = append(g.Parts, part)
		}
	}
	return g, nil
}

func (d *Decoder) run(r io.Reader, l geom.Layout) ([]geom.Coord, error) {
	n, err := d.u32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]geom.Coord, 0, capFor(n))
	for i := uint32(0); i < n; i++ {
		c, err := d.coord(r, l)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Decoder) coord(r io.Reader, l geom.Layout) (geom.Coord, error) {
	var c geom.Coord
	var err error
	if c[0], err = d.f64(r); err != nil {
		return c, err
	}
	if c[1], err = d.f64(r); err != nil {
		return c, err
	}
	if l.HasZ() {
		if c[2], err = d.f64(r); err != nil {
			return c, err
		}
	}
	if l.HasM() {
		if c[3], err = d.f64(r); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (d *Decoder) u32(r io.Reader) (uint32, error) {
	if _, err := io.ReadFull(r, d.scratch[:4]); err != nil {
		return 0, truncated(err)
	}
	return d.Order.Uint32(d.scratch[:4]), nil
}

func (d *Decoder) f64(r io.Reader) (float64, error) {
	if _, err := io.ReadFull(r, d.scratch[:8]); err != nil {
		return 0, truncated(err)
	}
	return math.Float64frombits(d.Order.Uint64(d.scratch[:8])), nil
}
