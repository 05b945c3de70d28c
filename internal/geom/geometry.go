// Package geom holds the geometry value tree shared by the binary codec,
// the geometry file and the record layer.
package geom

import (
	"fmt"

	"github.com/tuannm99/geovec/internal/crs"
)

// Kind is the geometry category carried in the low bits of a type word.
type Kind uint32

const (
	KindPoint Kind = iota + 1
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindGeometryCollection
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindLineString:
		return "LineString"
	case KindPolygon:
		return "Polygon"
	case KindMultiPoint:
		return "MultiPoint"
	case KindMultiLineString:
		return "MultiLineString"
	case KindMultiPolygon:
		return "MultiPolygon"
	case KindGeometryCollection:
		return "GeometryCollection"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool { return k >= KindPoint && k <= KindGeometryCollection }

// IsMulti reports whether geometries of kind k hold sub-geometries in Parts.
func (k Kind) IsMulti() bool { return k >= KindMultiPoint && k <= KindGeometryCollection }

// Element returns the kind a typed multi geometry may contain. Collections
// and simple kinds return 0.
func (k Kind) Element() Kind {
	switch k {
	case KindMultiPoint:
		return KindPoint
	case KindMultiLineString:
		return KindLineString
	case KindMultiPolygon:
		return KindPolygon
	}
	return 0
}

// ParseKind is the inverse of Kind.String, case sensitive.
func ParseKind(s string) (Kind, bool) {
	for k := KindPoint; k <= KindGeometryCollection; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Layout is the ordinate set of every coordinate in a geometry.
type Layout uint8

const (
	XY Layout = iota
	XYZ
	XYM
	XYZM
)

// LayoutOf builds a layout from the Z and M presence flags.
func LayoutOf(z, m bool) Layout {
	switch {
	case z && m:
		return XYZM
	case z:
		return XYZ
	case m:
		return XYM
	}
	return XY
}

func (l Layout) HasZ() bool { return l == XYZ || l == XYZM }
func (l Layout) HasM() bool { return l == XYM || l == XYZM }

// Stride is the number of ordinates per coordinate: 2, 3 or 4.
func (l Layout) Stride() int {
	n := 2
	if l.HasZ() {
		n++
	}
	if l.HasM() {
		n++
	}
	return n
}

func (l Layout) String() string {
	switch l {
	case XY:
		return "XY"
	case XYZ:
		return "XYZ"
	case XYM:
		return "XYM"
	case XYZM:
		return "XYZM"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// Coord is one position. Index 0..3 are X, Y, Z, M; ordinates the layout
// does not carry stay zero.
type Coord [4]float64

func (c Coord) X() float64 { return c[0] }
func (c Coord) Y() float64 { return c[1] }
func (c Coord) Z() float64 { return c[2] }
func (c Coord) M() float64 { return c[3] }

// C2 returns an XY coordinate.
func C2(x, y float64) Coord { return Coord{x, y} }

// C3 returns an XYZ coordinate.
func C3(x, y, z float64) Coord { return Coord{x, y, z} }

// C4 returns an XYZM coordinate.
func C4(x, y, z, m float64) Coord { return Coord{x, y, z, m} }

// CM returns an XYM coordinate.
func CM(x, y, m float64) Coord { return Coord{x, y, 0, m} }

// Geometry is a tagged union: Kind selects which payload field is used.
//
//	Point       Coords (len 0 = empty point, else len 1)
//	LineString  Coords
//	Polygon     Rings, ring 0 is the shell
//	Multi*/GeometryCollection  Parts
type Geometry struct {
	Kind   Kind
	Layout Layout
	SRID   int32
	CRS    *crs.CRS

	Coords []Coord
	Rings  [][]Coord
	Parts  []*Geometry
}

func NewPoint(l Layout, c Coord) *Geometry {
	return &Geometry{Kind: KindPoint, Layout: l, Coords: []Coord{c}}
}

func NewEmptyPoint(l Layout) *Geometry {
	return &Geometry{Kind: KindPoint, Layout: l}
}

func NewLineString(l Layout, coords ...Coord) *Geometry {
	return &Geometry{Kind: KindLineString, Layout: l, Coords: coords}
}

func NewPolygon(l Layout, rings ...[]Coord) *Geometry {
	return &Geometry{Kind: KindPolygon, Layout: l, Rings: rings}
}

// NewMulti builds a multi geometry or collection from parts.
func NewMulti(k Kind, l Layout, parts ...*Geometry) *Geometry {
	return &Geometry{Kind: k, Layout: l, Parts: parts}
}

// WithSRID sets srid on g and every nested part and returns g.
func (g *Geometry) WithSRID(srid int32) *Geometry {
	g.Walk(func(n *Geometry) { n.SRID = srid })
	return g
}

// Walk visits g and then every nested part, depth first.
func (g *Geometry) Walk(fn func(*Geometry)) {
	if g == nil {
		return
	}
	fn(g)
	for _, p := range g.Parts {
		p.Walk(fn)
	}
}

// IsEmpty reports whether g holds no coordinates at all.
func (g *Geometry) IsEmpty() bool {
	return g == nil || g.NumCoords() == 0
}

// NumCoords counts coordinates across all rings and parts.
func (g *Geometry) NumCoords() int {
	if g == nil {
		return 0
	}
	n := len(g.Coords)
	for _, r := range g.Rings {
		n += len(r)
	}
	for _, p := range g.Parts {
		n += p.NumCoords()
	}
	return n
}

// Envelope returns the bounds of every coordinate in g.
func (g *Geometry) Envelope() Envelope {
	env := NewEnvelope()
	g.Walk(func(n *Geometry) {
		for _, c := range n.Coords {
			env.ExpandCoord(c, n.Layout)
		}
		for _, r := range n.Rings {
			for _, c := range r {
				env.ExpandCoord(c, n.Layout)
			}
		}
	})
	return env
}

func (g *Geometry) String() string {
	if g == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s (%d coords, srid=%d)", g.Kind, g.Layout, g.NumCoords(), g.SRID)
}
