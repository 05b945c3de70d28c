// Package shp reads and writes the geometry file of a dataset and its
// record index. Each record carries a shape type word followed by the
// little-endian extended WKB encoding of the geometry.
package shp

import (
	"errors"
	"fmt"

	"github.com/tuannm99/geovec/internal/geom"
)

var (
	ErrMalformedHeader = errors.New("shp: malformed header")
	ErrUnsupportedKind = errors.New("shp: geometry kind has no shape type")
	ErrShapeMismatch   = errors.New("shp: geometry does not match file shape type")
	ErrBadRecord       = errors.New("shp: bad record")
)

// ShapeType is the file-level geometry type.
type ShapeType int32

const (
	NullShape   ShapeType = 0
	Point       ShapeType = 1
	PolyLine    ShapeType = 3
	Polygon     ShapeType = 5
	MultiPoint  ShapeType = 8
	PointZ      ShapeType = 11
	PolyLineZ   ShapeType = 13
	PolygonZ    ShapeType = 15
	MultiPointZ ShapeType = 18
	PointM      ShapeType = 21
	PolyLineM   ShapeType = 23
	PolygonM    ShapeType = 25
	MultiPointM ShapeType = 28
)

var shapeNames = map[ShapeType]string{
	NullShape: "Null", Point: "Point", PolyLine: "PolyLine", Polygon: "Polygon", MultiPoint: "MultiPoint",
	PointZ: "PointZ", PolyLineZ: "PolyLineZ", PolygonZ: "PolygonZ", MultiPointZ: "MultiPointZ",
	PointM: "PointM", PolyLineM: "PolyLineM", PolygonM: "PolygonM", MultiPointM: "MultiPointM",
}

func (s ShapeType) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("ShapeType(%d)", int32(s))
}

func (s ShapeType) Valid() bool {
	_, ok := shapeNames[s]
	return ok
}

func (s ShapeType) family() ShapeType {
	switch {
	case s >= 20:
		return s - 20
	case s >= 10:
		return s - 10
	}
	return s
}

// Layout is the coordinate layout of geometries stored under s. Z shapes
// carry a measure as well.
func (s ShapeType) Layout() geom.Layout {
	switch {
	case s >= 20:
		return geom.XYM
	case s >= 10:
		return geom.XYZM
	}
	return geom.XY
}

// Binding is the widest geometry kind stored under s.
func (s ShapeType) Binding() geom.Kind {
	switch s.family() {
	case Point:
		return geom.KindPoint
	case MultiPoint:
		return geom.KindMultiPoint
	case PolyLine:
		return geom.KindMultiLineString
	case Polygon:
		return geom.KindMultiPolygon
	}
	return 0
}

// Accepts reports whether a geometry of kind k may be stored under s.
func (s ShapeType) Accepts(k geom.Kind) bool {
	switch s.family() {
	case Point:
		return k == geom.KindPoint
	case MultiPoint:
		return k == geom.KindMultiPoint || k == geom.KindPoint
	case PolyLine:
		return k == geom.KindLineString || k == geom.KindMultiLineString
	case Polygon:
		return k == geom.KindPolygon || k == geom.KindMultiPolygon
	}
	return false
}

// ShapeTypeFor maps a geometry binding to the shape type that stores it.
// Any Z layout maps to the Z family, an M-only layout to the M family.
func ShapeTypeFor(k geom.Kind, l geom.Layout) (ShapeType, error) {
	var base ShapeType
	switch k {
	case geom.KindPoint:
		base = Point
	case geom.KindMultiPoint:
		base = MultiPoint
	case geom.KindLineString, geom.KindMultiLineString:
		base = PolyLine
	case geom.KindPolygon, geom.KindMultiPolygon:
		base = Polygon
	default:
		return NullShape, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
	switch {
	case l.HasZ():
		return base + 10, nil
	case l.HasM():
		return base + 20, nil
	}
	return base, nil
}

// dims is 0, 10 or 20 for the plain, Z and M families.
func (s ShapeType) dims() ShapeType { return s - s.family() }

// Fits reports whether g can be stored under s: a compatible kind and a
// layout of the same family.
func (s ShapeType) Fits(g *geom.Geometry) bool {
	if !s.Accepts(g.Kind) {
		return false
	}
	want, err := ShapeTypeFor(geom.KindPoint, g.Layout)
	return err == nil && want.dims() == s.dims()
}
