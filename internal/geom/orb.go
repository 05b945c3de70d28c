package geom

import "github.com/paulmach/orb"

// ToOrb projects g onto XY orb types, dropping Z and M.
func ToOrb(g *Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	switch g.Kind {
	case KindPoint:
		if len(g.Coords) == 0 {
			return orb.Point{}
		}
		return point(g.Coords[0])
	case KindLineString:
		return lineString(g.Coords)
	case KindPolygon:
		return polygon(g.Rings)
	case KindMultiPoint:
		mp := make(orb.MultiPoint, 0, len(g.Parts))
		for _, p := range g.Parts {
			if len(p.Coords) > 0 {
				mp = append(mp, point(p.Coords[0]))
			}
		}
		return mp
	case KindMultiLineString:
		ml := make(orb.MultiLineString, 0, len(g.Parts))
		for _, p := range g.Parts {
			ml = append(ml, lineString(p.Coords))
		}
		return ml
	case KindMultiPolygon:
		mp := make(orb.MultiPolygon, 0, len(g.Parts))
		for _, p := range g.Parts {
			mp = append(mp, polygon(p.Rings))
		}
		return mp
	case KindGeometryCollection:
		c := make(orb.Collection, 0, len(g.Parts))
		for _, p := range g.Parts {
			c = append(c, ToOrb(p))
		}
		return c
	}
	return nil
}

func point(c Coord) orb.Point { return orb.Point{c[0], c[1]} }

func lineString(cs []Coord) orb.LineString {
	ls := make(orb.LineString, len(cs))
	for i, c := range cs {
		ls[i] = point(c)
	}
	return ls
}

func polygon(rings [][]Coord) orb.Polygon {
	p := make(orb.Polygon, len(rings))
	for i, r := range rings {
		p[i] = orb.Ring(lineString(r))
	}
	return p
}
