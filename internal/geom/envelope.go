package geom

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box. Z and M ranges are tracked
// only when a coordinate carrying them was added.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
	MinZ, MaxZ             float64
	MinM, MaxM             float64

	hasXY, hasZ, hasM bool
}

// NewEnvelope returns the empty envelope.
func NewEnvelope() Envelope { return Envelope{} }

// EnvelopeXY builds a 2D envelope, normalising min/max.
func EnvelopeXY(x1, y1, x2, y2 float64) Envelope {
	e := NewEnvelope()
	e.ExpandCoord(C2(x1, y1), XY)
	e.ExpandCoord(C2(x2, y2), XY)
	return e
}

func (e Envelope) IsEmpty() bool { return !e.hasXY }
func (e Envelope) HasZ() bool    { return e.hasZ }
func (e Envelope) HasM() bool    { return e.hasM }

func (e Envelope) Width() float64  { return e.MaxX - e.MinX }
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// ExpandCoord grows e to include c. NaN ordinates are ignored.
func (e *Envelope) ExpandCoord(c Coord, l Layout) {
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return
	}
	if !e.hasXY {
		e.MinX, e.MaxX, e.MinY, e.MaxY = c[0], c[0], c[1], c[1]
		e.hasXY = true
	} else {
		e.MinX = math.Min(e.MinX, c[0])
		e.MaxX = math.Max(e.MaxX, c[0])
		e.MinY = math.Min(e.MinY, c[1])
		e.MaxY = math.Max(e.MaxY, c[1])
	}
	if l.HasZ() && !math.IsNaN(c[2]) {
		if !e.hasZ {
			e.MinZ, e.MaxZ, e.hasZ = c[2], c[2], true
		} else {
			e.MinZ = math.Min(e.MinZ, c[2])
			e.MaxZ = math.Max(e.MaxZ, c[2])
		}
	}
	if l.HasM() && !math.IsNaN(c[3]) {
		if !e.hasM {
			e.MinM, e.MaxM, e.hasM = c[3], c[3], true
		} else {
			e.MinM = math.Min(e.MinM, c[3])
			e.MaxM = math.Max(e.MaxM, c[3])
		}
	}
}

// Expand grows e to include o.
func (e *Envelope) Expand(o Envelope) {
	if o.IsEmpty() {
		return
	}
	l := LayoutOf(o.hasZ, o.hasM)
	e.ExpandCoord(Coord{o.MinX, o.MinY, o.MinZ, o.MinM}, l)
	e.ExpandCoord(Coord{o.MaxX, o.MaxY, o.MaxZ, o.MaxM}, l)
}

// Intersects is a 2D overlap test; touching edges count.
func (e Envelope) Intersects(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return !(o.MaxX < e.MinX || o.MinX > e.MaxX || o.MaxY < e.MinY || o.MinY > e.MaxY)
}

// Contains reports whether the XY position lies inside e.
func (e Envelope) Contains(x, y float64) bool {
	return !e.IsEmpty() && x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// Bound converts to an orb bound. The empty envelope maps to the zero bound.
func (e Envelope) Bound() orb.Bound {
	if e.IsEmpty() {
		return orb.Bound{}
	}
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// FromBound converts an orb bound to a 2D envelope.
func FromBound(b orb.Bound) Envelope {
	return EnvelopeXY(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// MarshalJSON writes [minx, miny, maxx, maxy], or null when empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal([4]float64{e.MinX, e.MinY, e.MaxX, e.MaxY})
}
