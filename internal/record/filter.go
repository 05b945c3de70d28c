package record

import "github.com/tuannm99/geovec/internal/geom"

// Filter selects features.
type Filter interface {
	Match(f *Feature) bool
}

type allFilter struct{}

func (allFilter) Match(*Feature) bool { return true }

// All matches every feature.
func All() Filter { return allFilter{} }

// BBoxFilter matches features whose geometry envelope intersects Env.
type BBoxFilter struct {
	Env geom.Envelope
}

func BBox(env geom.Envelope) *BBoxFilter { return &BBoxFilter{Env: env} }

func (b *BBoxFilter) Match(f *Feature) bool {
	if f.Geometry == nil {
		return false
	}
	return b.Env.Intersects(f.Geometry.Envelope())
}

// IDFilter matches a set of identifiers.
type IDFilter struct {
	ids map[string]struct{}
}

func IDs(ids ...string) *IDFilter {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &IDFilter{ids: m}
}

func (i *IDFilter) Match(f *Feature) bool {
	_, ok := i.ids[f.ID]
	return ok
}

// Func adapts a predicate.
type Func func(*Feature) bool

func (fn Func) Match(f *Feature) bool { return fn(f) }

type andFilter []Filter

func (a andFilter) Match(f *Feature) bool {
	for _, x := range a {
		if !x.Match(f) {
			return false
		}
	}
	return true
}

// And matches when every filter does. Nil filters are skipped.
func And(filters ...Filter) Filter {
	var out andFilter
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return All()
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// EnvelopeOf returns the bbox a filter is limited to, if it declares one.
func EnvelopeOf(f Filter) (geom.Envelope, bool) {
	switch x := f.(type) {
	case *BBoxFilter:
		return x.Env, true
	case andFilter:
		for _, sub := range x {
			if env, ok := EnvelopeOf(sub); ok {
				return env, true
			}
		}
	}
	return geom.Envelope{}, false
}
