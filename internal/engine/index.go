package engine

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
)

// minExtent is the padding added around every rectangle, scaled up with
// the magnitude of the coordinates so it survives rounding. The tree
// rejects zero-length sides and treats rectangles that only touch as
// disjoint, so stored and query rectangles are both padded; the exact
// test is left to the envelope filter.
const minExtent = 1e-9

// spatialIndex maps record envelopes to physical ordinals for one
// committed generation.
type spatialIndex struct {
	tree *rtreego.Rtree
	n    int
}

type indexEntry struct {
	ord  int
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

func rectOf(env geom.Envelope) rtreego.Rect {
	pad := minExtent * max(1, math.Abs(env.MinX), math.Abs(env.MinY), math.Abs(env.MaxX), math.Abs(env.MaxY))
	point := rtreego.Point{env.MinX - pad, env.MinY - pad}
	lengths := []float64{env.Width() + 2*pad, env.Height() + 2*pad}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// buildIndex reads every live geometry of r.
func buildIndex(r *record.Reader) (*spatialIndex, error) {
	ix := &spatialIndex{tree: rtreego.NewTree(2, 25, 50)}
	err := r.Scan(func(f *record.Feature) error {
		if f.Geometry == nil {
			return nil
		}
		env := f.Geometry.Envelope()
		if env.IsEmpty() {
			return nil
		}
		ix.tree.Insert(&indexEntry{ord: f.Ordinal(), rect: rectOf(env)})
		ix.n++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *spatialIndex) Len() int { return ix.n }

// Candidates lists, in ascending order, the ordinals whose envelope may
// intersect env.
func (ix *spatialIndex) Candidates(env geom.Envelope) []int {
	out := make([]int, 0)
	if env.IsEmpty() {
		return out
	}
	for _, sp := range ix.tree.SearchIntersect(rectOf(env)) {
		out = append(out, sp.(*indexEntry).ord)
	}
	sort.Ints(out)
	return out
}
