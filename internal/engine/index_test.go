package engine

import (
	"testing"

	"github.com/dhconnelly/rtreego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/geovec/internal/geom"
)

func newTestIndex(envs ...geom.Envelope) *spatialIndex {
	ix := &spatialIndex{tree: rtreego.NewTree(2, 25, 50)}
	for i, env := range envs {
		ix.tree.Insert(&indexEntry{ord: i, rect: rectOf(env)})
		ix.n++
	}
	return ix
}

func TestSpatialIndexCandidates(t *testing.T) {
	ix := newTestIndex(
		geom.EnvelopeXY(0, 0, 1, 1),
		geom.EnvelopeXY(5, 5, 5, 5),
		geom.EnvelopeXY(2, 0, 2, 10),
	)
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []int{0, 2}, ix.Candidates(geom.EnvelopeXY(0.5, 0.5, 2, 2)))
	assert.Equal(t, []int{1}, ix.Candidates(geom.EnvelopeXY(5, 5, 5, 5)))
	assert.Empty(t, ix.Candidates(geom.Envelope{}))
	require.NotNil(t, ix.Candidates(geom.EnvelopeXY(50, 50, 60, 60)))
}

func TestSpatialIndexTouchingEdges(t *testing.T) {
	ix := newTestIndex(
		geom.EnvelopeXY(0, 0, 0, 0),
		geom.EnvelopeXY(1, 1, 1, 1),
		geom.EnvelopeXY(2, 2, 2, 2),
		geom.EnvelopeXY(2, 3, 4, 5),
	)
	assert.Equal(t, []int{0, 1, 2}, ix.Candidates(geom.EnvelopeXY(0, 0, 2, 2)))
	// shares only the corner (2,3)
	assert.Equal(t, []int{3}, ix.Candidates(geom.EnvelopeXY(0, 2.5, 2, 3)))

	far := newTestIndex(
		geom.EnvelopeXY(5e6, 5e6, 5e6, 5e6),
		geom.EnvelopeXY(6e6, 4e6, 7e6, 4e6),
	)
	assert.Equal(t, []int{0, 1}, far.Candidates(geom.EnvelopeXY(4e6, 4e6, 6e6, 5e6)))
}
