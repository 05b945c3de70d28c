package crs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolve(t *testing.T) {
	s := NewStatic()

	c, err := s.Resolve(4326)
	require.NoError(t, err)
	assert.Equal(t, "WGS 84", c.Name)
	assert.Equal(t, "EPSG:4326 (WGS 84)", c.String())

	_, err = s.Resolve(999999)
	assert.ErrorIs(t, err, ErrUnknownSRID)
}

func TestCacheMemoisesHitsAndMisses(t *testing.T) {
	calls := map[int32]int{}
	next := ResolverFunc(func(srid int32) (*CRS, error) {
		calls[srid]++
		if srid == 1 {
			return nil, errors.New("boom")
		}
		return &CRS{SRID: srid, Name: "x"}, nil
	})
	c := NewCache(next, 2)

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(1)
		require.Error(t, err)
		got, err := c.Resolve(2)
		require.NoError(t, err)
		assert.Equal(t, int32(2), got.SRID)
	}
	assert.Equal(t, 1, calls[1])
	assert.Equal(t, 1, calls[2])

	// third id evicts the least recently used (1)
	_, _ = c.Resolve(3)
	assert.Equal(t, 2, c.Len())
	_, _ = c.Resolve(1)
	assert.Equal(t, 2, calls[1])

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestParsePRJ(t *testing.T) {
	c, err := ParsePRJ(wktWebMercator)
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / Pseudo-Mercator", c.Name)
	// nested GEOGCS authority (4326) must not win over the root one
	assert.Equal(t, int32(3857), c.SRID)
	assert.Equal(t, "EPSG", c.Authority)
	assert.Equal(t, wktWebMercator, c.WKT)
}

func TestParsePRJWithoutAuthority(t *testing.T) {
	wkt := `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	c, err := ParsePRJ("\uFEFF" + wkt + "\n")
	require.NoError(t, err)
	assert.Equal(t, "GCS_WGS_1984", c.Name)
	assert.Equal(t, int32(0), c.SRID)
	assert.Equal(t, wkt, c.WKT)
}

func TestParsePRJInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "GEOGCS", `GEOGCS["x"`} {
		_, err := ParsePRJ(in)
		assert.ErrorIs(t, err, ErrInvalidWKT, in)
	}
}
