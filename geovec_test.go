package geovec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/geovec"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
)

func TestFacade(t *testing.T) {
	ctx := context.Background()
	db := geovec.NewDatabase(t.TempDir(), geovec.Options{})
	defer func() { require.NoError(t, db.Close()) }()

	_, err := db.Open(ctx, "roads")
	assert.ErrorIs(t, err, geovec.ErrDatasetNotFound)

	st, err := db.Create(ctx, "stops", &geovec.Schema{
		Geometry: geovec.GeometryBinding{Kind: geom.KindPoint, Layout: geom.XY},
		Fields:   []geovec.FieldDescriptor{dbf.MustField("code", dbf.Character, 8, 0)},
	})
	require.NoError(t, err)

	ids, err := st.AddRecords(ctx, []*geovec.Feature{
		record.NewFeature(geom.NewPoint(geom.XY, geom.C2(1, 2)), map[string]any{"code": "A1"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stops.1"}, ids)

	env, err := st.Envelope(ctx)
	require.NoError(t, err)
	assert.Equal(t, geom.EnvelopeXY(1, 2, 1, 2), env)

	assert.ErrorIs(t, db.Delete(ctx, "stops"), geovec.ErrUnsupportedOperation)
}
