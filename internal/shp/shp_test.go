package shp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/geovec/internal/alias/bx"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/storage"
)

type memSink struct{ b []byte }

func (m *memSink) Write(p []byte) (int, error) {
	m.b = append(m.b, p...)
	return len(p), nil
}

func (m *memSink) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.b[off:], p), nil
}

func source(t *testing.T, name string, data []byte, mmap bool) storage.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	src, err := storage.OpenSource(path, mmap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestShapeTypeFor(t *testing.T) {
	cases := []struct {
		k    geom.Kind
		l    geom.Layout
		want ShapeType
	}{
		{geom.KindPoint, geom.XY, Point},
		{geom.KindMultiPoint, geom.XY, MultiPoint},
		{geom.KindLineString, geom.XY, PolyLine},
		{geom.KindMultiLineString, geom.XYZ, PolyLineZ},
		{geom.KindPolygon, geom.XYM, PolygonM},
		{geom.KindMultiPolygon, geom.XYZM, PolygonZ},
		{geom.KindPoint, geom.XYM, PointM},
		{geom.KindMultiPoint, geom.XYZ, MultiPointZ},
	}
	for _, tc := range cases {
		got, err := ShapeTypeFor(tc.k, tc.l)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s", tc.k, tc.l)
	}
	_, err := ShapeTypeFor(geom.KindGeometryCollection, geom.XY)
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	assert.Equal(t, geom.KindMultiLineString, PolyLineZ.Binding())
	assert.Equal(t, geom.XYZM, PolyLineZ.Layout())
	assert.Equal(t, geom.XYM, PointM.Layout())

	assert.True(t, PolyLine.Fits(geom.NewLineString(geom.XY)))
	assert.False(t, PolyLine.Fits(geom.NewLineString(geom.XYZ)))
	assert.True(t, PolyLineZ.Fits(geom.NewLineString(geom.XYZ)))
	assert.False(t, Point.Fits(geom.NewMulti(geom.KindMultiPoint, geom.XY)))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{FileLength: 128, ShapeType: PolygonZ, Bounds: geom.NewEnvelope()}
	h.Bounds.ExpandCoord(geom.C4(-1, -2, 3, 4), geom.XYZM)
	h.Bounds.ExpandCoord(geom.C4(5, 6, 7, 8), geom.XYZM)

	got, err := ParseHeader(h.Bytes())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	empty, err := ParseHeader((&Header{FileLength: 50, ShapeType: Point}).Bytes())
	require.NoError(t, err)
	assert.True(t, empty.Bounds.IsEmpty())

	b := h.Bytes()
	bx.PutI32BEAt(b, 0, 1234)
	_, err = ParseHeader(b)
	assert.ErrorIs(t, err, ErrMalformedHeader)

	b = h.Bytes()
	bx.PutI32(b[32:], 7)
	_, err = ParseHeader(b)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestWriteRead(t *testing.T) {
	shpSink, shxSink := &memSink{}, &memSink{}
	w, err := NewWriter(shpSink, shxSink, PolyLine)
	require.NoError(t, err)

	line := geom.NewLineString(geom.XY, geom.C2(0, 0), geom.C2(3, 4))
	multi := geom.NewMulti(geom.KindMultiLineString, geom.XY,
		geom.NewLineString(geom.XY, geom.C2(-5, 1), geom.C2(-4, 2)),
		geom.NewLineString(geom.XY, geom.C2(10, 10), geom.C2(11, 12), geom.C2(9, 9)),
	).WithSRID(4326)
	require.NoError(t, w.Write(line))
	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Write(multi))
	assert.ErrorIs(t, w.Write(geom.NewPoint(geom.XY, geom.C2(1, 1))), ErrShapeMismatch)
	require.NoError(t, w.Close())

	assert.Equal(t, 3, w.Count())
	assert.Equal(t, geom.EnvelopeXY(-5, 0, 11, 12), w.Envelope())
	assert.Len(t, shxSink.b, HeaderSize+3*indexEntrySize)
	assert.Equal(t, int32(len(shpSink.b)/2), bx.I32BEAt(shpSink.b, 24))
	assert.Equal(t, int32(len(shxSink.b)/2), bx.I32BEAt(shxSink.b, 24))

	for _, mmap := range []bool{false, true} {
		r, err := NewReader(source(t, "a.shp", shpSink.b, mmap), source(t, "a.shx", shxSink.b, mmap), 32, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, PolyLine, r.Header().ShapeType)
		assert.Equal(t, geom.EnvelopeXY(-5, 0, 11, 12), r.Header().Bounds)

		// out of order access through the index
		g, err := r.Read(2)
		require.NoError(t, err)
		assert.Equal(t, multi, g)
		g, err = r.Read(1)
		require.NoError(t, err)
		assert.Nil(t, g)
		g, err = r.Read(0)
		require.NoError(t, err)
		assert.Equal(t, line, g)

		_, err = r.Read(3)
		assert.Error(t, err)
	}
}

func TestCorruptIndexEntry(t *testing.T) {
	shpSink, shxSink := &memSink{}, &memSink{}
	w, err := NewWriter(shpSink, shxSink, Point)
	require.NoError(t, err)
	require.NoError(t, w.Write(geom.NewPoint(geom.XY, geom.C2(1, 2))))
	require.NoError(t, w.Close())

	bx.PutI32BEAt(shxSink.b, HeaderSize+4, 99)
	r, err := NewReader(source(t, "b.shp", shpSink.b, false), source(t, "b.shx", shxSink.b, false), 0, nil)
	require.NoError(t, err)
	_, err = r.Read(0)
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestWriteRawCopiesRecords(t *testing.T) {
	shpSink, shxSink := &memSink{}, &memSink{}
	w, err := NewWriter(shpSink, shxSink, Point)
	require.NoError(t, err)
	require.NoError(t, w.Write(geom.NewPoint(geom.XY, geom.C2(1, 2))))
	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Close())

	r, err := NewReader(source(t, "c.shp", shpSink.b, false), source(t, "c.shx", shxSink.b, false), 0, nil)
	require.NoError(t, err)

	copyShp, copyShx := &memSink{}, &memSink{}
	cw, err := NewWriter(copyShp, copyShx, Point)
	require.NoError(t, err)
	for i := 0; i < r.Len(); i++ {
		g, err := r.Read(i)
		require.NoError(t, err)
		var env geom.Envelope
		if g != nil {
			env = g.Envelope()
		}
		content, err := r.Content(i)
		require.NoError(t, err)
		require.NoError(t, cw.WriteRaw(content, env))
	}
	require.NoError(t, cw.Close())

	assert.Equal(t, shpSink.b, copyShp.b)
	assert.Equal(t, shxSink.b, copyShx.b)

	lw, err := NewWriter(&memSink{}, &memSink{}, PolyLine)
	require.NoError(t, err)
	content, err := r.Content(0)
	require.NoError(t, err)
	assert.ErrorIs(t, lw.WriteRaw(content, geom.Envelope{}), ErrShapeMismatch)
	assert.ErrorIs(t, lw.WriteRaw([]byte{1}, geom.Envelope{}), ErrBadRecord)
}
