package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	locking "github.com/tuannm99/geovec/internal/lock"
	"github.com/tuannm99/geovec/internal/metrics"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/internal/storage"
)

type EngineTestSuite struct {
	suite.Suite
	ctx context.Context
	dir string
	db  *Database
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.db = NewDatabase(s.dir, Options{Locks: locking.NewRegistry(), Metrics: metrics.New()})
}

func (s *EngineTestSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func pointSchema() *record.Schema {
	return &record.Schema{
		Geometry: record.GeometryBinding{Kind: geom.KindPoint, Layout: geom.XY},
		Fields: []dbf.FieldDescriptor{
			dbf.MustField("name", dbf.Character, 16, 0),
			dbf.MustField("value", dbf.Numeric, 10, 2),
		},
	}
}

func pt(x, y float64) *geom.Geometry { return geom.NewPoint(geom.XY, geom.C2(x, y)) }

func (s *EngineTestSuite) createPoints(name string, n int) *Store {
	st, err := s.db.Create(s.ctx, name, pointSchema())
	s.Require().NoError(err)
	var feats []*record.Feature
	for i := 0; i < n; i++ {
		feats = append(feats, record.NewFeature(pt(float64(i), float64(i)), map[string]any{
			"name":  string(rune('a' + i)),
			"value": float64(i) + 0.5,
		}))
	}
	if n > 0 {
		_, err = st.AddRecords(s.ctx, feats)
		s.Require().NoError(err)
	}
	return st
}

func (s *EngineTestSuite) readAll(st *Store, q Query) []*record.Feature {
	r, err := st.NewReader(s.ctx, q)
	s.Require().NoError(err)
	defer func() { s.NoError(r.Close()) }()
	var out []*record.Feature
	s.Require().NoError(r.Scan(func(f *record.Feature) error {
		out = append(out, f)
		return nil
	}))
	return out
}

func featureIDs(fs []*record.Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}

func (s *EngineTestSuite) TestThreePointScenario() {
	st := s.createPoints("points", 3)

	env, err := st.Envelope(s.ctx)
	s.Require().NoError(err)
	s.Equal(geom.EnvelopeXY(0, 0, 2, 2), env)

	n, err := st.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	got := s.readAll(st, Query{})
	s.Equal([]string{"points.1", "points.2", "points.3"}, featureIDs(got))
	s.Equal("b", got[1].Properties["name"])
	s.Equal(1.5, got[1].Properties["value"])
	s.Equal(geom.C2(2, 2), got[2].Geometry.Coords[0])

	// a fresh handle reads the same thing from disk
	other := NewDatabase(s.dir, Options{})
	st2, err := other.Open(s.ctx, "points")
	s.Require().NoError(err)
	env2, err := st2.Envelope(s.ctx)
	s.Require().NoError(err)
	s.Equal(env, env2)
}

func (s *EngineTestSuite) TestRemoveBeforeCommitNotifies() {
	st := s.createPoints("points", 3)
	events, cancel := st.Watch(4)
	defer cancel()

	w, err := st.NewWriter(s.ctx)
	s.Require().NoError(err)
	f, err := w.Next()
	s.Require().NoError(err)
	s.Equal("points.1", f.ID)
	s.Require().NoError(w.Remove())

	// not visible until commit
	n, err := st.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Empty(events)

	_, err = w.Commit(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	ev := <-events
	s.Equal(FeaturesRemoved, ev.Kind)
	s.Equal([]string{"points.1"}, ev.IDs)
	s.Equal("points", ev.Dataset)
	s.Equal(geom.EnvelopeXY(0, 0, 0, 0), ev.Envelope)

	n, err = st.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	got := s.readAll(st, Query{})
	s.Equal([]any{"b", "c"}, []any{got[0].Properties["name"], got[1].Properties["name"]})
}

func (s *EngineTestSuite) TestConcurrentReadersDuringStaging() {
	st := s.createPoints("points", 3)

	before, err := st.NewReader(s.ctx, Query{})
	s.Require().NoError(err)
	defer func() { _ = before.Close() }()

	w, err := st.NewWriter(s.ctx)
	s.Require().NoError(err)
	_, err = w.Append(pt(7, 7), map[string]any{"name": "z"})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := st.NewReader(s.ctx, Query{})
			if !assert.NoError(s.T(), err) {
				return
			}
			defer func() { _ = r.Close() }()
			_ = r.Scan(func(*record.Feature) error {
				counts[i]++
				return nil
			})
		}(i)
	}
	wg.Wait()
	for _, c := range counts {
		s.Equal(3, c)
	}

	_, err = w.Commit(s.ctx)
	s.Require().NoError(err)

	s.Len(s.readAll(st, Query{}), 4)

	// the reader opened earlier stays on its generation
	n := 0
	s.Require().NoError(before.Scan(func(*record.Feature) error { n++; return nil }))
	s.Equal(3, n)
}

func (s *EngineTestSuite) TestHeaderIdempotence() {
	ref, err := crs.NewStatic().Resolve(4326)
	s.Require().NoError(err)
	sc := pointSchema()
	sc.CRS = ref

	st, err := s.db.Create(s.ctx, "a", sc)
	s.Require().NoError(err)
	first, err := st.Schema(s.ctx)
	s.Require().NoError(err)
	s.Equal(int32(4326), first.CRS.SRID)
	s.Equal(dbf.DefaultCharset, first.Charset)

	again, err := s.db.Create(s.ctx, "b", first)
	s.Require().NoError(err)
	second, err := again.Schema(s.ctx)
	s.Require().NoError(err)

	s.Equal(first.Fields, second.Fields)
	s.Equal(first.Geometry, second.Geometry)
	s.Equal(first.CRS, second.CRS)
	s.Equal(first.Charset, second.Charset)

	for _, ext := range []string{"shp", "shx", "prj", "cpg"} {
		a, err := os.ReadFile(filepath.Join(s.dir, "a."+ext))
		s.Require().NoError(err)
		b, err := os.ReadFile(filepath.Join(s.dir, "b."+ext))
		s.Require().NoError(err)
		s.Equal(a, b, ext)
	}
}

func (s *EngineTestSuite) TestCreateRemovesStaleSidecars() {
	ref, err := crs.NewStatic().Resolve(3857)
	s.Require().NoError(err)
	sc := pointSchema()
	sc.CRS = ref
	_, err = s.db.Create(s.ctx, "a", sc)
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.dir, "a.prj"))

	st, err := s.db.Create(s.ctx, "a", pointSchema())
	s.Require().NoError(err)
	s.NoFileExists(filepath.Join(s.dir, "a.prj"))
	got, err := st.Schema(s.ctx)
	s.Require().NoError(err)
	s.Nil(got.CRS)
}

func (s *EngineTestSuite) TestCreateShapeMapping() {
	cases := []struct {
		kind   geom.Kind
		layout geom.Layout
		want   geom.Kind
		wantL  geom.Layout
	}{
		{geom.KindPoint, geom.XY, geom.KindPoint, geom.XY},
		{geom.KindMultiPoint, geom.XYZ, geom.KindMultiPoint, geom.XYZM},
		{geom.KindLineString, geom.XYM, geom.KindMultiLineString, geom.XYM},
		{geom.KindPolygon, geom.XY, geom.KindMultiPolygon, geom.XY},
	}
	for i, tc := range cases {
		name := "t" + string(rune('0'+i))
		st, err := s.db.Create(s.ctx, name, &record.Schema{Geometry: record.GeometryBinding{Kind: tc.kind, Layout: tc.layout}})
		s.Require().NoError(err, name)
		sc, err := st.Schema(s.ctx)
		s.Require().NoError(err)
		s.Equal(tc.want, sc.Geometry.Kind, name)
		s.Equal(tc.wantL, sc.Geometry.Layout, name)
	}

	_, err := s.db.Create(s.ctx, "gc", &record.Schema{Geometry: record.GeometryBinding{Kind: geom.KindGeometryCollection, Layout: geom.XY}})
	s.ErrorIs(err, ErrUnsupportedGeometryKind)
	s.NoFileExists(filepath.Join(s.dir, "gc.shp"))
}

func (s *EngineTestSuite) TestBBoxQueryUsesIndex() {
	st := s.createPoints("points", 5)

	box := geom.EnvelopeXY(0.5, 0.5, 3, 3)
	got := s.readAll(st, Query{BBox: &box})
	s.Equal([]string{"points.2", "points.3", "points.4"}, featureIDs(got))

	got = s.readAll(st, Query{Filter: record.BBox(geom.EnvelopeXY(4, 4, 9, 9)), Properties: []string{"name"}})
	s.Require().Len(got, 1)
	s.Equal(map[string]any{"name": "e"}, got[0].Properties)

	far := geom.EnvelopeXY(100, 100, 101, 101)
	s.Empty(s.readAll(st, Query{BBox: &far}))

	// the index follows commits
	_, err := st.AddRecords(s.ctx, []*record.Feature{record.NewFeature(pt(100.5, 100.5), nil)})
	s.Require().NoError(err)
	s.Equal([]string{"points.6"}, featureIDs(s.readAll(st, Query{BBox: &far})))
}

func (s *EngineTestSuite) TestBBoxQueryIncludesEdges() {
	st := s.createPoints("points", 3)

	box := geom.EnvelopeXY(0, 0, 2, 2)
	indexed := s.readAll(st, Query{BBox: &box})
	s.Equal([]string{"points.1", "points.2", "points.3"}, featureIDs(indexed))

	// same answer as a plain scan with the envelope filter
	scanned := s.readAll(st, Query{Filter: record.Func(func(f *record.Feature) bool {
		return f.Geometry.Envelope().Intersects(box)
	})})
	s.Equal(featureIDs(scanned), featureIDs(indexed))

	corner := geom.EnvelopeXY(2, 2, 5, 5)
	s.Equal([]string{"points.3"}, featureIDs(s.readAll(st, Query{BBox: &corner})))
}

func (s *EngineTestSuite) TestQueriesFollowCommitsFromOtherHandles() {
	st := s.createPoints("points", 2)
	far := geom.EnvelopeXY(50, 50, 60, 60)
	s.Empty(s.readAll(st, Query{BBox: &far}))

	other := NewDatabase(s.dir, Options{})
	defer func() { s.NoError(other.Close()) }()
	st2, err := other.Open(s.ctx, "points")
	s.Require().NoError(err)
	_, err = st2.AddRecords(s.ctx, []*record.Feature{record.NewFeature(pt(55, 55), map[string]any{"name": "x"})})
	s.Require().NoError(err)

	// no Invalidate: the reader notices the files changed
	got := s.readAll(st, Query{BBox: &far})
	s.Equal([]string{"points.3"}, featureIDs(got))
	s.Equal("x", got[0].Properties["name"])
	n, err := st.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *EngineTestSuite) TestUpdateAndRemoveRecords() {
	st := s.createPoints("points", 4)
	events, cancel := st.Watch(8)
	defer cancel()

	n, err := st.UpdateRecords(s.ctx, record.IDs("points.2", "points.4"), map[string]any{"NAME": "upd", "the_geom": pt(9, 9)})
	s.Require().NoError(err)
	s.Equal(2, n)
	ev := <-events
	s.Equal(FeaturesModified, ev.Kind)
	s.Equal([]string{"points.2", "points.4"}, ev.IDs)

	_, err = st.UpdateRecords(s.ctx, nil, map[string]any{"missing": 1})
	s.ErrorIs(err, dbf.ErrUnknownField)

	n, err = st.RemoveRecords(s.ctx, record.Func(func(f *record.Feature) bool { return f.Properties["name"] == "a" }))
	s.Require().NoError(err)
	s.Equal(1, n)

	got := s.readAll(st, Query{})
	s.Require().Len(got, 3)
	s.Equal("upd", got[0].Properties["name"])
	s.Equal(geom.C2(9, 9), got[0].Geometry.Coords[0])
	s.Equal("c", got[1].Properties["name"])

	env, err := st.Envelope(s.ctx)
	s.Require().NoError(err)
	s.Equal(geom.EnvelopeXY(2, 2, 9, 9), env)

	n, err = st.RemoveRecords(s.ctx, record.IDs("nope"))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *EngineTestSuite) TestUnsupportedOperations() {
	st := s.createPoints("points", 0)
	s.ErrorIs(s.db.Delete(s.ctx, "points"), ErrUnsupportedOperation)
	s.ErrorIs(st.UpdateSchema(s.ctx, pointSchema()), ErrUnsupportedOperation)

	r, err := st.NewReader(s.ctx, Query{})
	s.Require().NoError(err)
	defer func() { _ = r.Close() }()
	s.ErrorIs(r.Remove(), ErrUnsupportedOperation)
	_, err = r.Next()
	s.ErrorIs(err, record.ErrNoMoreRecords)
}

func (s *EngineTestSuite) TestOpenAndList() {
	_, err := s.db.Open(s.ctx, "nope")
	s.ErrorIs(err, ErrDatasetNotFound)
	_, err = s.db.Open(s.ctx, "../x")
	s.ErrorIs(err, ErrInvalidName)

	s.createPoints("b", 1)
	s.createPoints("a", 1)
	names, err := s.db.List()
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, names)

	s.Require().NoError(os.Remove(filepath.Join(s.dir, "a.dbf")))
	fresh := NewDatabase(s.dir, Options{})
	_, err = fresh.Open(s.ctx, "a")
	s.ErrorIs(err, storage.ErrIncompleteFileSet)
}

func (s *EngineTestSuite) TestAutoRecoverRemovesOrphans() {
	s.createPoints("points", 2)
	orphan := filepath.Join(s.dir, storage.StagedName("points", storage.RoleTable, uuid.NewString()))
	s.Require().NoError(os.WriteFile(orphan, []byte("junk"), 0o644))

	db := NewDatabase(s.dir, Options{AutoRecover: true})
	st, err := db.Open(s.ctx, "points")
	s.Require().NoError(err)
	s.NoFileExists(orphan)
	n, err := st.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *EngineTestSuite) TestWatchCancelAndClose() {
	st := s.createPoints("points", 1)
	events, cancel := st.Watch(1)
	cancel()
	_, ok := <-events
	s.False(ok)

	events, _ = st.Watch(1)
	s.Require().NoError(s.db.Close())
	_, ok = <-events
	s.False(ok)

	_, err := s.db.Open(s.ctx, "points")
	s.ErrorIs(err, ErrDatabaseClosed)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
