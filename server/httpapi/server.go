package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb/geojson"

	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/engine"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/metrics"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/internal/storage"
)

// DefaultLimit caps a features response when the request names none.
const DefaultLimit = 1000

// Server exposes a Database read-only over HTTP.
type Server struct {
	db      *engine.Database
	metrics *metrics.Metrics
}

func NewServer(db *engine.Database, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{db: db, metrics: m}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/healthz", s.metrics.Instrument("GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", s.metrics.Instrument("GET", "/datasets", s.handleList))
		r.Get("/{name}/schema", s.metrics.Instrument("GET", "/datasets/{name}/schema", s.handleSchema))
		r.Get("/{name}/envelope", s.metrics.Instrument("GET", "/datasets/{name}/envelope", s.handleEnvelope))
		r.Get("/{name}/features", s.metrics.Instrument("GET", "/datasets/{name}/features", s.handleFeatures))
	})
	return r
}

type fieldDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Length   int    `json:"length"`
	Decimals int    `json:"decimals,omitempty"`
	Class    string `json:"class"`
}

type schemaDoc struct {
	TypeName string     `json:"typeName"`
	Geometry any        `json:"geometry"`
	Fields   []fieldDoc `json:"fields"`
	CRS      any        `json:"crs,omitempty"`
	Charset  string     `json:"charset"`
	IDField  string     `json:"idField,omitempty"`
}

type envelopeDoc struct {
	Envelope geom.Envelope `json:"envelope"`
	Count    int           `json:"count"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	names, err := s.db.List()
	if err != nil {
		sendErr(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	sendJSON(w, http.StatusOK, map[string][]string{"datasets": names})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		sendErr(w, err)
		return
	}
	sc, err := st.Schema(r.Context())
	if err != nil {
		sendErr(w, err)
		return
	}
	doc := schemaDoc{
		TypeName: sc.TypeName,
		Geometry: map[string]string{
			"name":   sc.Geometry.Name,
			"kind":   sc.Geometry.Kind.String(),
			"layout": sc.Geometry.Layout.String(),
		},
		Fields:  make([]fieldDoc, 0, len(sc.Fields)),
		Charset: sc.Charset,
		IDField: sc.IDField,
	}
	for _, fd := range sc.Fields {
		doc.Fields = append(doc.Fields, fieldDoc{
			Name: fd.Name, Type: fd.Type.String(), Length: fd.Length, Decimals: fd.Decimals, Class: fd.Class.String(),
		})
	}
	if sc.CRS != nil {
		doc.CRS = sc.CRS
	}
	sendJSON(w, http.StatusOK, doc)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		sendErr(w, err)
		return
	}
	env, err := st.Envelope(r.Context())
	if err != nil {
		sendErr(w, err)
		return
	}
	n, err := st.Count(r.Context())
	if err != nil {
		sendErr(w, err)
		return
	}
	sendJSON(w, http.StatusOK, envelopeDoc{Envelope: env, Count: n})
}

// FeatureDoc is the GeoJSON rendering of one feature.
type FeatureDoc struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// NewFeatureDoc renders f; an absent or empty geometry becomes null.
func NewFeatureDoc(f *record.Feature) *FeatureDoc {
	fd := &FeatureDoc{Type: "Feature", ID: f.ID, Properties: f.Properties}
	if g := f.Geometry; g != nil && !g.IsEmpty() {
		fd.Geometry = geojson.NewGeometry(geom.ToOrb(g))
	}
	return fd
}

type collectionDoc struct {
	Type     string        `json:"type"`
	BBox     geojson.BBox  `json:"bbox,omitempty"`
	Features []*FeatureDoc `json:"features"`
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := s.db.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		sendErr(w, err)
		return
	}
	rd, err := st.NewReader(r.Context(), q)
	if err != nil {
		sendErr(w, err)
		return
	}
	defer func() { _ = rd.Close() }()

	doc := collectionDoc{Type: "FeatureCollection", Features: []*FeatureDoc{}}
	var bounds geom.Envelope
	err = rd.Scan(func(f *record.Feature) error {
		doc.Features = append(doc.Features, NewFeatureDoc(f))
		if f.Geometry != nil {
			bounds.Expand(f.Geometry.Envelope())
		}
		return nil
	})
	if err != nil {
		sendErr(w, err)
		return
	}
	if !bounds.IsEmpty() {
		doc.BBox = geojson.NewBBox(bounds.Bound())
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Warn("httpapi: encode features", "err", err)
	}
}

// parseQuery reads bbox=minx,miny,maxx,maxy, limit and properties=a,b.
func parseQuery(r *http.Request) (engine.Query, error) {
	q := engine.Query{Limit: DefaultLimit}
	v := r.URL.Query()
	if raw := v.Get("bbox"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return q, fmt.Errorf("bbox wants 4 numbers, got %d", len(parts))
		}
		var n [4]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return q, fmt.Errorf("bbox: %w", err)
			}
			n[i] = f
		}
		env := geom.EnvelopeXY(n[0], n[1], n[2], n[3])
		q.BBox = &env
	}
	if raw := v.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 0 {
			return q, fmt.Errorf("limit: %q is not a count", raw)
		}
		q.Limit = l
	}
	if raw := v.Get("properties"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				q.Properties = append(q.Properties, p)
			}
		}
	}
	return q, nil
}

type apiError struct {
	Error string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, apiError{Error: message})
}

// sendErr maps engine errors onto status codes.
func sendErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrDatasetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidName), errors.Is(err, dbf.ErrUnknownField):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrIncompleteFileSet):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "err", err)
	}
	sendError(w, err.Error(), status)
}
