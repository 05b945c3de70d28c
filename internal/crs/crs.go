// Package crs models coordinate reference systems as opaque values resolved
// by an injected service. Transformation math is out of scope.
package crs

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownSRID = errors.New("crs: unknown reference system id")
	ErrInvalidWKT  = errors.New("crs: invalid WKT")
)

// CRS identifies a reference system. WKT is what lands in a .prj sidecar.
type CRS struct {
	SRID      int32  `json:"srid,omitempty"`
	Authority string `json:"authority,omitempty"`
	Name      string `json:"name"`
	WKT       string `json:"wkt,omitempty"`
}

func (c *CRS) String() string {
	if c == nil {
		return "unknown"
	}
	if c.SRID != 0 {
		return fmt.Sprintf("%s:%d (%s)", c.authority(), c.SRID, c.Name)
	}
	return c.Name
}

func (c *CRS) authority() string {
	if c.Authority == "" {
		return "EPSG"
	}
	return c.Authority
}

// Resolver maps a numeric reference id to a CRS.
type Resolver interface {
	Resolve(srid int32) (*CRS, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(srid int32) (*CRS, error)

func (f ResolverFunc) Resolve(srid int32) (*CRS, error) { return f(srid) }

const (
	wktWGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
	wktNAD83 = `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]]`
	wktWebMercator = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["X",EAST],AXIS["Y",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`
)

// Static is an in-memory Resolver seeded with a few common EPSG codes.
type Static struct {
	mu   sync.RWMutex
	defs map[int32]*CRS
}

// NewStatic returns a resolver knowing EPSG 4326, 4269 and 3857.
func NewStatic() *Static {
	s := &Static{defs: make(map[int32]*CRS)}
	s.Register(&CRS{SRID: 4326, Authority: "EPSG", Name: "WGS 84", WKT: wktWGS84})
	s.Register(&CRS{SRID: 4269, Authority: "EPSG", Name: "NAD83", WKT: wktNAD83})
	s.Register(&CRS{SRID: 3857, Authority: "EPSG", Name: "WGS 84 / Pseudo-Mercator", WKT: wktWebMercator})
	return s
}

// Register adds or replaces a definition.
func (s *Static) Register(c *CRS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[c.SRID] = c
}

func (s *Static) Resolve(srid int32) (*CRS, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.defs[srid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSRID, srid)
	}
	return c, nil
}
