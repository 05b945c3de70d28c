package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/shp"
)

// DefaultGeometryName is the attribute name the geometry is exposed under.
const DefaultGeometryName = "the_geom"

// GeometryBinding describes the geometry column of a dataset.
type GeometryBinding struct {
	Name   string      `json:"name"`
	Kind   geom.Kind   `json:"-"`
	Layout geom.Layout `json:"-"`
}

// Schema is the shape of every feature in a dataset.
type Schema struct {
	TypeName string                `json:"typeName"`
	Geometry GeometryBinding       `json:"geometry"`
	Fields   []dbf.FieldDescriptor `json:"-"`
	CRS      *crs.CRS              `json:"crs,omitempty"`
	Charset  string                `json:"charset"`
	// IDField, when it names a field, supplies feature identifiers.
	IDField string `json:"idField,omitempty"`
}

func (s *Schema) NumFields() int { return len(s.Fields) }

// Field finds a column by name, ignoring case.
func (s *Schema) Field(name string) (dbf.FieldDescriptor, int, bool) {
	for i, fd := range s.Fields {
		if strings.EqualFold(fd.Name, name) {
			return fd, i, true
		}
	}
	return dbf.FieldDescriptor{}, -1, false
}

// FieldNames lists column names in order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, fd := range s.Fields {
		out[i] = fd.Name
	}
	return out
}

// TableHeader lays the columns out as a table header.
func (s *Schema) TableHeader() (*dbf.Header, error) {
	return dbf.NewHeader(s.Fields)
}

// ShapeType maps the geometry binding to the on-disk shape type.
func (s *Schema) ShapeType() (shp.ShapeType, error) {
	return shp.ShapeTypeFor(s.Geometry.Kind, s.Geometry.Layout)
}

func (s *Schema) idColumn() int {
	if s.IDField == "" {
		return -1
	}
	_, i, ok := s.Field(s.IDField)
	if !ok {
		return -1
	}
	return i
}

// FeatureID builds the identifier of the record at ordinal (0-based).
// idValue is the decoded identifier column, used when the schema has one.
func (s *Schema) FeatureID(ordinal int, idValue any) string {
	if idValue != nil && s.idColumn() >= 0 {
		if str := strings.TrimSpace(fmt.Sprint(idValue)); str != "" {
			return s.TypeName + "." + str
		}
	}
	return s.TypeName + "." + strconv.Itoa(ordinal+1)
}

func (s *Schema) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s:%s %s", s.TypeName, s.Geometry.Name, s.Geometry.Kind, s.Geometry.Layout)
	for _, fd := range s.Fields {
		b.WriteString(", ")
		b.WriteString(fd.String())
	}
	b.WriteString(")")
	return b.String()
}
