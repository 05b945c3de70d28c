package record

import (
	"errors"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tuannm99/geovec/internal/geom"
)

var (
	ErrNoMoreRecords        = errors.New("record: no more records")
	ErrUnsupportedOperation = errors.New("record: unsupported operation")
	ErrNoCurrentFeature     = errors.New("record: no current feature")
	ErrClosed               = errors.New("record: stream closed")
)

// Feature is one record: identifier, geometry and attribute values keyed
// by column name. A decoded feature belongs to the caller.
type Feature struct {
	ID         string
	Geometry   *geom.Geometry
	Properties map[string]any

	ordinal int
}

// NewFeature returns a feature not yet stored anywhere.
func NewFeature(g *geom.Geometry, props map[string]any) *Feature {
	if props == nil {
		props = make(map[string]any)
	}
	return &Feature{Geometry: g, Properties: props, ordinal: -1}
}

// Ordinal is the physical record number the feature was read from, or -1.
func (f *Feature) Ordinal() int { return f.ordinal }

// Get returns a property, matching the name without regard to case when
// there is no exact key.
func (f *Feature) Get(name string) (any, bool) {
	if v, ok := f.Properties[name]; ok {
		return v, true
	}
	for k, v := range f.Properties {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func (f *Feature) Set(name string, v any) {
	if f.Properties == nil {
		f.Properties = make(map[string]any)
	}
	for k := range f.Properties {
		if k != name && strings.EqualFold(k, name) {
			delete(f.Properties, k)
		}
	}
	f.Properties[name] = v
}

// Clone copies the property map; the geometry is shared.
func (f *Feature) Clone() *Feature {
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return &Feature{ID: f.ID, Geometry: f.Geometry, Properties: props, ordinal: f.ordinal}
}

// Decode copies the properties into out, a pointer to a struct or map.
// Struct fields are matched by their `dbf` tag, else by name ignoring case.
func (f *Feature) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "dbf",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(f.Properties)
}
