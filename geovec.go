// Package geovec is the top-level facade for the geovec dataset engine.
package geovec

import (
	"github.com/tuannm99/geovec/internal/crs"
	"github.com/tuannm99/geovec/internal/dbf"
	"github.com/tuannm99/geovec/internal/engine"
	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
	"github.com/tuannm99/geovec/internal/shp"
	"github.com/tuannm99/geovec/internal/storage"
	"github.com/tuannm99/geovec/internal/wkb"
)

type (
	Database    = engine.Database
	Options     = engine.Options
	Store       = engine.Store
	Query       = engine.Query
	Reader      = engine.Reader
	Writer      = engine.Writer
	ChangeEvent = engine.ChangeEvent
	ChangeKind  = engine.ChangeKind

	Schema          = record.Schema
	GeometryBinding = record.GeometryBinding
	Feature         = record.Feature
	Filter          = record.Filter
	ChangeSet       = record.ChangeSet

	FieldDescriptor = dbf.FieldDescriptor
	Geometry        = geom.Geometry
	Envelope        = geom.Envelope
	CRS             = crs.CRS

	RecoveryReport     = storage.RecoveryReport
	PartialCommitError = storage.PartialCommitError
)

const (
	FeaturesAdded    = engine.FeaturesAdded
	FeaturesModified = engine.FeaturesModified
	FeaturesRemoved  = engine.FeaturesRemoved
)

var (
	ErrUnsupportedGeometryKind = engine.ErrUnsupportedGeometryKind
	ErrDatasetNotFound         = engine.ErrDatasetNotFound
	ErrInvalidName             = engine.ErrInvalidName
	ErrUnsupportedOperation    = record.ErrUnsupportedOperation
	ErrNoMoreRecords           = record.ErrNoMoreRecords
	ErrMalformedTableHeader    = dbf.ErrMalformedHeader
	ErrInvalidLogicalValue     = dbf.ErrInvalidLogicalValue
	ErrMalformedShapeHeader    = shp.ErrMalformedHeader
	ErrEndianMismatch          = wkb.ErrEndianMismatch
	ErrUnknownGeometryKind     = wkb.ErrUnknownGeometryKind
	ErrPartialCommit           = storage.ErrPartialCommit
	ErrIncompleteFileSet       = storage.ErrIncompleteFileSet
)

// NewDatabase opens a handle on the datasets in dir.
func NewDatabase(dir string, opts Options) *Database {
	return engine.NewDatabase(dir, opts)
}
