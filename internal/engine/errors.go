package engine

import (
	"errors"

	"github.com/tuannm99/geovec/internal/record"
)

var (
	ErrUnsupportedGeometryKind = errors.New("geovec: unsupported geometry kind")
	ErrDatasetNotFound         = errors.New("geovec: dataset not found")
	ErrInvalidName             = errors.New("geovec: invalid dataset name")
	ErrDatabaseClosed          = errors.New("geovec: database is closed")

	// ErrUnsupportedOperation is shared with the record streams.
	ErrUnsupportedOperation = record.ErrUnsupportedOperation
)
