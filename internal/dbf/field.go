// Package dbf reads and writes the dBase III table that carries the
// attributes of a dataset: a fixed header, 32-byte field descriptors and
// fixed-width records led by a deletion flag.
package dbf

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrMalformedHeader     = errors.New("dbf: malformed header")
	ErrInvalidLogicalValue = errors.New("dbf: invalid logical value")
	ErrInvalidField        = errors.New("dbf: invalid field declaration")
	ErrFieldOverflow       = errors.New("dbf: value does not fit field width")
	ErrUnsupportedValue    = errors.New("dbf: unsupported value type for field")
	ErrUnknownField        = errors.New("dbf: unknown field")
)

// FieldError attaches the field (and record, when known) to a value error.
type FieldError struct {
	Field  string
	Record int
	Err    error
}

func (e *FieldError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("dbf: record %d field %s: %v", e.Record, e.Field, e.Err)
	}
	return fmt.Sprintf("dbf: field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// FieldType is the one-byte type tag of a descriptor.
type FieldType byte

const (
	Logical   FieldType = 'L'
	Character FieldType = 'C'
	Date      FieldType = 'D'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
)

func (t FieldType) String() string { return string(rune(t)) }

func (t FieldType) known() bool {
	switch t {
	case Logical, Character, Date, Numeric, Float:
		return true
	}
	return false
}

// ValueClass is the Go value family a field decodes to.
type ValueClass uint8

const (
	ClassString ValueClass = iota
	ClassBool
	ClassDate
	ClassInt
	ClassLong
	ClassBigInt
	ClassFloat
)

func (c ValueClass) String() string {
	switch c {
	case ClassString:
		return "string"
	case ClassBool:
		return "bool"
	case ClassDate:
		return "date"
	case ClassInt:
		return "int32"
	case ClassLong:
		return "int64"
	case ClassBigInt:
		return "bigint"
	case ClassFloat:
		return "float64"
	}
	return fmt.Sprintf("ValueClass(%d)", uint8(c))
}

const (
	MaxNameLen      = 10
	MaxCharLen      = 254
	MaxNumericLen   = 18
	DateLen         = 8
	LogicalLen      = 1
	descriptorSize  = 32
	headerFixedSize = 32
)

// FieldDescriptor is one column. Offset counts from the start of the
// record, so the first field sits at 1, after the deletion flag.
type FieldDescriptor struct {
	Name     string
	Type     FieldType
	Offset   int
	Length   int
	Decimals int
	Class    ValueClass
}

func (fd FieldDescriptor) String() string {
	if fd.Decimals > 0 {
		return fmt.Sprintf("%s %s(%d,%d)", fd.Name, fd.Type, fd.Length, fd.Decimals)
	}
	return fmt.Sprintf("%s %s(%d)", fd.Name, fd.Type, fd.Length)
}

// classOf resolves the value class from type, width and precision.
func classOf(t FieldType, length, decimals int) ValueClass {
	switch t {
	case Logical:
		return ClassBool
	case Date:
		return ClassDate
	case Numeric:
		if decimals > 0 {
			return ClassFloat
		}
		switch {
		case length < 10:
			return ClassInt
		case length < 19:
			return ClassLong
		default:
			return ClassBigInt
		}
	case Float:
		return ClassFloat
	}
	return ClassString
}

// NewField declares a column, applying the format limits. Out-of-range
// widths and precisions are clamped with a warning; an empty name or an
// unknown type tag is an error.
func NewField(name string, t FieldType, length, decimals int) (FieldDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FieldDescriptor{}, fmt.Errorf("%w: empty name", ErrInvalidField)
	}
	if !t.known() {
		return FieldDescriptor{}, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidField, name, byte(t))
	}
	if len(name) > MaxNameLen {
		slog.Warn("dbf: field name truncated", "name", name, "max", MaxNameLen)
		name = string(cutUTF8([]byte(name), MaxNameLen))
	}

	switch t {
	case Logical:
		length, decimals = LogicalLen, 0
	case Date:
		length, decimals = DateLen, 0
	case Character:
		length = clamp(name, "length", length, 1, MaxCharLen)
		decimals = 0
	case Numeric, Float:
		length = clamp(name, "length", length, 1, MaxNumericLen)
		decimals = clamp(name, "decimals", decimals, 0, length-1)
	}
	return FieldDescriptor{
		Name:     name,
		Type:     t,
		Length:   length,
		Decimals: decimals,
		Class:    classOf(t, length, decimals),
	}, nil
}

func clamp(field, what string, v, lo, hi int) int {
	switch {
	case v < lo:
		slog.Warn("dbf: field "+what+" clamped", "field", field, "value", v, "min", lo)
		return lo
	case v > hi:
		slog.Warn("dbf: field "+what+" clamped", "field", field, "value", v, "max", hi)
		return hi
	}
	return v
}

// MustField is NewField for declarations known to be valid.
func MustField(name string, t FieldType, length, decimals int) FieldDescriptor {
	fd, err := NewField(name, t, length, decimals)
	if err != nil {
		panic(err)
	}
	return fd
}
