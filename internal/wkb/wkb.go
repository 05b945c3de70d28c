// Package wkb reads and writes the extended well-known binary geometry
// encoding: order marker, flagged type word, optional SRID, coordinates.
package wkb

import (
	"errors"
	"fmt"
	"io"

	"github.com/tuannm99/geovec/internal/geom"
)

const (
	flagZ    uint32 = 0x80000000
	flagM    uint32 = 0x40000000
	flagSRID uint32 = 0x20000000
	kindMask uint32 = 0x1FFFFFFF
)

// maxPrealloc bounds slice capacity taken from an untrusted count.
const maxPrealloc = 1 << 16

var (
	ErrEndianMismatch      = errors.New("wkb: byte order marker does not match decoder")
	ErrUnknownGeometryKind = errors.New("wkb: unknown geometry kind")
	ErrTruncated           = errors.New("wkb: truncated geometry")
	ErrInvalidGeometry     = errors.New("wkb: invalid geometry")
)

// TypeWord packs kind, layout and the SRID flag into a type word.
func TypeWord(k geom.Kind, l geom.Layout, withSRID bool) uint32 {
	w := uint32(k)
	if l.HasZ() {
		w |= flagZ
	}
	if l.HasM() {
		w |= flagM
	}
	if withSRID {
		w |= flagSRID
	}
	return w
}

// ParseTypeWord is the inverse of TypeWord. The kind is not validated.
func ParseTypeWord(w uint32) (k geom.Kind, l geom.Layout, withSRID bool) {
	return geom.Kind(w & kindMask), geom.LayoutOf(w&flagZ != 0, w&flagM != 0), w&flagSRID != 0
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, io.ErrUnexpectedEOF)
	}
	return err
}

func capFor(n uint32) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}
