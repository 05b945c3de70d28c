// stand for bytes helper
package bx

import (
	"encoding/binary"
	"math"
)

var (
	LE = binary.LittleEndian
	BE = binary.BigEndian
)

// Byte order markers used by the geometry encodings.
const (
	XDR byte = 0 // big-endian
	NDR byte = 1 // little-endian
)

// Order maps a byte order marker to its binary.ByteOrder.
func Order(marker byte) (binary.ByteOrder, bool) {
	switch marker {
	case XDR:
		return BE, true
	case NDR:
		return LE, true
	}
	return nil, false
}

// Marker is the inverse of Order.
func Marker(o binary.ByteOrder) byte {
	if o == binary.ByteOrder(BE) {
		return XDR
	}
	return NDR
}

// --- LE: read ---
func U16(b []byte) uint16  { return LE.Uint16(b) }
func U32(b []byte) uint32  { return LE.Uint32(b) }
func U64(b []byte) uint64  { return LE.Uint64(b) }
func I32(b []byte) int32   { return int32(U32(b)) }
func F64(b []byte) float64 { return math.Float64frombits(U64(b)) }

// --- LE: write ---
func PutU16(b []byte, v uint16)  { LE.PutUint16(b, v) }
func PutU32(b []byte, v uint32)  { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64)  { LE.PutUint64(b, v) }
func PutI32(b []byte, v int32)   { PutU32(b, uint32(v)) }
func PutF64(b []byte, v float64) { PutU64(b, math.Float64bits(v)) }

// --- LE: At (offset) ---
func U16At(b []byte, off int) uint16        { return U16(b[off:]) }
func U32At(b []byte, off int) uint32        { return U32(b[off:]) }
func F64At(b []byte, off int) float64       { return F64(b[off:]) }
func PutU16At(b []byte, off int, v uint16)  { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32)  { PutU32(b[off:], v) }
func PutF64At(b []byte, off int, v float64) { PutF64(b[off:], v) }

// --- BE (shape file word counts, record numbers) ---
func U32BE(b []byte) uint32                  { return BE.Uint32(b) }
func I32BE(b []byte) int32                   { return int32(U32BE(b)) }
func PutU32BE(b []byte, v uint32)            { BE.PutUint32(b, v) }
func PutI32BE(b []byte, v int32)             { PutU32BE(b, uint32(v)) }
func I32BEAt(b []byte, off int) int32        { return I32BE(b[off:]) }
func PutI32BEAt(b []byte, off int, v int32)  { PutI32BE(b[off:], v) }
