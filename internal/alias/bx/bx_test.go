package bx

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLittleEndianReadWrite verifies that the LE helpers round-trip values
// and lay the least-significant byte first.
func TestLittleEndianReadWrite(t *testing.T) {
	{
		b := make([]byte, 2)
		PutU16(b, 0x1234)
		assert.Equal(t, []byte{0x34, 0x12}, b)
		assert.Equal(t, uint16(0x1234), U16(b))
	}
	{
		b := make([]byte, 4)
		PutI32(b, -2)
		assert.Equal(t, []byte{0xFE, 0xFF, 0xFF, 0xFF}, b)
		assert.Equal(t, int32(-2), I32(b))
	}
	{
		b := make([]byte, 8)
		PutF64(b, 1.5)
		assert.Equal(t, math.Float64bits(1.5), U64(b))
		assert.Equal(t, 1.5, F64(b))
	}
}

func TestAtVariants(t *testing.T) {
	buf := make([]byte, 20)

	PutU16At(buf, 0, 0x0A0B)
	PutU32At(buf, 2, 0x01020304)
	PutF64At(buf, 6, -3.25)
	PutI32BEAt(buf, 14, 9994)

	assert.Equal(t, uint16(0x0A0B), U16At(buf, 0))
	assert.Equal(t, uint32(0x01020304), U32At(buf, 2))
	assert.Equal(t, -3.25, F64At(buf, 6))
	assert.Equal(t, int32(9994), I32BEAt(buf, 14))
	// BE: most-significant byte first
	assert.Equal(t, []byte{0x00, 0x00, 0x27, 0x0A}, buf[14:18])
}

func TestOrderMarker(t *testing.T) {
	o, ok := Order(NDR)
	require.True(t, ok)
	assert.Equal(t, binary.ByteOrder(binary.LittleEndian), o)
	assert.Equal(t, NDR, Marker(o))

	o, ok = Order(XDR)
	require.True(t, ok)
	assert.Equal(t, binary.ByteOrder(binary.BigEndian), o)
	assert.Equal(t, XDR, Marker(o))

	_, ok = Order(7)
	assert.False(t, ok)
}
