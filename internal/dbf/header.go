package dbf

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tuannm99/geovec/internal/alias/bx"
)

const (
	VersionDBase3     byte = 0x03
	VersionDBase3Memo byte = 0x83

	headerTerminator byte = 0x0D
	EndOfFile        byte = 0x1A
	FlagLive         byte = ' '
	FlagDeleted      byte = '*'
)

// Header is the table header. HeaderLength and RecordLength are derived
// from Fields by NewHeader; parsed headers keep the declared values.
type Header struct {
	Version        byte
	LastUpdate     time.Time
	RecordCount    uint32
	HeaderLength   uint16
	RecordLength   uint16
	LanguageDriver byte
	Fields         []FieldDescriptor
}

// NewHeader lays out fields back to back after the deletion flag.
func NewHeader(fields []FieldDescriptor) (*Header, error) {
	h := &Header{Version: VersionDBase3}
	seen := make(map[string]bool, len(fields))
	for _, fd := range fields {
		key := strings.ToUpper(fd.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidField, fd.Name)
		}
		seen[key] = true
	}
	h.Fields = renumber(fields)
	if err := h.recompute(); err != nil {
		return nil, err
	}
	return h, nil
}

func renumber(fields []FieldDescriptor) []FieldDescriptor {
	out := make([]FieldDescriptor, len(fields))
	off := 1
	for i, fd := range fields {
		fd.Offset = off
		off += fd.Length
		out[i] = fd
	}
	return out
}

func (h *Header) recompute() error {
	hl := headerFixedSize + descriptorSize*len(h.Fields) + 1
	rl := 1
	for _, fd := range h.Fields {
		rl += fd.Length
	}
	if hl > 0xFFFF || rl > 0xFFFF {
		return fmt.Errorf("%w: header %d or record %d bytes exceeds format limit", ErrInvalidField, hl, rl)
	}
	h.HeaderLength = uint16(hl)
	h.RecordLength = uint16(rl)
	return nil
}

// NumFields returns the number of columns.
func (h *Header) NumFields() int { return len(h.Fields) }

// Field finds a column by name, ignoring case.
func (h *Header) Field(name string) (FieldDescriptor, int, bool) {
	for i, fd := range h.Fields {
		if strings.EqualFold(fd.Name, name) {
			return fd, i, true
		}
	}
	return FieldDescriptor{}, -1, false
}

// Project resolves names to column indexes, in the order given.
func (h *Header) Project(names ...string) ([]int, error) {
	idx := make([]int, 0, len(names))
	for _, n := range names {
		_, i, ok := h.Field(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, n)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// WithField returns a copy with fd appended and offsets renumbered.
func (h *Header) WithField(fd FieldDescriptor) (*Header, error) {
	fields := append(append([]FieldDescriptor(nil), h.Fields...), fd)
	out, err := NewHeader(fields)
	if err != nil {
		return nil, err
	}
	out.Version, out.LastUpdate, out.RecordCount = h.Version, h.LastUpdate, h.RecordCount
	return out, nil
}

// WithoutField returns a copy without the named column.
func (h *Header) WithoutField(name string) (*Header, error) {
	_, i, ok := h.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	fields := append(append([]FieldDescriptor(nil), h.Fields[:i]...), h.Fields[i+1:]...)
	out, err := NewHeader(fields)
	if err != nil {
		return nil, err
	}
	out.Version, out.LastUpdate, out.RecordCount = h.Version, h.LastUpdate, h.RecordCount
	return out, nil
}

// ReadHeader reads a header from the start of r.
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, headerFixedSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	hl := int(bx.U16At(fixed, 8))
	if hl < headerFixedSize+1 {
		return nil, fmt.Errorf("%w: header length %d", ErrMalformedHeader, hl)
	}
	buf := make([]byte, hl)
	copy(buf, fixed)
	if _, err := io.ReadFull(r, buf[headerFixedSize:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}
	return ParseHeader(buf)
}

// ParseHeader decodes a header from b, which must hold at least
// HeaderLength bytes.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < headerFixedSize+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(b))
	}
	if b[0] != VersionDBase3 && b[0] != VersionDBase3Memo {
		return nil, fmt.Errorf("%w: version tag 0x%02x", ErrMalformedHeader, b[0])
	}
	h := &Header{
		Version:        b[0],
		LastUpdate:     decodeHeaderDate(b[1], b[2], b[3]),
		RecordCount:    bx.U32At(b, 4),
		HeaderLength:   bx.U16At(b, 8),
		RecordLength:   bx.U16At(b, 10),
		LanguageDriver: b[29],
	}
	hl := int(h.HeaderLength)
	if hl < headerFixedSize+1 || len(b) < hl {
		return nil, fmt.Errorf("%w: header length %d, have %d bytes", ErrMalformedHeader, hl, len(b))
	}

	n := (hl - headerFixedSize - 1) / descriptorSize
	off := 1
	for i := 0; i < n; i++ {
		d := b[headerFixedSize+i*descriptorSize : headerFixedSize+(i+1)*descriptorSize]
		if d[0] == headerTerminator {
			break
		}
		fd := parseDescriptor(d)
		if fd.Length <= 0 {
			slog.Warn("dbf: dropping zero-length field", "field", fd.Name)
			continue
		}
		fd.Offset = off
		off += fd.Length
		h.Fields = append(h.Fields, fd)
	}
	if int(h.RecordLength) < off {
		return nil, fmt.Errorf("%w: record length %d shorter than fields (%d)", ErrMalformedHeader, h.RecordLength, off)
	}
	return h, nil
}

func parseDescriptor(d []byte) FieldDescriptor {
	raw := d[:11]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	name := strings.TrimSpace(string(raw))
	if len(name) > MaxNameLen {
		slog.Warn("dbf: field name truncated", "name", name)
		if utf8.ValidString(name) {
			name = string(cutUTF8([]byte(name), MaxNameLen))
		} else {
			name = name[:MaxNameLen]
		}
	}
	t := FieldType(d[11])
	length := int(d[16])
	decimals := int(d[17])
	if t == Character {
		// some producers store widths over 255 in the decimals byte
		length |= decimals << 8
		decimals = 0
	}
	return FieldDescriptor{
		Name:     name,
		Type:     t,
		Length:   length,
		Decimals: decimals,
		Class:    classOf(t, length, decimals),
	}
}

func decodeHeaderDate(y, m, d byte) time.Time {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}
	}
	return time.Date(1900+int(y), time.Month(m), int(d), 0, 0, 0, 0, time.UTC)
}

// Bytes encodes the header, descriptors and terminator.
func (h *Header) Bytes() []byte {
	b := make([]byte, int(h.HeaderLength))
	b[0] = h.Version
	h.putCountAndDate(b)
	bx.PutU16At(b, 8, h.HeaderLength)
	bx.PutU16At(b, 10, h.RecordLength)
	for i, fd := range h.Fields {
		d := b[headerFixedSize+i*descriptorSize:]
		copy(d[:11], fd.Name)
		d[11] = byte(fd.Type)
		bx.PutU32At(d, 12, uint32(fd.Offset))
		d[16] = byte(fd.Length)
		d[17] = byte(fd.Decimals)
		if fd.Type == Character && fd.Length > 0xFF {
			d[17] = byte(fd.Length >> 8)
		}
	}
	b[headerFixedSize+len(h.Fields)*descriptorSize] = headerTerminator
	return b
}

// putCountAndDate fills bytes 1..7, the part rewritten after streaming.
func (h *Header) putCountAndDate(b []byte) {
	t := h.LastUpdate
	if t.IsZero() {
		t = time.Now().UTC()
	}
	b[1] = byte(t.Year() - 1900)
	b[2] = byte(t.Month())
	b[3] = byte(t.Day())
	bx.PutU32At(b, 4, h.RecordCount)
}

// RecordOffset is the byte position of record i (0-based).
func (h *Header) RecordOffset(i int) int64 {
	return int64(h.HeaderLength) + int64(i)*int64(h.RecordLength)
}
