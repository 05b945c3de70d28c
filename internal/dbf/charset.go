package dbf

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCharset is assumed when a dataset has no .cpg sidecar.
const DefaultCharset = "ISO-8859-1"

// Charset converts character fields between the table encoding and UTF-8.
type Charset struct {
	name string
	enc  encoding.Encoding
	utf8 bool
}

// aliases covers the names legacy producers write into .cpg files that
// are not IANA names.
var aliases = map[string]encoding.Encoding{
	"1250":      charmap.Windows1250,
	"1251":      charmap.Windows1251,
	"1252":      charmap.Windows1252,
	"1253":      charmap.Windows1253,
	"1254":      charmap.Windows1254,
	"1257":      charmap.Windows1257,
	"437":       charmap.CodePage437,
	"850":       charmap.CodePage850,
	"852":       charmap.CodePage852,
	"866":       charmap.CodePage866,
	"88591":     charmap.ISO8859_1,
	"8859_1":    charmap.ISO8859_1,
	"88592":     charmap.ISO8859_2,
	"88595":     charmap.ISO8859_5,
	"885915":    charmap.ISO8859_15,
	"ANSI 1251": charmap.Windows1251,
	"ANSI 1252": charmap.Windows1252,
	"UTF8":      unicode.UTF8,
}

// LookupCharset resolves a .cpg name. Surrounding whitespace and case are
// ignored.
func LookupCharset(name string) (*Charset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultCharset
	}
	enc, ok := aliases[strings.ToUpper(name)]
	if !ok {
		var err error
		enc, err = ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("dbf: unsupported charset %q", name)
		}
	}
	return &Charset{name: name, enc: enc, utf8: enc == unicode.UTF8}, nil
}

// MustCharset is LookupCharset for names known to resolve.
func MustCharset(name string) *Charset {
	cs, err := LookupCharset(name)
	if err != nil {
		panic(err)
	}
	return cs
}

func (c *Charset) Name() string { return c.name }

func isASCII(b []byte) bool {
	for _, x := range b {
		if x >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (c *Charset) decode(b []byte) string {
	if c.utf8 || isASCII(b) {
		return string(b)
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func (c *Charset) encode(b []byte) []byte {
	if c.utf8 || isASCII(b) {
		return b
	}
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes(b)
	if err != nil {
		return b
	}
	return out
}

// Codec decodes and encodes field values through a charset and formatter.
type Codec struct {
	Charset   *Charset
	Formatter Formatter
}

// NewCodec returns a codec; a nil charset means DefaultCharset and a nil
// formatter DefaultFormatter.
func NewCodec(cs *Charset, f Formatter) *Codec {
	if cs == nil {
		cs = MustCharset(DefaultCharset)
	}
	if f == nil {
		f = DefaultFormatter{}
	}
	return &Codec{Charset: cs, Formatter: f}
}

// DecodeField is the charset-aware DecodeField.
func (c *Codec) DecodeField(fd FieldDescriptor, raw []byte) (any, error) {
	return decodeField(fd, raw, c.Charset)
}

// EncodeField is the charset-aware EncodeField.
func (c *Codec) EncodeField(fd FieldDescriptor, v any) ([]byte, error) {
	out := make([]byte, fd.Length)
	if err := encodeField(out, fd, v, c.Formatter, c.Charset); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRecord decodes the columns listed in idx (all columns when idx is
// nil) from one raw record into dst, which is grown as needed. Record is the
// ordinal used in errors.
func (c *Codec) DecodeRecord(h *Header, rec []byte, idx []int, record int, dst []any) ([]any, error) {
	if idx == nil {
		dst = dst[:0]
		for _, fd := range h.Fields {
			v, err := c.DecodeField(fd, rec[fd.Offset:fd.Offset+fd.Length])
			if err != nil {
				return nil, withRecord(err, record)
			}
			dst = append(dst, v)
		}
		return dst, nil
	}
	dst = dst[:0]
	for _, i := range idx {
		fd := h.Fields[i]
		v, err := c.DecodeField(fd, rec[fd.Offset:fd.Offset+fd.Length])
		if err != nil {
			return nil, withRecord(err, record)
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// EncodeRecord renders values (one per column) as a live record into dst,
// which must be RecordLength bytes.
func (c *Codec) EncodeRecord(h *Header, values []any, dst []byte) error {
	if len(values) != len(h.Fields) {
		return fmt.Errorf("dbf: %d values for %d fields", len(values), len(h.Fields))
	}
	dst[0] = FlagLive
	for i, fd := range h.Fields {
		if err := encodeField(dst[fd.Offset:fd.Offset+fd.Length], fd, values[i], c.Formatter, c.Charset); err != nil {
			return err
		}
	}
	for i := 1 + sumLen(h.Fields); i < len(dst); i++ {
		dst[i] = ' '
	}
	return nil
}

func sumLen(fields []FieldDescriptor) int {
	n := 0
	for _, fd := range fields {
		n += fd.Length
	}
	return n
}

func withRecord(err error, record int) error {
	if fe, ok := err.(*FieldError); ok {
		cp := *fe
		cp.Record = record
		return &cp
	}
	return err
}
