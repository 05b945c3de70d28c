package dbf

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Formatter renders numbers and dates for encoding. Implementations must
// not pad; the codec aligns the result within the field.
type Formatter interface {
	FormatInt(v int64) string
	FormatBigInt(v *big.Int) string
	FormatFloat(v float64, decimals int) string
	FormatDate(t time.Time) string
}

// DefaultFormatter writes fixed-point numbers and YYYYMMDD dates.
type DefaultFormatter struct{}

func (DefaultFormatter) FormatInt(v int64) string       { return strconv.FormatInt(v, 10) }
func (DefaultFormatter) FormatBigInt(v *big.Int) string { return v.String() }
func (DefaultFormatter) FormatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
func (DefaultFormatter) FormatDate(t time.Time) string { return t.Format("20060102") }

func trimField(raw []byte) []byte {
	return bytes.Trim(raw, "\x00 \t\r\n")
}

// DecodeField decodes raw, the field's window within a record, without
// charset conversion. Recoverable problems (bad dates and numbers) decode
// to nil or zero; an invalid logical byte is an error.
func DecodeField(fd FieldDescriptor, raw []byte) (any, error) {
	return decodeField(fd, raw, nil)
}

func decodeField(fd FieldDescriptor, raw []byte, cs *Charset) (any, error) {
	switch fd.Type {
	case Logical:
		return decodeLogical(fd, raw)
	case Date:
		return decodeDate(raw), nil
	case Numeric, Float:
		return decodeNumber(fd, trimField(raw)), nil
	default:
		s := trimField(raw)
		if cs != nil {
			return cs.decode(s), nil
		}
		return string(s), nil
	}
}

func decodeLogical(fd FieldDescriptor, raw []byte) (any, error) {
	s := trimField(raw)
	if len(s) == 0 {
		return nil, nil
	}
	switch s[0] {
	case 'T', 't', 'Y', 'y':
		return true, nil
	case 'F', 'f', 'N', 'n':
		return false, nil
	case '?':
		return nil, nil
	}
	return nil, &FieldError{Field: fd.Name, Record: -1, Err: fmt.Errorf("%w: %q", ErrInvalidLogicalValue, s[0])}
}

func decodeDate(raw []byte) any {
	s := trimField(raw)
	if len(s) != DateLen {
		return nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil
		}
	}
	y := atoi(s[0:4])
	m := atoi(s[4:6])
	d := atoi(s[6:8])
	if m < 1 || m > 12 || d < 1 || d > daysIn(y, time.Month(m)) {
		return nil
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func atoi(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func decodeNumber(fd FieldDescriptor, s []byte) any {
	switch fd.Class {
	case ClassFloat:
		v, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			if len(s) > 0 {
				slog.Debug("dbf: unparsable float, using zero", "field", fd.Name, "raw", string(s))
			}
			return float64(0)
		}
		return v
	case ClassInt:
		if v, err := strconv.ParseInt(string(s), 10, 32); err == nil {
			return int32(v)
		}
		fallthrough
	case ClassLong:
		if v, err := strconv.ParseInt(string(s), 10, 64); err == nil {
			return v
		}
		fallthrough
	default:
		if v, ok := new(big.Int).SetString(string(s), 10); ok {
			return v
		}
	}
	if len(s) > 0 {
		slog.Debug("dbf: unparsable integer, using zero", "field", fd.Name, "raw", string(s))
	}
	return zeroOf(fd.Class)
}

func zeroOf(c ValueClass) any {
	switch c {
	case ClassInt:
		return int32(0)
	case ClassLong:
		return int64(0)
	case ClassBigInt:
		return new(big.Int)
	case ClassFloat:
		return float64(0)
	case ClassBool:
		return false
	}
	return ""
}

// EncodeField renders v into a window of exactly fd.Length bytes, without
// charset conversion. f may be nil for DefaultFormatter.
func EncodeField(fd FieldDescriptor, v any, f Formatter) ([]byte, error) {
	out := make([]byte, fd.Length)
	if err := encodeField(out, fd, v, f, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeField(dst []byte, fd FieldDescriptor, v any, f Formatter, cs *Charset) error {
	if f == nil {
		f = DefaultFormatter{}
	}
	for i := range dst {
		dst[i] = ' '
	}
	if v == nil {
		if fd.Type == Logical {
			dst[0] = '?'
		}
		return nil
	}
	fail := func(err error) error {
		return &FieldError{Field: fd.Name, Record: -1, Err: err}
	}

	switch fd.Type {
	case Logical:
		b, ok := v.(bool)
		if !ok {
			return fail(fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
		}
		dst[0] = 'F'
		if b {
			dst[0] = 'T'
		}
		return nil

	case Date:
		t, ok := v.(time.Time)
		if !ok {
			return fail(fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
		}
		if t.IsZero() {
			return nil
		}
		return rightAlign(dst, f.FormatDate(t), fail)

	case Numeric, Float:
		s, err := formatNumber(fd, v, f)
		if err != nil {
			return fail(err)
		}
		return rightAlign(dst, s, fail)

	default:
		var raw []byte
		switch x := v.(type) {
		case string:
			raw = []byte(x)
		case []byte:
			raw = x
		case fmt.Stringer:
			raw = []byte(x.String())
		default:
			raw = []byte(fmt.Sprint(x))
		}
		if cs != nil {
			raw = cs.encode(raw)
		}
		if cs == nil || cs.utf8 {
			raw = cutUTF8(raw, len(dst))
		}
		copy(dst, raw)
		return nil
	}
}

// cutUTF8 shortens b to at most n bytes without splitting a rune.
func cutUTF8(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return b[:n]
}

func rightAlign(dst []byte, s string, fail func(error) error) error {
	if len(s) > len(dst) {
		return fail(fmt.Errorf("%w: %q needs %d bytes, have %d", ErrFieldOverflow, s, len(s), len(dst)))
	}
	copy(dst[len(dst)-len(s):], s)
	return nil
}

func formatNumber(fd FieldDescriptor, v any, f Formatter) (string, error) {
	if fd.Class == ClassFloat {
		x, ok := asFloat(v)
		if !ok {
			return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, x)
		}
		return f.FormatFloat(x, fd.Decimals), nil
	}
	switch x := v.(type) {
	case *big.Int:
		return f.FormatBigInt(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return f.FormatBigInt(new(big.Int).SetUint64(x)), nil
		}
		return f.FormatInt(int64(x)), nil
	case float32, float64:
		fl, _ := asFloat(x)
		if fl != math.Trunc(fl) || math.IsInf(fl, 0) || math.IsNaN(fl) {
			return "", fmt.Errorf("%w: %v is not integral", ErrUnsupportedValue, fl)
		}
		return f.FormatFloat(fl, 0), nil
	}
	n, ok := asInt(v)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return f.FormatInt(n), nil
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}
