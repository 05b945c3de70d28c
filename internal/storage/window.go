package storage

import (
	"fmt"
	"io"
)

const DefaultWindowSize = 64 << 10

// Window is a cursor-owned read buffer over a Source. On a mapped source it
// hands out sub-slices of the mapping; otherwise it fills a private buffer,
// keeping the still-wanted tail when it moves forward.
//
// A slice returned by Bytes is valid until the next call.
type Window struct {
	src   Source
	data  []byte
	buf   []byte
	start int64
	valid int
}

func NewWindow(src Source, size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	w := &Window{src: src, data: src.Mapped()}
	if w.data == nil {
		w.buf = make([]byte, size)
	}
	return w
}

func (w *Window) Source() Source { return w.src }

// Bytes returns n bytes starting at off.
func (w *Window) Bytes(off int64, n int) ([]byte, error) {
	size := w.src.Size()
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("storage: invalid range %d+%d", off, n)
	}
	if off+int64(n) > size {
		if off >= size {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	if w.data != nil {
		return w.data[off : off+int64(n) : off+int64(n)], nil
	}
	if off >= w.start && off+int64(n) <= w.start+int64(w.valid) {
		i := int(off - w.start)
		return w.buf[i : i+n : i+n], nil
	}
	if err := w.fill(off, n); err != nil {
		return nil, err
	}
	return w.buf[:n:n], nil
}

// fill repositions the buffer at off so that at least n bytes are held.
func (w *Window) fill(off int64, n int) error {
	if n > len(w.buf) {
		grown := make([]byte, n)
		copy(grown, w.buf[:w.valid])
		w.buf = grown
	}

	kept := 0
	if off >= w.start && off < w.start+int64(w.valid) {
		kept = copy(w.buf, w.buf[off-w.start:w.valid])
	}
	w.start = off
	w.valid = kept

	want := len(w.buf)
	if rest := w.src.Size() - off; rest < int64(want) {
		want = int(rest)
	}
	for w.valid < want {
		m, err := w.src.ReadAt(w.buf[w.valid:want], off+int64(w.valid))
		w.valid += m
		if err != nil {
			if err == io.EOF && w.valid >= n {
				break
			}
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}
