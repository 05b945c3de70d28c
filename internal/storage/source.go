package storage

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Source is a read-only, random-access view of one file.
type Source interface {
	io.ReaderAt
	io.Closer
	Name() string
	Size() int64
	// Mapped returns the whole file when it is memory-mapped, else nil.
	Mapped() []byte
}

// OpenSource opens path for reading. With useMmap the file is mapped into
// memory when the platform allows it; any mapping failure falls back to
// plain reads.
func OpenSource(path string, useMmap bool) (Source, error) {
	src, _, err := openSource(path, useMmap)
	return src, err
}

// openSource also returns the identity of the file it opened.
func openSource(path string, useMmap bool) (Source, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	size := info.Size()
	if useMmap && size > 0 {
		data, err := mmapFile(f, size)
		if err == nil {
			// the mapping outlives the descriptor
			_ = f.Close()
			return &mappedSource{name: path, data: data}, info, nil
		}
		slog.Debug("storage: mmap unavailable, using file reads", "path", path, "err", err)
	}
	return &fileSource{f: f, size: size}, info, nil
}

type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Name() string                            { return s.f.Name() }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) Mapped() []byte                          { return nil }
func (s *fileSource) Close() error                            { return s.f.Close() }

type mappedSource struct {
	name string
	data []byte
}

func (s *mappedSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("storage: negative offset")
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *mappedSource) Name() string   { return s.name }
func (s *mappedSource) Size() int64    { return int64(len(s.data)) }
func (s *mappedSource) Mapped() []byte { return s.data }

func (s *mappedSource) Close() error {
	if s.data == nil {
		return nil
	}
	err := munmap(s.data)
	s.data = nil
	return err
}
