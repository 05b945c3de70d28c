package storage

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dolmen-go/contextio"
)

// StagedFile is the side file a writer produces for one role. It supports
// buffered sequential append and rewriting of an already written region,
// which is how headers are back-patched once counts and extents are known.
type StagedFile struct {
	role Role
	path string
	f    *os.File
	bw   *bufio.Writer
	size int64
	done bool
}

func newStagedFile(ctx context.Context, role Role, path string, f *os.File) *StagedFile {
	return &StagedFile{
		role: role,
		path: path,
		f:    f,
		bw:   bufio.NewWriterSize(contextio.NewWriter(ctx, f), 64<<10),
	}
}

func (s *StagedFile) Role() Role   { return s.role }
func (s *StagedFile) Path() string { return s.path }

// Size is the number of bytes appended so far.
func (s *StagedFile) Size() int64 { return s.size }

// Write appends p.
func (s *StagedFile) Write(p []byte) (int, error) {
	if s.done {
		return 0, os.ErrClosed
	}
	n, err := s.bw.Write(p)
	s.size += int64(n)
	return n, err
}

// WriteString appends str.
func (s *StagedFile) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// WriteAt overwrites bytes already appended. Writing past Size is refused.
func (s *StagedFile) WriteAt(p []byte, off int64) (int, error) {
	if s.done {
		return 0, os.ErrClosed
	}
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, io.ErrShortWrite
	}
	if err := s.bw.Flush(); err != nil {
		return 0, err
	}
	return s.f.WriteAt(p, off)
}

// finish flushes, fsyncs and closes the file.
func (s *StagedFile) finish() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.bw.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// discard closes the file without flushing.
func (s *StagedFile) discard() {
	if s.done {
		return
	}
	s.done = true
	_ = s.f.Close()
}
