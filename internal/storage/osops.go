package storage

import (
	"os"

	"github.com/tuannm99/geovec/internal/wal"
)

// osOps is the file system surface used by transactions, swappable in tests.
type osOps interface {
	MkdirAll(path string, perm os.FileMode) error
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	ReadDir(name string) ([]os.DirEntry, error)
	Remove(name string) error
	Rename(oldpath string, newpath string) error
	Stat(name string) (os.FileInfo, error)
	SyncDir(path string) error
}

type osImpl struct{}

// MkdirAll implements [osOps].
func (osImpl) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// OpenFile implements [osOps].
func (osImpl) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

// ReadDir implements [osOps].
func (osImpl) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// Remove implements [osOps].
func (osImpl) Remove(name string) error { return os.Remove(name) }

// Rename implements [osOps].
func (osImpl) Rename(oldpath string, newpath string) error { return os.Rename(oldpath, newpath) }

// Stat implements [osOps].
func (osImpl) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// SyncDir implements [osOps].
func (osImpl) SyncDir(path string) error { return wal.SyncDir(path) }
