//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix)

package storage

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("storage: mmap not supported on this platform")

func mmapFile(*os.File, int64) ([]byte, error) { return nil, errNoMmap }

func munmap([]byte) error { return nil }
