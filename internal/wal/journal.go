// Package wal keeps the commit journal of a dataset transaction: the list
// of staged files and the checksum each must carry once swapped in. The
// journal is written before the first rename so an interrupted commit can
// be rolled forward.
package wal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/minio/highwayhash"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoJournal      = errors.New("wal: journal not found")
	ErrCorruptJournal = errors.New("wal: corrupt journal")
)

const (
	Suffix  = ".journal"
	version = 1
)

var key = []byte("geovec.journal.highwayhash.key!!")

// Entry is one planned file operation.
type Entry struct {
	Role     string `yaml:"role"`
	Target   string `yaml:"target"`
	Staged   string `yaml:"staged,omitempty"`
	Checksum string `yaml:"checksum,omitempty"`
	Remove   bool   `yaml:"remove,omitempty"`
}

// Journal is the on-disk commit plan. Entries are in commit order.
type Journal struct {
	Version int       `yaml:"version"`
	TxID    string    `yaml:"txid"`
	Base    string    `yaml:"base"`
	Created time.Time `yaml:"created"`
	Entries []Entry   `yaml:"entries"`
	Sum     string    `yaml:"sum,omitempty"`
}

// Path returns the journal location for dataset base in dir.
func Path(dir, base string) string {
	return filepath.Join(dir, base+Suffix)
}

// Checksum hashes everything read from r.
func Checksum(r io.Reader) (uint64, error) {
	h, err := highwayhash.New64(key)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// ChecksumFile hashes the content of path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sum, err := Checksum(f)
	if err != nil {
		return "", err
	}
	return FormatSum(sum), nil
}

func FormatSum(v uint64) string {
	return strconv.FormatUint(v, 16)
}

func (j *Journal) seal() ([]byte, error) {
	j.Version = version
	j.Sum = ""
	body, err := yaml.Marshal(j)
	if err != nil {
		return nil, err
	}
	sum, err := Checksum(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	j.Sum = FormatSum(sum)
	return yaml.Marshal(j)
}

// Write stores j at path crash-safely: temp file, fsync, rename, fsync of
// the parent directory.
func Write(path string, j *Journal) error {
	data, err := j.seal()
	if err != nil {
		return fmt.Errorf("wal: encode journal: %w", err)
	}
	tmp := path + "~"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return SyncDir(filepath.Dir(path))
}

// Read loads and verifies the journal at path.
func Read(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoJournal
		}
		return nil, err
	}
	var j Journal
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptJournal, err)
	}
	if j.Version != version {
		return nil, fmt.Errorf("%w: version %d", ErrCorruptJournal, j.Version)
	}
	want := j.Sum
	check := j
	if _, err := check.seal(); err != nil {
		return nil, err
	}
	if check.Sum != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptJournal)
	}
	return &j, nil
}

// Remove deletes the journal and any leftover temp copy.
func Remove(path string) error {
	_ = os.Remove(path + "~")
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return SyncDir(filepath.Dir(path))
}

// SyncDir fsyncs a directory so renames inside it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
