package wal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJournal() *Journal {
	return &Journal{
		TxID:    "4b1f",
		Base:    "roads",
		Created: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Entries: []Entry{
			{Role: "shp", Target: "roads.shp", Staged: "roads.shp.4b1f.tmp", Checksum: "abc"},
			{Role: "prj", Target: "roads.prj", Remove: true},
		},
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "roads")

	require.NoError(t, Write(path, sampleJournal()))
	assert.NoFileExists(t, path+"~")

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "4b1f", got.TxID)
	assert.Equal(t, sampleJournal().Entries, got.Entries)
	assert.NotEmpty(t, got.Sum)

	require.NoError(t, Remove(path))
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrNoJournal)
}

func TestTamperedJournalIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "roads")
	require.NoError(t, Write(path, sampleJournal()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "roads.shp.4b1f.tmp", "roads.shp.ffff.tmp", 1))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Read(path)
	assert.ErrorIs(t, err, ErrCorruptJournal)

	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o644))
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrCorruptJournal)
}

func TestChecksumFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("hellO"), 0o644))

	sa, err := ChecksumFile(a)
	require.NoError(t, err)
	sb, err := ChecksumFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, sa, sb)

	again, err := ChecksumFile(a)
	require.NoError(t, err)
	assert.Equal(t, sa, again)
}
