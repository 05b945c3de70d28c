package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	locking "github.com/tuannm99/geovec/internal/lock"
	"github.com/tuannm99/geovec/internal/wal"
)

// osOpsMock passes everything to the real file system except renames past
// the first passRenames, which are answered by the mock.
type osOpsMock struct {
	mock.Mock
	osImpl
	passRenames int
}

// Rename implements osOps.
func (o *osOpsMock) Rename(oldpath string, newpath string) error {
	if o.passRenames > 0 {
		o.passRenames--
		return os.Rename(oldpath, newpath)
	}
	return o.Called(oldpath, newpath).Error(0)
}

type TxTestSuite struct {
	suite.Suite
	ctx context.Context
	dir string
	fs  *FileSet
}

func (s *TxTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.fs = NewFileSet(s.dir, "roads", Options{Locks: locking.NewRegistry()})
}

func (s *TxTestSuite) write(r Role, content string) {
	s.Require().NoError(os.WriteFile(s.fs.canonical(r), []byte(content), 0o644))
}

func (s *TxTestSuite) read(r Role) string {
	b, err := os.ReadFile(s.fs.Path(r))
	s.Require().NoError(err)
	return string(b)
}

func (s *TxTestSuite) seed() {
	s.write(RoleGeometry, "shp-v1")
	s.write(RoleIndex, "shx-v1")
	s.write(RoleTable, "dbf-v1")
}

func (s *TxTestSuite) stageAll(tx *Transaction, version string) {
	for _, r := range []Role{RoleGeometry, RoleIndex, RoleTable} {
		sf, err := tx.Stage(s.ctx, r)
		s.Require().NoError(err)
		_, err = sf.WriteString(r.Ext() + "-" + version)
		s.Require().NoError(err)
	}
}

func (s *TxTestSuite) stagedFiles() []string {
	names, err := s.fs.listStaged()
	s.Require().NoError(err)
	return names
}

func (s *TxTestSuite) TestCommitReplacesEveryFile() {
	s.seed()
	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")

	// nothing visible before commit
	s.Equal("shp-v1", s.read(RoleGeometry))
	s.Len(s.stagedFiles(), 3)

	s.Require().NoError(tx.Commit(s.ctx))
	s.Equal("shp-v2", s.read(RoleGeometry))
	s.Equal("shx-v2", s.read(RoleIndex))
	s.Equal("dbf-v2", s.read(RoleTable))
	s.Empty(s.stagedFiles())
	s.NoFileExists(wal.Path(s.dir, "roads"))

	s.ErrorIs(tx.Commit(s.ctx), ErrTxDone)
	s.NoError(tx.Rollback())
}

func (s *TxTestSuite) TestWriteAtPatchesHeader() {
	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	sf, err := tx.Stage(s.ctx, RoleTable)
	s.Require().NoError(err)

	_, err = sf.Write([]byte("0000-body-body"))
	s.Require().NoError(err)
	_, err = sf.WriteAt([]byte("HEAD"), 0)
	s.Require().NoError(err)
	_, err = sf.Write([]byte("-tail"))
	s.Require().NoError(err)
	s.EqualValues(19, sf.Size())

	_, err = sf.WriteAt([]byte("x"), 19)
	s.ErrorIs(err, io.ErrShortWrite, "writing past the end must fail")
}

func (s *TxTestSuite) TestRollbackDiscardsStagedFiles() {
	s.seed()
	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")
	s.Require().NoError(tx.Rollback())

	s.Equal("dbf-v1", s.read(RoleTable))
	s.Empty(s.stagedFiles())

	_, err = tx.Stage(s.ctx, RoleTable)
	s.ErrorIs(err, ErrTxDone)

	// the staging lock was released
	tx2, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.NoError(tx2.Rollback())
}

func (s *TxTestSuite) TestRemoveSidecar() {
	s.seed()
	s.write(RoleProjection, "GEOGCS[]")

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.ErrorIs(tx.Remove(RoleTable), ErrRequiredFile)
	s.Require().NoError(tx.Remove(RoleProjection))
	s.Require().NoError(tx.Commit(s.ctx))

	s.False(s.fs.Exists(RoleProjection))
	s.NoError(s.fs.Validate())
}

func (s *TxTestSuite) TestSecondWriterWaits() {
	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Millisecond)
	defer cancel()
	_, err = s.fs.Begin(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *TxTestSuite) TestSnapshotSurvivesCommit() {
	s.seed()
	snap, err := s.fs.Open(s.ctx)
	s.Require().NoError(err)
	defer snap.Close()

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")
	s.Require().NoError(tx.Commit(s.ctx))

	old, err := snap.ReadAll(RoleTable)
	s.Require().NoError(err)
	s.Equal("dbf-v1", string(old))
	s.Nil(snap.Source(RoleProjection))
}

func (s *TxTestSuite) TestGenerationTracksCommits() {
	s.seed()
	a, err := s.fs.Open(s.ctx)
	s.Require().NoError(err)
	defer func() { _ = a.Close() }()
	b, err := s.fs.Open(s.ctx)
	s.Require().NoError(err)
	defer func() { _ = b.Close() }()
	s.True(a.Generation().Same(b.Generation()))
	s.Nil(a.Generation()[RoleProjection])

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")
	s.Require().NoError(tx.Commit(s.ctx))

	c, err := s.fs.Open(s.ctx)
	s.Require().NoError(err)
	defer func() { _ = c.Close() }()
	s.False(a.Generation().Same(c.Generation()))
}

func (s *TxTestSuite) TestPartialCommitThenRecover() {
	s.seed()
	om := &osOpsMock{passRenames: 1}
	s.fs.ops = om
	om.On("Rename", mock.Anything, mock.Anything).Return(errors.New("disk on fire")).Once()

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")

	err = tx.Commit(s.ctx)
	s.Require().ErrorIs(err, ErrPartialCommit)
	var pce *PartialCommitError
	s.Require().ErrorAs(err, &pce)
	s.Equal([]Role{RoleGeometry}, pce.Swapped)
	s.Equal([]Role{RoleIndex, RoleTable}, pce.Pending)
	om.AssertExpectations(s.T())

	// mixed generations on disk, journal kept
	s.Equal("shp-v2", s.read(RoleGeometry))
	s.Equal("shx-v1", s.read(RoleIndex))
	s.FileExists(wal.Path(s.dir, "roads"))
	s.True(s.fs.NeedsRecovery())

	s.fs.ops = osImpl{}
	rep, err := s.fs.Recover(s.ctx)
	s.Require().NoError(err)
	s.Equal(tx.ID(), rep.TxID)
	s.Equal([]Role{RoleIndex, RoleTable}, rep.RolledForward)
	s.Equal("shx-v2", s.read(RoleIndex))
	s.Equal("dbf-v2", s.read(RoleTable))
	s.False(s.fs.NeedsRecovery())
}

func (s *TxTestSuite) TestFirstRenameFailureLeavesDatasetUntouched() {
	s.seed()
	om := &osOpsMock{}
	s.fs.ops = om
	om.On("Rename", mock.Anything, mock.Anything).Return(errors.New("read-only fs")).Once()

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")

	err = tx.Commit(s.ctx)
	s.Require().Error(err)
	s.NotErrorIs(err, ErrPartialCommit)
	s.Equal("shp-v1", s.read(RoleGeometry))
	s.Empty(s.stagedFiles())
	s.NoFileExists(wal.Path(s.dir, "roads"))
}

func (s *TxTestSuite) TestRecoverRejectsTamperedStagedFile() {
	s.seed()
	om := &osOpsMock{passRenames: 1}
	s.fs.ops = om
	om.On("Rename", mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

	tx, err := s.fs.Begin(s.ctx)
	s.Require().NoError(err)
	s.stageAll(tx, "v2")
	s.Require().ErrorIs(tx.Commit(s.ctx), ErrPartialCommit)

	staged := filepath.Join(s.dir, StagedName("roads", RoleIndex, tx.ID()))
	s.Require().NoError(os.WriteFile(staged, []byte("garbage"), 0o644))

	s.fs.ops = osImpl{}
	_, err = s.fs.Recover(s.ctx)
	s.ErrorIs(err, ErrCorruptJournal)
	s.Equal("shx-v1", s.read(RoleIndex), "nothing renamed on a failed verification")
}

func (s *TxTestSuite) TestRecoverRemovesOrphans() {
	s.seed()
	orphan := filepath.Join(s.dir, StagedName("roads", RoleTable, "0b9c7c4e-8a5e-4a53-9d36-1b0b3f0c8d11"))
	s.Require().NoError(os.WriteFile(orphan, []byte("half"), 0o644))
	other := filepath.Join(s.dir, "roads.dbf.bak")
	s.Require().NoError(os.WriteFile(other, []byte("keep"), 0o644))

	rep, err := s.fs.Recover(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{filepath.Base(orphan)}, rep.Orphans)
	s.NoFileExists(orphan)
	s.FileExists(other)

	rep, err = s.fs.Recover(s.ctx)
	s.Require().NoError(err)
	s.True(rep.Clean())
}

func TestTxTestSuite(t *testing.T) {
	suite.Run(t, new(TxTestSuite))
}

func TestRoles(t *testing.T) {
	r, ok := RoleOf(".SHP")
	require.True(t, ok)
	assert.Equal(t, RoleGeometry, r)
	_, ok = RoleOf("xml")
	assert.False(t, ok)
	assert.True(t, RoleEncoding.Optional())
	assert.False(t, RoleIndex.Optional())
}

func TestCaseInsensitivePathAndValidate(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileSet(dir, "Parcels", Options{})
	require.ErrorIs(t, fs.Validate(), ErrIncompleteFileSet)

	for _, name := range []string{"Parcels.SHP", "Parcels.shx", "Parcels.Dbf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	assert.NoError(t, fs.Validate())
	assert.Equal(t, filepath.Join(dir, "Parcels.SHP"), fs.Path(RoleGeometry))
	assert.Equal(t, filepath.Join(dir, "Parcels.prj"), fs.Path(RoleProjection))
	assert.False(t, fs.Exists(RoleProjection))
}

func TestParseStagedName(t *testing.T) {
	id := "0b9c7c4e-8a5e-4a53-9d36-1b0b3f0c8d11"
	r, got, ok := parseStagedName("roads", StagedName("roads", RoleIndex, id))
	require.True(t, ok)
	assert.Equal(t, RoleIndex, r)
	assert.Equal(t, id, got)

	for _, name := range []string{"roads.shp", "roads.shp.tmp", "roads.xyz." + id + ".tmp", "roads.shp.nope.tmp", "rivers.shp." + id + ".tmp"} {
		_, _, ok := parseStagedName("roads", name)
		assert.False(t, ok, name)
	}
}

func TestWindowMappedAndChunkedAgree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	mapped, err := OpenSource(path, true)
	require.NoError(t, err)
	defer mapped.Close()
	plain, err := OpenSource(path, false)
	require.NoError(t, err)
	defer plain.Close()
	assert.Nil(t, plain.Mapped())

	ranges := [][2]int{{0, 10}, {5, 10}, {12, 4}, {14, 40}, {900, 100}, {3, 200}, {999, 1}}
	for _, src := range []Source{mapped, plain} {
		w := NewWindow(src, 16)
		for _, rg := range ranges {
			got, err := w.Bytes(int64(rg[0]), rg[1])
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data[rg[0]:rg[0]+rg[1]], got), "range %v", rg)
		}
		_, err := w.Bytes(995, 10)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		_, err = w.Bytes(1000, 1)
		assert.ErrorIs(t, err, io.EOF)
	}
}
