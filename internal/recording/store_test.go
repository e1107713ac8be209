package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mono48k = types.Format{SampleRate: 48000, Channels: 1}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// writeWAV writes seconds of silence to path.
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	w, err := wavfile.Create(path, mono48k)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, int(seconds*48000)*2)))
	require.NoError(t, w.Close())
}

func addClip(t *testing.T, s *Store, name string, created time.Time) types.Recording {
	t.Helper()
	rec := types.Recording{
		Location:  filepath.Join(s.Dir(), name+".wav"),
		Name:      name,
		CreatedAt: created,
		Duration:  0.5,
	}
	writeWAV(t, rec.Location, rec.Duration)
	require.NoError(t, s.Add(rec))
	return rec
}

func TestEnumerateNewestFirst(t *testing.T) {
	s := openStore(t, t.TempDir())
	a := addClip(t, s, "A", time.Unix(1, 0))
	b := addClip(t, s, "B", time.Unix(2, 0))

	got := s.Enumerate()
	require.Len(t, got, 2)
	assert.Equal(t, []string{b.Location, a.Location}, []string{got[0].Location, got[1].Location})
}

func TestEnumerateReturnsCopy(t *testing.T) {
	s := openStore(t, t.TempDir())
	addClip(t, s, "A", time.Unix(1, 0))

	got := s.Enumerate()
	got[0].Name = "changed"
	assert.Equal(t, "A", s.Enumerate()[0].Name)
}

func TestAddIsIdempotent(t *testing.T) {
	s := openStore(t, t.TempDir())
	a := addClip(t, s, "A", time.Unix(1, 0))
	_, before := s.Snapshot()

	require.NoError(t, s.Add(a))
	items, after := s.Snapshot()
	assert.Len(t, items, 1)
	assert.Equal(t, before, after)
}

func TestAddRejectsZeroRecording(t *testing.T) {
	s := openStore(t, t.TempDir())
	assert.ErrorIs(t, s.Add(types.Recording{}), types.ErrInvalidState)
}

func TestDeleteRemovesFileAndEntry(t *testing.T) {
	s := openStore(t, t.TempDir())
	a := addClip(t, s, "A", time.Unix(1, 0))
	b := addClip(t, s, "B", time.Unix(2, 0))

	events, cancel := s.Events().Subscribe()
	defer cancel()
	var hooked types.Recording
	s.OnDelete(func(r types.Recording) { hooked = r })

	require.NoError(t, s.Delete(a))
	assert.NoFileExists(t, a.Location)
	assert.Equal(t, a.Location, hooked.Location)

	items := s.Enumerate()
	require.Len(t, items, 1)
	assert.Equal(t, b.Location, items[0].Location)

	ev := <-events
	assert.Equal(t, types.EventDeleted, ev.Kind)
	assert.Equal(t, a.Location, ev.Recording.Location)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	s := openStore(t, t.TempDir())
	a := addClip(t, s, "A", time.Unix(1, 0))
	b := addClip(t, s, "B", time.Unix(2, 0))
	require.NoError(t, s.Delete(a))

	err := s.Delete(a)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, "not_found", types.ErrorCode(err))

	items := s.Enumerate()
	require.Len(t, items, 1)
	assert.Equal(t, b.Location, items[0].Location)
	assert.FileExists(t, b.Location)
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	a := addClip(t, s, "A", time.Unix(1, 0))

	renamed, err := s.Rename(a.Location, "  interview  ")
	require.NoError(t, err)
	assert.Equal(t, "interview", renamed.Name)
	assert.Equal(t, a.Location, renamed.Location)

	_, err = s.Rename(a.Location, " ")
	assert.Error(t, err)
	_, err = s.Rename(filepath.Join(dir, "nope.wav"), "x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCatalogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	a := addClip(t, s, "A", time.Unix(100, 0))
	_, err = s.Rename(a.Location, "kept")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openStore(t, dir)
	got, ok := reopened.Get(a.Location)
	require.True(t, ok)
	assert.Equal(t, "kept", got.Name)
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))
	assert.InDelta(t, a.Duration, got.Duration, 1e-9)
}

func TestOpenReconcilesDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	gone := addClip(t, s, "gone", time.Unix(1, 0))
	require.NoError(t, s.Close())
	require.NoError(t, os.Remove(gone.Location))

	orphan := filepath.Join(dir, "orphan.wav")
	writeWAV(t, orphan, 1.5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.wav"), []byte("not audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "take.wav.part"), nil, 0o644))

	reopened := openStore(t, dir)
	items := reopened.Enumerate()
	require.Len(t, items, 1)
	assert.Equal(t, orphan, items[0].Location)
	assert.Equal(t, "orphan", items[0].Name)
	assert.InDelta(t, 1.5, items[0].Duration, 1.0/48000)
}

func TestNewTakeLocations(t *testing.T) {
	s := openStore(t, t.TempDir())
	partial, final := s.NewTake()
	assert.Equal(t, final+".part", partial)
	assert.Equal(t, s.Dir(), filepath.Dir(final))
	assert.Equal(t, ".wav", filepath.Ext(final))

	_, other := s.NewTake()
	assert.NotEqual(t, final, other)
}

func TestDeleteCatalogFailureKeepsFile(t *testing.T) {
	s := openStore(t, t.TempDir())
	a := addClip(t, s, "A", time.Unix(1, 0))
	require.NoError(t, s.catalog.Close())

	err := s.Delete(a)
	assert.ErrorIs(t, err, types.ErrStorageWriteFailure)
	assert.FileExists(t, a.Location)
	_, ok := s.Get(a.Location)
	assert.True(t, ok)
}

func TestDeleteFileFailureRestoresCatalog(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	a := addClip(t, s, "A", time.Unix(1, 0))

	// A non-empty directory in place of the file makes removal fail.
	require.NoError(t, os.Remove(a.Location))
	require.NoError(t, os.Mkdir(a.Location, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a.Location, "keep"), nil, 0o644))

	err := s.Delete(a)
	assert.ErrorIs(t, err, types.ErrStorageWriteFailure)
	_, ok := s.Get(a.Location)
	assert.True(t, ok)

	rows, err := s.catalog.all(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A.wav", rows[0].File)
}

func TestRecordingOutsideDirSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "elsewhere.wav")
	writeWAV(t, outside, 0.5)

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	rec := types.Recording{Location: outside, Name: "elsewhere", CreatedAt: time.Unix(5, 0), Duration: 0.5}
	require.NoError(t, s.Add(rec))
	require.NoError(t, s.Close())

	reopened := openStore(t, dir)
	got, ok := reopened.Get(outside)
	require.True(t, ok)
	assert.Equal(t, "elsewhere", got.Name)
}

func TestToRowKeys(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		location string
		want     string
	}{
		{filepath.Join(dir, "a.wav"), "a.wav"},
		{filepath.Join(dir, "sub", "b.wav"), filepath.Join("sub", "b.wav")},
		{filepath.Join(dir, "..", "c.wav"), filepath.Join(filepath.Dir(dir), "c.wav")},
		{filepath.Join(dir, "..hidden.wav"), "..hidden.wav"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toRow(dir, types.Recording{Location: tt.location}).File, tt.location)
	}
}
