package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupRemovesStalePartials(t *testing.T) {
	s := openStore(t, t.TempDir())
	stale := filepath.Join(s.Dir(), "old"+PartialExtension)
	fresh := filepath.Join(s.Dir(), "new"+PartialExtension)
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	c := NewCleanup(s, 0)
	assert.Equal(t, 1, c.RunOnce())
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestCleanupAppliesRetention(t *testing.T) {
	s := openStore(t, t.TempDir())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := addClip(t, s, "old", now.AddDate(0, 0, -40))
	recent := addClip(t, s, "recent", now.AddDate(0, 0, -2))

	c := NewCleanup(s, 30)
	c.now = func() time.Time { return now }

	assert.Equal(t, 1, c.RunOnce())
	assert.NoFileExists(t, old.Location)
	assert.FileExists(t, recent.Location)
	items := s.Enumerate()
	require.Len(t, items, 1)
	assert.Equal(t, recent.Location, items[0].Location)
}

func TestCleanupKeepsForeverWithoutRetention(t *testing.T) {
	s := openStore(t, t.TempDir())
	addClip(t, s, "ancient", time.Unix(0, 0))

	c := NewCleanup(s, 0)
	assert.Zero(t, c.RunOnce())
	assert.Len(t, s.Enumerate(), 1)
}

func TestCleanupStartStop(t *testing.T) {
	s := openStore(t, t.TempDir())
	c := NewCleanup(s, 0)
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}
