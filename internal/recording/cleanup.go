package recording

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// CleanupInterval is how often the cleanup runs.
	CleanupInterval = 1 * time.Hour
	// StalePartialAge is how long a partial capture may go unmodified before
	// it is treated as left over from a crash.
	StalePartialAge = 10 * time.Minute
)

// Cleanup removes stale partial captures and, when a retention is set,
// recordings older than it.
type Cleanup struct {
	store         *Store
	retentionDays int
	now           func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewCleanup creates a cleanup for store. A retention of 0 keeps
// recordings forever.
func NewCleanup(store *Store, retentionDays int) *Cleanup {
	return &Cleanup{
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Start begins the cleanup goroutine.
func (c *Cleanup) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	slog.Info("recording cleanup started", "interval", CleanupInterval, "retention_days", c.retentionDays)
}

// Stop stops the cleanup goroutine.
func (c *Cleanup) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("recording cleanup stopped")
}

func (c *Cleanup) run() {
	defer c.wg.Done()

	c.RunOnce()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs one cleanup pass and returns the number of files removed.
func (c *Cleanup) RunOnce() int {
	now := c.now()
	removed := c.removeStalePartials(now)

	if c.retentionDays > 0 {
		cutoff := now.AddDate(0, 0, -c.retentionDays)
		slog.Debug("running recording cleanup", "retention_days", c.retentionDays, "cutoff", cutoff.Format("2006-01-02"))
		for _, rec := range c.store.OlderThan(cutoff) {
			if err := c.store.Delete(rec); err != nil {
				slog.Error("failed to remove old recording", "location", rec.Location, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		slog.Info("recording cleanup completed", "deleted_files", removed)
	}
	return removed
}

// removeStalePartials deletes partial captures nobody has written to recently.
func (c *Cleanup) removeStalePartials(now time.Time) int {
	entries, err := os.ReadDir(c.store.Dir())
	if err != nil {
		slog.Error("failed to read recording directory", "error", err)
		return 0
	}

	var removed int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), PartialExtension) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < StalePartialAge {
			continue
		}
		path := filepath.Join(c.store.Dir(), e.Name())
		if err := os.Remove(path); err != nil {
			slog.Error("failed to remove stale partial capture", "path", path, "error", err)
			continue
		}
		removed++
		slog.Debug("removed stale partial capture", "path", path)
	}
	return removed
}
