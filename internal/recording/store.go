// Package recording owns recorded clips: the durable store, the capture
// session that produces them and the housekeeping around both.
package recording

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-cliprec/internal/event"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
)

// PartialExtension marks a capture that has not been finalized.
const PartialExtension = wavfile.Extension + ".part"

// NameLayout formats the default display name of a new recording.
const NameLayout = "Recording 2006-01-02 15.04.05"

// Store is the durable list of recordings. Enumeration returns copies and
// never observes a half-applied mutation.
type Store struct {
	dir     string
	catalog *catalog
	events  *event.Bus

	mu       sync.RWMutex
	items    []types.Recording // newest first
	version  uint64
	onDelete []func(types.Recording)
}

// Open opens the store rooted at dir, creating it if needed, and reconciles
// the catalog with the files present.
func Open(ctx context.Context, dir string) (*Store, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, util.WrapError("resolve storage path", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}

	cat, err := openCatalog(filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:     dir,
		catalog: cat,
		events:  event.NewBus("store"),
	}
	if err := s.rescan(ctx); err != nil {
		util.SafeClose(cat, "catalog")
		return nil, err
	}
	return s, nil
}

// rescan loads the catalog, drops rows whose file is gone and imports WAV
// files that have no row.
func (s *Store) rescan(ctx context.Context) error {
	rows, err := s.catalog.all(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(rows))
	items := make([]types.Recording, 0, len(rows))
	for _, r := range rows {
		path := r.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			slog.Warn("dropping catalog entry without file", "file", r.File)
			if err := s.catalog.remove(ctx, r.File); err != nil {
				return err
			}
			continue
		}
		known[r.File] = true
		items = append(items, types.Recording{
			Location:  path,
			Name:      r.Name,
			CreatedAt: r.CreatedAt,
			Duration:  r.Duration,
		})
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return util.WrapError("read storage directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != wavfile.Extension || known[e.Name()] {
			continue
		}
		rec, err := s.importFile(e)
		if err != nil {
			slog.Warn("skipping unreadable recording", "file", e.Name(), "error", err)
			continue
		}
		if _, err := s.catalog.insert(ctx, toRow(s.dir, rec)); err != nil {
			return err
		}
		slog.Info("imported recording", "file", e.Name(), "duration", rec.Duration)
		items = append(items, rec)
	}

	sortNewestFirst(items)

	s.mu.Lock()
	s.items = items
	s.version++
	s.mu.Unlock()
	return nil
}

func (s *Store) importFile(e fs.DirEntry) (types.Recording, error) {
	info, err := e.Info()
	if err != nil {
		return types.Recording{}, err
	}
	path := filepath.Join(s.dir, e.Name())
	format, frames, err := wavfile.Probe(path)
	if err != nil {
		return types.Recording{}, err
	}
	return types.Recording{
		Location:  path,
		Name:      strings.TrimSuffix(e.Name(), wavfile.Extension),
		CreatedAt: info.ModTime(),
		Duration:  format.FramesToSeconds(frames),
	}, nil
}

// toRow keys recordings inside dir by their relative path and anything
// else by its absolute location.
func toRow(dir string, rec types.Recording) row {
	file := rec.Location
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	if rel, err := filepath.Rel(dir, file); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		file = rel
	}
	return row{File: file, Name: rec.Name, CreatedAt: rec.CreatedAt, Duration: rec.Duration}
}

func sortNewestFirst(items []types.Recording) {
	slices.SortStableFunc(items, func(a, b types.Recording) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Location, b.Location)
	})
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Events returns the bus on which deletions are published.
func (s *Store) Events() *event.Bus {
	return s.events
}

// NewTake allocates locations for a new capture: the partial file written
// while recording and the final location it is renamed to.
func (s *Store) NewTake() (partial, final string) {
	final = filepath.Join(s.dir, uuid.NewString()+wavfile.Extension)
	return final + ".part", final
}

// Enumerate returns the recordings newest first.
func (s *Store) Enumerate() []types.Recording {
	items, _ := s.Snapshot()
	return items
}

// Snapshot returns the recordings newest first together with the version of
// the list they were copied from.
func (s *Store) Snapshot() ([]types.Recording, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items), s.version
}

// Get looks up a recording by location.
func (s *Store) Get(location string) (types.Recording, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(location); i >= 0 {
		return s.items[i], true
	}
	return types.Recording{}, false
}

func (s *Store) indexLocked(location string) int {
	return slices.IndexFunc(s.items, func(r types.Recording) bool {
		return r.Location == location
	})
}

// Add records rec. Adding a location that is already present is a no-op.
func (s *Store) Add(rec types.Recording) error {
	if rec.IsZero() {
		return fmt.Errorf("%w: recording has no location", types.ErrInvalidState)
	}
	if rec.Duration < 0 {
		return fmt.Errorf("%w: negative duration", types.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(rec.Location) >= 0 {
		return nil
	}
	if _, err := s.catalog.insert(context.Background(), toRow(s.dir, rec)); err != nil {
		return err
	}

	s.items = append(s.items, rec)
	sortNewestFirst(s.items)
	s.version++
	slog.Info("recording added", "location", rec.Location, "name", rec.Name, "duration", rec.Duration)
	return nil
}

// Delete removes rec and its backing file. Callers must stop any session
// using rec first.
func (s *Store) Delete(rec types.Recording) error {
	s.mu.Lock()
	i := s.indexLocked(rec.Location)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: recording %s", types.ErrNotFound, rec.Location)
	}
	rec = s.items[i]

	// Catalog first, so a failure leaves no entry pointing at a removed file.
	ctx := context.Background()
	r := toRow(s.dir, rec)
	if err := s.catalog.remove(ctx, r.File); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := os.Remove(rec.Location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if _, rerr := s.catalog.insert(ctx, r); rerr != nil {
			slog.Error("failed to restore catalog entry", "file", r.File, "error", rerr)
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}

	s.items = slices.Delete(s.items, i, i+1)
	s.version++
	hooks := slices.Clone(s.onDelete)
	s.mu.Unlock()

	slog.Info("recording deleted", "location", rec.Location)
	for _, fn := range hooks {
		fn(rec)
	}
	s.events.Publish(types.Event{Kind: types.EventDeleted, Recording: &rec})
	return nil
}

// Rename changes the display name of the recording at location.
func (s *Store) Rename(location, name string) (types.Recording, error) {
	name = strings.TrimSpace(name)
	if err := util.FirstInvalid(
		util.ValidateRequired("name", name),
		util.ValidateMaxLength("name", name, 200),
	); err != nil {
		return types.Recording{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(location)
	if i < 0 {
		return types.Recording{}, fmt.Errorf("%w: recording %s", types.ErrNotFound, location)
	}
	if err := s.catalog.rename(context.Background(), toRow(s.dir, s.items[i]).File, name); err != nil {
		return types.Recording{}, err
	}

	// Recordings are values; replace rather than mutate the shared one.
	rec := s.items[i]
	rec.Name = name
	s.items[i] = rec
	s.version++
	return rec, nil
}

// OnDelete registers fn to run after a recording is deleted.
func (s *Store) OnDelete(fn func(types.Recording)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// OlderThan returns the recordings created before cutoff.
func (s *Store) OlderThan(cutoff time.Time) []types.Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Recording
	for _, r := range s.items {
		if r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Close closes the catalog and ends event subscriptions.
func (s *Store) Close() error {
	s.events.Close()
	return s.catalog.Close()
}
