package track

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/race/slotcar/log"
)

// Catalog indexes the track descriptions found in a directory by name.
// Tracks are sampled once when loaded; the catalog hands out the same
// immutable *Track to every session.
type Catalog struct {
	mu     sync.RWMutex
	dir    string
	mpp    float64
	tracks map[string]*Track
	log    *zap.Logger
}

// NewCatalog loads every track file in dir.
func NewCatalog(dir string, metersPerPixel float64) (*Catalog, error) {
	c := &Catalog{
		dir:    dir,
		mpp:    metersPerPixel,
		tracks: make(map[string]*Track),
		log:    log.Named("track.catalog"),
	}
	if dir == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rescans the directory. Files that fail to parse are logged and
// skipped so one broken file does not take the other tracks down.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrap(err, "reading tracks directory")
	}
	tracks := make(map[string]*Track)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if _, err := FormatFromPath(path); err != nil {
			continue
		}
		t, err := Load(path, c.mpp)
		if err != nil {
			c.log.Warn("skipping track file", zap.String("file", path), zap.Error(err))
			continue
		}
		tracks[t.Data.Name] = t
	}

	c.mu.Lock()
	c.tracks = tracks
	c.mu.Unlock()

	c.log.Info("tracks loaded", zap.String("dir", c.dir), zap.Strings("names", c.Names()))
	return nil
}

// Add registers an already built track, replacing one with the same name.
func (c *Catalog) Add(t *Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[t.Data.Name] = t
}

// Get returns the track with the given name.
func (c *Catalog) Get(name string) (*Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[name]
	return t, ok
}

// Names returns the sorted track names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := lo.Keys(c.tracks)
	c.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len returns the number of loaded tracks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Watch reloads the catalog whenever a file in the directory is written,
// created, renamed or removed. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return errors.Wrap(err, "watching tracks directory")
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("context done, stopping track watcher")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			c.log.Debug("change detected", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			if err := c.Reload(); err != nil {
				c.log.Error("reloading tracks", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Error("watcher error", zap.Error(err))
		}
	}
}
