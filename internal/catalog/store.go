package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Load reads and decodes a catalog JSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("catalog %q has no categories", path)
	}
	return &c, nil
}

// Store holds the current catalog and hot-reloads it when the backing
// file changes. Readers get a consistent snapshot; a reload swaps the
// whole tree and notifies subscribers so dependent state can reset.
type Store struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Catalog
	onSwap  []func(*Catalog)
}

// NewStore loads the catalog at path and returns a store serving it.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:    path,
		logger:  logger.With().Str("component", "catalog").Logger(),
		current: c,
	}, nil
}

// Current returns the catalog snapshot in effect right now.
func (s *Store) Current() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnSwap registers fn to run after every successful reload, with the
// new tree. Registration is not safe concurrently with Watch.
func (s *Store) OnSwap(fn func(*Catalog)) {
	s.mu.Lock()
	s.onSwap = append(s.onSwap, fn)
	s.mu.Unlock()
}

// Reload re-reads the backing file and swaps the tree. A parse failure
// leaves the previous catalog in place.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = c
	fns := s.onSwap
	s.mu.Unlock()

	s.logger.Info().Int("categories", len(c.Categories)).Msg("catalog reloaded")
	for _, fn := range fns {
		fn(c)
	}
	return nil
}

// Watch blocks watching the catalog file's directory and reloads on
// writes to it, until done is closed. Failed reloads are logged and
// skipped; the watcher keeps running.
func (s *Store) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and atomic
	// renames replace the inode, which drops a file-level watch.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}

	base := filepath.Base(s.path)
	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if err := s.Reload(); err != nil {
					s.logger.Warn().Err(err).Msg("catalog reload failed, keeping previous tree")
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
