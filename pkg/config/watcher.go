package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls a function whenever the configuration, a script or a policy
// changes. Bursts of events collapse into one call.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     []string

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches paths. Directories are watched recursively. A file that does
// not exist yet is picked up when it is created.
func NewWatcher(paths []string, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		logger:   logger.With().Str("component", "watcher").Logger(),
		debounce: DefaultDebounce,
		watcher:  fsw,
		files:    make(map[string]bool),
	}

	for _, path := range paths {
		path = filepath.Clean(path)
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if err := w.watchDirectory(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
				continue
			}
			w.dirs = append(w.dirs, path)
			continue
		}
		if err != nil && !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		// Editors replace files on save; watching the parent keeps the watch alive.
		if err := fsw.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			continue
		}
		w.files[path] = true
	}

	return w, nil
}

// relevant reports whether an event path is one of the watched files or lies
// under a watched directory.
func (w *Watcher) relevant(path string) bool {
	path = filepath.Clean(path)
	if !isWatchedFile(path) {
		return false
	}
	if w.files[path] {
		return true
	}
	for _, dir := range w.dirs {
		if strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// PathsFor returns what a watch of cfg should cover. Without a configuration file
// every candidate name is watched so creating one triggers a run.
func PathsFor(cfg *Config) ([]string, error) {
	var paths []string
	if cfg.Source != "" {
		paths = append(paths, cfg.Source)
	} else {
		for _, name := range FileNames {
			paths = append(paths, filepath.Join(cfg.Dir, name))
		}
	}
	scripts, err := cfg.ScriptFiles()
	if err != nil {
		return nil, err
	}
	paths = append(paths, scripts...)
	paths = append(paths, cfg.PolicyPaths()...)
	return paths, nil
}

// isWatchedFile ignores editor swap files and the engine's own state directory.
func isWatchedFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".#") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".sous" || part == "node_modules" || part == ".git" {
			return false
		}
	}
	return true
}

// watchDirectory adds a directory and its subdirectories to the watcher.
func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !isWatchedFile(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Run blocks until ctx is done, calling onChange after each settled burst. onChange
// never runs concurrently with itself.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context)) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	var running sync.Mutex
	fire := func() {
		running.Lock()
		defer running.Unlock()
		if ctx.Err() != nil {
			return
		}
		onChange(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Watched file changed")

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDirectory(event.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch directory")
					}
				}
			}

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.debounce, fire)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
