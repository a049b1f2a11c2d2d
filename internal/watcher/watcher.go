// Package watcher provides debounced file system watching for grammar
// directories and the theme file.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/prism/internal/log"
)

// Watcher monitors grammar and theme files and coalesces bursts of
// events into single change notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	files     map[string]bool
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// Paths are directories or individual files to watch.
	Paths       []string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(paths ...string) Config {
	return Config{
		Paths:       paths,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a watcher over the configured paths.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		paths:     cfg.Paths,
		files:     make(map[string]bool),
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Returns a channel that receives a signal after
// the watched files settle following a change. Missing paths are skipped.
func (w *Watcher) Start() (<-chan struct{}, error) {
	added := 0
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			log.Warn(log.CatWatcher, "skipping missing path", "path", path)
			continue
		}

		dir := path
		if !info.IsDir() {
			// fsnotify tracks directories; remember the file so only its
			// events count.
			w.files[filepath.Clean(path)] = true
			dir = filepath.Dir(path)
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		added++
	}
	log.Debug(log.CatWatcher, "watching", "paths", added, "debounce", w.debounce)

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send, drop if a notification is already queued
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether the event should trigger a reload.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	name := filepath.Clean(event.Name)
	if w.files[name] {
		return true
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".tmlanguage":
		return true
	default:
		return false
	}
}
