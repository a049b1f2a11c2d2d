// Package registry discovers grammar documents on disk and hands out
// compiled grammars by scope name.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/prism/internal/cachemanager"
	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/pubsub"
	"github.com/zjrosen/prism/internal/textmate"
)

// ErrUnknownScope reports a scope name no scanned grammar declares.
type ErrUnknownScope struct {
	Scope string
}

func (e *ErrUnknownScope) Error() string {
	return fmt.Sprintf("registry: no grammar for scope %q", e.Scope)
}

// Entry is one discovered grammar document.
type Entry struct {
	Scope     string
	Path      string
	FileTypes []string
}

// Registry indexes grammar documents by scope name and compiles them
// lazily through a read-through cache, so a grammar is compiled at most
// once per reload cycle no matter how many embeddings reach it. It
// implements textmate.GrammarSource, which is what lets grammars include
// each other by scope name.
type Registry struct {
	mu      sync.RWMutex
	dirs    []string
	entries map[string]Entry

	compiled *cachemanager.InMemoryCacheManager[string, *textmate.Grammar]
	loader   *cachemanager.ReadThroughCache[string, *textmate.Grammar, string]
	broker   *pubsub.Broker[string]
}

// New builds a registry over the given grammar directories and scans them
// once. Missing directories are skipped, not fatal.
func New(dirs ...string) *Registry {
	r := &Registry{
		dirs:     dirs,
		entries:  make(map[string]Entry),
		compiled: cachemanager.NewInMemoryCacheManager[string, *textmate.Grammar]("grammar", cachemanager.NoExpiration, 0),
		broker:   pubsub.NewBroker[string](),
	}
	r.loader = cachemanager.NewReadThroughCache[string, *textmate.Grammar, string](r.compiled, r.compile, false)
	r.scan()
	return r
}

// header is the slice of a grammar document the scan needs before any
// compilation happens.
type header struct {
	ScopeName string   `yaml:"scopeName"`
	FileTypes []string `yaml:"fileTypes"`
}

func (r *Registry) scan() {
	entries := make(map[string]Entry)
	for _, dir := range r.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isGrammarFile(path) {
				return nil
			}

			data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured grammar dirs
			if err != nil {
				log.ErrorErr(log.CatRegistry, "skipping unreadable grammar", err, "path", path)
				return nil
			}
			var h header
			if err := yaml.Unmarshal(data, &h); err != nil || h.ScopeName == "" {
				log.Warn(log.CatRegistry, "skipping document without scopeName", "path", path)
				return nil
			}

			if prev, ok := entries[h.ScopeName]; ok {
				log.Warn(log.CatRegistry, "duplicate scope, keeping first",
					"scope", h.ScopeName, "kept", prev.Path, "ignored", path)
				return nil
			}
			entries[h.ScopeName] = Entry{Scope: h.ScopeName, Path: path, FileTypes: h.FileTypes}
			return nil
		})
		if err != nil {
			log.ErrorErr(log.CatRegistry, "grammar directory walk failed", err, "dir", dir)
		}
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	log.Info(log.CatRegistry, "grammar scan complete", "dirs", len(r.dirs), "grammars", len(entries))
}

func isGrammarFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".tmlanguage":
		return true
	default:
		return false
	}
}

func (r *Registry) compile(ctx context.Context, path string) (*textmate.Grammar, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the scanned index
	if err != nil {
		return nil, fmt.Errorf("reading grammar %s: %w", path, err)
	}
	g, err := textmate.Compile(data, r)
	if err != nil {
		return nil, fmt.Errorf("compiling grammar %s: %w", path, err)
	}
	return g, nil
}

// Grammar returns the compiled grammar for a scope, compiling on first use.
func (r *Registry) Grammar(ctx context.Context, scope string) (*textmate.Grammar, error) {
	r.mu.RLock()
	entry, ok := r.entries[scope]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownScope{Scope: scope}
	}
	return r.loader.Get(ctx, scope, entry.Path, cachemanager.NoExpiration)
}

// Lookup implements textmate.GrammarSource. A scope that is unknown or
// fails to compile reports absent; the tokenizer degrades that reference
// to match-nothing.
func (r *Registry) Lookup(scopeName string) (*textmate.Grammar, bool) {
	g, err := r.Grammar(context.Background(), scopeName)
	if err != nil {
		log.Debug(log.CatRegistry, "embedded grammar unavailable", "scope", scopeName, "error", err)
		return nil, false
	}
	return g, true
}

// Entries returns the discovered grammars sorted by scope name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

// ScopeForFile maps a file name to a grammar scope via the documents'
// declared fileTypes, matching the extension or the exact base name.
func (r *Registry) ScopeForFile(name string) (string, bool) {
	base := filepath.Base(name)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	// Sorted iteration keeps the pick stable when two grammars claim the
	// same file type.
	for _, e := range r.Entries() {
		for _, ft := range e.FileTypes {
			if ft == ext || ft == base {
				return e.Scope, true
			}
		}
	}
	return "", false
}

// Reload rescans the directories, drops every compiled grammar and
// notifies subscribers. The watcher calls this when a grammar file
// changes on disk.
func (r *Registry) Reload() {
	r.scan()
	_ = r.compiled.Flush(context.Background())
	r.broker.Publish(pubsub.ReloadedEvent, "grammars")
	log.Info(log.CatRegistry, "grammars reloaded")
}

// Broker exposes the reload event stream for UI subscribers.
func (r *Registry) Broker() *pubsub.Broker[string] {
	return r.broker
}

// Close shuts down the event broker.
func (r *Registry) Close() {
	r.broker.Close()
}
