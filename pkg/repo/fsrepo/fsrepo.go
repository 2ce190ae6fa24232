// Package fsrepo implements the filesystem repository backend: one JSON
// file per record, atomic write-then-rename, a per-path advisory lock file,
// and an in-memory read cache invalidated by watching the directory for
// renames — mirroring the write pattern the teacher uses for its sqlite
// migration lock (pkg/db) and for config file rewrites.
package fsrepo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

// Store is a generic one-file-per-record filesystem backend satisfying both
// repo.ServerRepository and repo.AgentRepository once instantiated.
type Store[T any] struct {
	dir       string // <baseDir>/<namespace>/<kind>
	stateFile string // <baseDir>/<namespace>/<kind>_state.json

	mu    sync.RWMutex // protects cache and locks map
	cache map[string]T
	locks map[string]*sync.Mutex

	getPath    func(T) string
	getEnabled func(T) bool
	getVersion func(T) int64
	setVersion func(T, int64) T
}

// NewStore creates (or opens) a filesystem store rooted at
// <baseDir>/<namespace>/<kind>, scanning existing records into the cache.
func NewStore[T any](baseDir, namespace, kind string, getPath func(T) string, getEnabled func(T) bool, getVersion func(T) int64, setVersion func(T, int64) T) (*Store[T], error) {
	if namespace == "" {
		namespace = "default"
	}
	dir := filepath.Join(baseDir, namespace, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating repository directory %s", dir)
	}

	s := &Store[T]{
		dir:        dir,
		stateFile:  filepath.Join(baseDir, namespace, kind+"_state.json"),
		cache:      make(map[string]T),
		locks:      make(map[string]*sync.Mutex),
		getPath:    getPath,
		getEnabled: getEnabled,
		getVersion: getVersion,
		setVersion: setVersion,
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// writeState persists the path->enabled side-file (§6 persisted state
// layout). It is best-effort: a failure here never blocks the record write
// that triggered it, since the per-record JSON file remains authoritative.
func (s *Store[T]) writeState() {
	if s.getEnabled == nil {
		return
	}
	s.mu.RLock()
	state := make(map[string]bool, len(s.cache))
	for path, rec := range s.cache {
		state[path] = s.getEnabled(rec)
	}
	s.mu.RUnlock()

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Warnf("fsrepo: marshalling state file: %v", err)
		return
	}
	tmp := s.stateFile + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		log.Warnf("fsrepo: writing state file: %v", err)
		return
	}
	if err := os.Rename(tmp, s.stateFile); err != nil {
		log.Warnf("fsrepo: renaming state file: %v", err)
	}
}

func (s *Store[T]) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, "scanning repository directory %s", s.dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Warnf("fsrepo: skipping unreadable file %s: %v", e.Name(), err)
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warnf("fsrepo: skipping corrupt record %s: %v", e.Name(), err)
			continue
		}
		s.cache[s.getPath(rec)] = rec
	}
	return nil
}

func (s *Store[T]) filename(path string) string {
	return filepath.Join(s.dir, SafeFilename(path)+".json")
}

func (s *Store[T]) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[path]
	if !ok {
		m = &sync.Mutex{}
		s.locks[path] = m
	}
	return m
}

// Get returns the cached record for path.
func (s *Store[T]) Get(_ context.Context, path string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cache[path]
	if !ok {
		var zero T
		return zero, repo.ErrNotFound
	}
	return rec, nil
}

// List returns every cached record (order unspecified, per spec §8 S3).
func (s *Store[T]) List(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.cache))
	for _, rec := range s.cache {
		out = append(out, rec)
	}
	return out, nil
}

// Put writes rec atomically (temp file + rename) under a per-path lock,
// guarded cross-process by a flock sibling file. RequireAbsent and
// IfVersion are both checked against the currently cached record before
// the write: RequireAbsent fails if a record already exists at path,
// IfVersion fails unless the stored record's Revision matches exactly.
// On success rec.Revision is set to one past whatever was previously
// stored (§4.3's optional if-version precondition).
func (s *Store[T]) Put(_ context.Context, rec T, opts ...repo.PutOption) error {
	path := s.getPath(rec)
	o := repo.ApplyOptions(opts)

	mu := s.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	lockFile := flock.New(s.filename(path) + ".lock")
	if err := lockFile.Lock(); err != nil {
		return errors.Wrapf(err, "locking record %s", path)
	}
	defer func() { _ = lockFile.Unlock() }()

	existing, getErr := s.Get(context.Background(), path)
	exists := getErr == nil
	if o.RequireAbsent && exists {
		return repo.ErrConflict
	}
	var existingVersion int64
	if exists {
		existingVersion = s.getVersion(existing)
	}
	if o.IfVersion != 0 && o.IfVersion != existingVersion {
		return repo.ErrConflict
	}
	rec = s.setVersion(rec, existingVersion+1)

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling record")
	}

	tmp := s.filename(path) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrapf(err, "writing temp record file for %s", path)
	}
	if err := os.Rename(tmp, s.filename(path)); err != nil {
		return errors.Wrapf(err, "renaming record file for %s", path)
	}

	s.mu.Lock()
	s.cache[path] = rec
	s.mu.Unlock()
	s.writeState()
	return nil
}

// Delete removes the record file for path.
func (s *Store[T]) Delete(_ context.Context, path string) error {
	mu := s.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	_, exists := s.cache[path]
	s.mu.RUnlock()
	if !exists {
		return repo.ErrNotFound
	}

	if err := os.Remove(s.filename(path)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting record file for %s", path)
	}

	s.mu.Lock()
	delete(s.cache, path)
	s.mu.Unlock()
	s.writeState()
	return nil
}

// WatchForExternalChanges invalidates the cache entry for any file renamed
// into the store directory by another process, per §4.3's "per-process
// in-memory cache invalidated on writer rename".
func (s *Store[T]) WatchForExternalChanges() (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsrepo watcher")
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watching %s", s.dir)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Rename != 0 || ev.Op&fsnotify.Write != 0 {
					if filepath.Ext(ev.Name) == ".json" {
						if err := s.reloadOne(ev.Name); err != nil {
							log.Warnf("fsrepo: reload of %s failed: %v", ev.Name, err)
						}
					}
				}
			case <-w.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return w.Close()
	}, nil
}

func (s *Store[T]) reloadOne(file string) error {
	raw, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[s.getPath(rec)] = rec
	s.mu.Unlock()
	return nil
}

// SafeFilename converts a registry path into a URL-safe filename component.
func SafeFilename(path string) string {
	b := make([]rune, 0, len(path))
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b = append(b, r)
		default:
			b = append(b, '_')
		}
	}
	return string(b)
}

// ServerStore is a Store[registry.ServerRecord] implementing repo.ServerRepository.
type ServerStore struct{ *Store[registry.ServerRecord] }

// NewServerStore opens the filesystem backend for server records.
func NewServerStore(baseDir, namespace string) (*ServerStore, error) {
	s, err := NewStore(baseDir, namespace, "servers",
		func(r registry.ServerRecord) string { return r.Path },
		func(r registry.ServerRecord) bool { return r.Enabled },
		func(r registry.ServerRecord) int64 { return r.Revision },
		func(r registry.ServerRecord, v int64) registry.ServerRecord { r.Revision = v; return r })
	if err != nil {
		return nil, err
	}
	return &ServerStore{s}, nil
}

// Toggle flips the Enabled flag through the same atomic write path as Put,
// so readers never observe a record with a stale enabled flag (§3 invariant 2).
func (s *ServerStore) Toggle(ctx context.Context, path string, enabled bool) error {
	rec, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	rec.Enabled = enabled
	return s.Put(ctx, rec)
}

// AgentStore is a Store[registry.AgentRecord] implementing repo.AgentRepository.
type AgentStore struct{ *Store[registry.AgentRecord] }

// NewAgentStore opens the filesystem backend for agent records.
func NewAgentStore(baseDir, namespace string) (*AgentStore, error) {
	s, err := NewStore(baseDir, namespace, "agents",
		func(r registry.AgentRecord) string { return r.Path },
		func(r registry.AgentRecord) bool { return r.Enabled },
		func(r registry.AgentRecord) int64 { return r.Revision },
		func(r registry.AgentRecord, v int64) registry.AgentRecord { r.Revision = v; return r })
	if err != nil {
		return nil, err
	}
	return &AgentStore{s}, nil
}

func (s *AgentStore) Toggle(ctx context.Context, path string, enabled bool) error {
	rec, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	rec.Enabled = enabled
	return s.Put(ctx, rec)
}
