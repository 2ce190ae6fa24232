// Package bleverepo implements the C3 repository backend for deployments
// that run the registry on top of a bleve-backed document store instead of
// a bare filesystem directory (§6 storage-backend selector,
// REGISTRY_GATEWAY_BACKEND=search-index). Every record is stored twice:
// once as the authoritative JSON blob in a stored, unindexed field, and
// once as indexed keyword fields so Get/List/lookups can be served directly
// by the index without a second store, mirroring the document mapping style
// of the teacher's search-cluster example.
package bleverepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/pkg/errors"

	"github.com/mcpgateway/registry/pkg/log"
	"github.com/mcpgateway/registry/pkg/registry"
	"github.com/mcpgateway/registry/pkg/repo"
)

// cacheTTL bounds how long a List()/Get() result may be served from the
// in-memory read cache before falling back to the index, trading a small
// staleness window for read latency under the hybrid discovery index's
// query load.
const cacheTTL = 2 * time.Second

type storedDoc struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	JSON    string `json:"json"`
}

// Store is a generic bleve-backed document store satisfying both
// repo.ServerRepository and repo.AgentRepository once instantiated.
type Store[T any] struct {
	index bleve.Index

	mu    sync.RWMutex
	locks map[string]*sync.Mutex

	cacheMu    sync.Mutex
	listCache  []T
	listAt     time.Time

	getPath    func(T) string
	getEnabled func(T) bool
	getVersion func(T) int64
	setVersion func(T, int64) T
}

// NewStore opens (or creates) a bleve index rooted at indexPath.
func NewStore[T any](indexPath string, getPath func(T) string, getEnabled func(T) bool, getVersion func(T) int64, setVersion func(T, int64) T) (*Store[T], error) {
	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = createIndex(indexPath)
		if err != nil {
			return nil, errors.Wrapf(err, "creating bleve repository index at %s", indexPath)
		}
		log.Infof("bleverepo: created new index at %s", indexPath)
	} else {
		log.Infof("bleverepo: opened existing index at %s", indexPath)
	}

	return &Store[T]{
		index:      idx,
		locks:      make(map[string]*sync.Mutex),
		getPath:    getPath,
		getEnabled: getEnabled,
		getVersion: getVersion,
		setVersion: setVersion,
	}, nil
}

func createIndex(indexPath string) (bleve.Index, error) {
	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	pathField.Index = true

	jsonField := bleve.NewTextFieldMapping()
	jsonField.Store = true
	jsonField.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("path", pathField)
	docMapping.AddFieldMappingsAt("json", jsonField)

	mapping := bleve.NewIndexMapping()
	mapping.AddDocumentMapping("record", docMapping)
	mapping.DefaultMapping = docMapping

	return bleve.New(indexPath, mapping)
}

// Close closes the underlying bleve index.
func (s *Store[T]) Close() error {
	return s.index.Close()
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

func (s *Store[T]) invalidateListCache() {
	s.cacheMu.Lock()
	s.listCache = nil
	s.listAt = time.Time{}
	s.cacheMu.Unlock()
}

// Get fetches a single record directly from the index by document ID, so
// reads are always immediate-refresh consistent with the last Put/Delete.
func (s *Store[T]) Get(_ context.Context, path string) (T, error) {
	var zero T
	raw, err := s.index.GetInternal([]byte(path))
	if err != nil {
		return zero, errors.Wrapf(err, "fetching record %s", path)
	}
	if raw == nil {
		return zero, repo.ErrNotFound
	}
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return zero, errors.Wrapf(err, "unmarshalling record %s", path)
	}
	return rec, nil
}

// List returns every record. Results are served from a short-TTL cache to
// absorb repeated discovery-index scans without re-running a full index
// query on every call; a Put/Delete invalidates the cache immediately so
// callers never observe a torn view older than their own most recent write.
func (s *Store[T]) List(_ context.Context) ([]T, error) {
	s.cacheMu.Lock()
	if s.listCache != nil && time.Since(s.listAt) < cacheTTL {
		cached := s.listCache
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	query := bleve.NewMatchAllQuery()
	req := bleve.NewSearchRequest(query)
	req.Size = 100000
	req.Fields = []string{"json"}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "listing records")
	}

	out := make([]T, 0, len(result.Hits))
	for _, hit := range result.Hits {
		raw, _ := hit.Fields["json"].(string)
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Warnf("bleverepo: skipping corrupt document %s: %v", hit.ID, err)
			continue
		}
		out = append(out, rec)
	}

	s.cacheMu.Lock()
	s.listCache = out
	s.listAt = time.Now()
	s.cacheMu.Unlock()
	return out, nil
}

// Put indexes rec under a per-path lock. RequireAbsent and IfVersion are
// both checked against the index's own current view, since there is no
// separate filesystem source of truth to race against: RequireAbsent
// fails if a document already exists at path, IfVersion fails unless the
// stored document's Revision matches exactly. On success rec.Revision is
// set to one past whatever was previously stored.
func (s *Store[T]) Put(ctx context.Context, rec T, opts ...repo.PutOption) error {
	path := s.getPath(rec)
	o := repo.ApplyOptions(opts)

	mu := s.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	existing, getErr := s.Get(ctx, path)
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

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshalling record")
	}

	doc := storedDoc{Path: path, Enabled: s.recordEnabled(rec), JSON: string(raw)}
	if err := s.index.Index(path, doc); err != nil {
		return errors.Wrapf(err, "indexing record %s", path)
	}
	if err := s.index.SetInternal([]byte(path), raw); err != nil {
		return errors.Wrapf(err, "storing internal blob for %s", path)
	}
	s.invalidateListCache()
	return nil
}

func (s *Store[T]) recordEnabled(rec T) bool {
	if s.getEnabled == nil {
		return true
	}
	return s.getEnabled(rec)
}

// Delete removes the record with the given path.
func (s *Store[T]) Delete(ctx context.Context, path string) error {
	if _, err := s.Get(ctx, path); err != nil {
		return err
	}
	mu := s.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	if err := s.index.Delete(path); err != nil {
		return errors.Wrapf(err, "deleting record %s", path)
	}
	if err := s.index.SetInternal([]byte(path), nil); err != nil {
		return errors.Wrapf(err, "clearing internal blob for %s", path)
	}
	s.invalidateListCache()
	return nil
}

// ServerStore is a Store[registry.ServerRecord] implementing repo.ServerRepository.
type ServerStore struct{ *Store[registry.ServerRecord] }

// NewServerStore opens the bleve backend for server records.
func NewServerStore(baseDir, namespace string) (*ServerStore, error) {
	s, err := NewStore(indexDir(baseDir, namespace, "servers"),
		func(r registry.ServerRecord) string { return r.Path },
		func(r registry.ServerRecord) bool { return r.Enabled },
		func(r registry.ServerRecord) int64 { return r.Revision },
		func(r registry.ServerRecord, v int64) registry.ServerRecord { r.Revision = v; return r })
	if err != nil {
		return nil, err
	}
	return &ServerStore{s}, nil
}

// Toggle flips the Enabled flag through the same Put path so the stored
// JSON blob and the indexed Enabled field never diverge.
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

// NewAgentStore opens the bleve backend for agent records.
func NewAgentStore(baseDir, namespace string) (*AgentStore, error) {
	s, err := NewStore(indexDir(baseDir, namespace, "agents"),
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

func indexDir(baseDir, namespace, kind string) string {
	if namespace == "" {
		namespace = "default"
	}
	return fmt.Sprintf("%s/%s/%s.bleve", baseDir, namespace, kind)
}
