// Package cache provides the JSON caches of the loader: a Store interface
// with memory, file (afero) and redis backends, and a typed TTL cache on top.
// Caches are advisory; a miss only costs a refetch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/jsonutil"
)

// Record is one cached value with the moment it was stored.
type Record struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store persists records grouped by namespace.
type Store interface {
	Load(ctx context.Context, namespace, key string) (Record, bool, error)
	Save(ctx context.Context, namespace, key string, rec Record, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, namespace, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[namespace][key]
	return rec, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, namespace, key string, rec Record, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.data[namespace] = ns
	}
	ns[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[namespace], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return nil
}

// FileStore keeps one JSON document per namespace under dir, e.g.
// <dir>/search_cache.json. Every operation reads the document and
// rewrites it atomically under a single mutex.
type FileStore struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

func (s *FileStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

func (s *FileStore) read(namespace string) (map[string]Record, error) {
	doc := make(map[string]Record)
	exists, err := afero.Exists(s.fs, s.path(namespace))
	if err != nil || !exists {
		return doc, err
	}
	if err := jsonutil.ReadFile(s.fs, s.path(namespace), &doc); err != nil {
		// A corrupt cache file is discarded rather than failing every lookup.
		return make(map[string]Record), nil
	}
	return doc, nil
}

func (s *FileStore) Load(_ context.Context, namespace, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return Record{}, false, fmt.Errorf("reading cache %s: %w", namespace, err)
	}
	rec, ok := doc[key]
	return rec, ok, nil
}

// Save stores rec and drops the records of the namespace that are older
// than ttl plus the stale retention, measured from rec.StoredAt.
func (s *FileStore) Save(_ context.Context, namespace, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return fmt.Errorf("reading cache %s: %w", namespace, err)
	}
	if ttl > 0 {
		cutoff := rec.StoredAt.Add(-(ttl + staleRetention))
		for k, old := range doc {
			if old.StoredAt.Before(cutoff) {
				delete(doc, k)
			}
		}
	}
	doc[key] = rec
	return jsonutil.WriteFile(s.fs, s.path(namespace), doc)
}

func (s *FileStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return fmt.Errorf("reading cache %s: %w", namespace, err)
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return jsonutil.WriteFile(s.fs, s.path(namespace), doc)
}

func (s *FileStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(namespace))
	if err != nil {
		if exists, _ := afero.Exists(s.fs, s.path(namespace)); !exists {
			return nil
		}
		return fmt.Errorf("clearing cache %s: %w", namespace, err)
	}
	return nil
}
