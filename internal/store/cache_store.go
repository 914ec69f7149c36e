package store

import (
	"path/filepath"
	"sync"

	"chorus/internal/domain"
)

const (
	groupCacheFilename = "group_cache.json"
	processedFilename  = "processed.json"
)

// CacheFileStore persists reconciliation metadata: the conversation to
// group-id mapping and the set of processed inbox item ids. These are not
// secrets and are stored in the clear.
type CacheFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewCacheFileStore returns a CacheFileStore rooted at dir.
func NewCacheFileStore(dir string) *CacheFileStore {
	return &CacheFileStore{dir: dir}
}

// LoadGroupCache reads the conversation to group mapping.
func (s *CacheFileStore) LoadGroupCache() (map[domain.ConversationID]domain.GroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[domain.ConversationID]domain.GroupID)
	if err := readJSON(filepath.Join(s.dir, groupCacheFilename), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveGroupCache writes the conversation to group mapping.
func (s *CacheFileStore) SaveGroupCache(m map[domain.ConversationID]domain.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, groupCacheFilename), m, 0o600)
}

// LoadProcessed reads the processed inbox item id set.
func (s *CacheFileStore) LoadProcessed() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]bool)
	if err := readJSON(filepath.Join(s.dir, processedFilename), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveProcessed writes the processed inbox item id set.
func (s *CacheFileStore) SaveProcessed(m map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, processedFilename), m, 0o600)
}

// Compile-time assertion that CacheFileStore implements domain.CacheStore.
var _ domain.CacheStore = (*CacheFileStore)(nil)
