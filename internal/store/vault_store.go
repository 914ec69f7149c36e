package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chorus/internal/domain"
)

const vaultFilename = "vault.json"

// VaultFileStore persists the opaque vault record to disk. Blobs inside
// the record are already sealed; the file itself carries no plaintext
// secrets.
type VaultFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewVaultFileStore returns a VaultFileStore rooted at dir.
func NewVaultFileStore(dir string) *VaultFileStore {
	return &VaultFileStore{dir: dir}
}

// LoadVault reads the vault record. A missing file reports ok=false.
func (s *VaultFileStore) LoadVault() (domain.VaultRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec domain.VaultRecord
	if err := readJSON(filepath.Join(s.dir, vaultFilename), &rec); err != nil {
		return domain.VaultRecord{}, false, err
	}
	if rec.Salt == nil {
		return domain.VaultRecord{}, false, nil
	}
	if rec.SealedSessions == nil {
		rec.SealedSessions = make(map[string][]byte)
	}
	if rec.SessionHashes == nil {
		rec.SessionHashes = make(map[string]string)
	}
	if rec.SealedGroups == nil {
		rec.SealedGroups = make(map[string][]byte)
	}
	if rec.GroupHashes == nil {
		rec.GroupHashes = make(map[string]string)
	}
	return rec, true, nil
}

// SaveVault writes the vault record atomically.
func (s *VaultFileStore) SaveVault(rec domain.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, vaultFilename), rec, 0o600)
}

// Export returns the vault record as one opaque blob, suitable for
// server-side sync. Consumers never interpret the contents.
func (s *VaultFileStore) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.ReadFile(filepath.Join(s.dir, vaultFilename))
}

// Import replaces the local vault with an exported blob. The blob must
// parse as a vault record; it is written atomically.
func (s *VaultFileStore) Import(blob []byte) error {
	var rec domain.VaultRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return fmt.Errorf("%w: not a vault record", domain.ErrFormat)
	}
	if rec.Salt == nil {
		return fmt.Errorf("%w: vault record without salt", domain.ErrFormat)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, vaultFilename), rec, 0o600)
}

// Compile-time assertion that VaultFileStore implements domain.VaultStore.
var _ domain.VaultStore = (*VaultFileStore)(nil)
