package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// metaIndex is the on-disk metadata index, keyed by native public key. It is
// the piece of a key's identity that outlives the key material: deleting a
// key from the secure store leaves its entry here, which is what makes the
// key retired rather than gone.
type metaIndex struct {
	Version int                  `json:"version"`
	Entries map[string]metaEntry `json:"entries"`
}

// metaEntry holds vault-owned metadata for one key identity.
type metaEntry struct {
	Label     string         `json:"label,omitempty"`
	Tag       string         `json:"tag,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Retired   bool           `json:"retired,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	RetiredAt *time.Time     `json:"retired_at,omitempty"`
}

func loadIndex(path string) (*metaIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &metaIndex{Version: 1, Entries: make(map[string]metaEntry)}, nil
		}
		return nil, fmt.Errorf("failed to read vault index: %w", err)
	}

	idx := &metaIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("failed to parse vault index: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]metaEntry)
	}
	return idx, nil
}

func (idx *metaIndex) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal vault index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write vault index: %w", err)
	}
	return nil
}
