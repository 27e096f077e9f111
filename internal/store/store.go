// Package store provides crash-safe checkpoint persistence using JSON
// files.
//
// Each checkpoint is stored as a single file: checkpoint_<tag>.json.
// Writes use atomic file replacement (write to .tmp, then rename) to
// prevent corruption from partial writes or crashes mid-save. cmd/gridsim
// calls Save after every slot close, with only the closed slot's time set
// in the checkpoint; nothing calls Load, so a run does not resume from a
// checkpoint. Grounded directly on the teacher's original
// position-file store (same atomic-write pattern, generalized from one
// file per market to one checkpoint file per tag).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/pkg/orders"
)

// Checkpoint is the full persisted simulation state at one instant.
type Checkpoint struct {
	Slot     time.Time                 `json:"slot"`
	Markets  map[string]MarketSnapshot `json:"markets"`
	Bills    map[string]decimal.Decimal `json:"bills"`
	Trades   []orders.Trade            `json:"trades"`
	RNGState [2]uint64                 `json:"rng_state"`
}

// MarketSnapshot is the persisted state of one market at checkpoint time.
type MarketSnapshot struct {
	Offers []orders.Offer `json:"offers"`
	Bids   []orders.Bid   `json:"bids"`
	Trades []orders.Trade `json:"trades"`
}

// Store persists checkpoints to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file
// corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(tag string) string {
	return filepath.Join(s.dir, "checkpoint_"+tag+".json")
}

// Save atomically persists a checkpoint under the given tag (typically the
// slot's RFC3339 timestamp). It writes to a .tmp file first, then renames
// over the target so the file is never left in a partial state.
func (s *Store) Save(tag string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.path(tag)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a checkpoint from disk. Returns nil, nil if no checkpoint
// exists under the given tag (fresh run).
func (s *Store) Load(tag string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
