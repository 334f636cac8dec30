package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/raphaelgruber/parley/internal/models"
)

// SchemaVersion tags the persisted snapshot so future releases can
// migrate older layouts on load.
const SchemaVersion = 1

// stateKey is the namespaced slot the whole durable snapshot lives under.
const stateKey = "parley:state"

// ErrSchemaTooNew indicates the persisted snapshot was written by a
// newer release than this binary understands.
var ErrSchemaTooNew = errors.New("persisted state schema is newer than supported")

// State is the durable subset of the store: user profile, preferences,
// thread collection and the current-thread pointer. Transient UI state
// (notifications) is deliberately excluded.
type State struct {
	SchemaVersion   int                `json:"schema_version"`
	User            models.User        `json:"user"`
	Preferences     models.Preferences `json:"preferences"`
	Threads         []models.Thread    `json:"threads"`
	CurrentThreadID string             `json:"current_thread_id,omitempty"`
}

// Persister stores and retrieves the durable snapshot. Load returns nil
// when no snapshot exists yet.
type Persister interface {
	Load() (*State, error)
	Save(State) error
	Close() error
}

// PebblePersister keeps the snapshot in a local Pebble database. Each
// Save is one synced atomic key replacement.
type PebblePersister struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the Pebble database at path.
func OpenPebble(path string) (*PebblePersister, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return &PebblePersister{db: db}, nil
}

// Load reads and validates the persisted snapshot.
func (p *PebblePersister) Load() (*State, error) {
	value, closer, err := p.db.Get([]byte(stateKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	defer closer.Close()

	var state State
	if err := json.Unmarshal(value, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, support up to %d", ErrSchemaTooNew, state.SchemaVersion, SchemaVersion)
	}
	return &state, nil
}

// Save replaces the snapshot with a synced write.
func (p *PebblePersister) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := p.db.Set([]byte(stateKey), data, pebble.Sync); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (p *PebblePersister) Close() error {
	return p.db.Close()
}

// MemoryPersister holds the snapshot in memory. Used by tests and by
// callers that want an ephemeral store.
type MemoryPersister struct {
	state *State
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load() (*State, error) {
	if m.state == nil {
		return nil, nil
	}
	copied := *m.state
	return &copied, nil
}

func (m *MemoryPersister) Save(state State) error {
	m.state = &state
	return nil
}

func (m *MemoryPersister) Close() error { return nil }
