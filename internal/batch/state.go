package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/akaszubski/autonomous-dev/internal/lockfile"
)

// SchemaVersion is the batch state file schema this build writes.
const SchemaVersion = 1

// ItemStatus is the lifecycle state of a batch item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemRunning ItemStatus = "running"
	ItemDone    ItemStatus = "done"
	ItemFailed  ItemStatus = "failed" // retryable
	ItemDead    ItemStatus = "dead"   // retries exhausted
)

// ItemState is the persisted state of one batch item.
type ItemState struct {
	Status    ItemStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BreakerState is the persisted circuit breaker state.
type BreakerState struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenUntil           *time.Time `json:"open_until,omitempty"`
}

// State is the persisted batch state for a workspace.
type State struct {
	Version   int                   `json:"version"`
	BatchID   string                `json:"batch_id,omitempty"`
	Items     map[string]*ItemState `json:"items"`
	Breaker   BreakerState          `json:"breaker"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// StateManager persists batch state with an advisory file lock held for
// the manager's lifetime. A second process acquiring the same workspace
// gets lockfile.ErrLockBusy instead of silently interleaving writes.
type StateManager struct {
	mu       sync.Mutex
	filePath string
	lock     *lockfile.Lock
	state    *State
}

// OpenState acquires the batch state lock and loads existing state.
func OpenState(workDir, actor string) (*StateManager, error) {
	stateDir := filepath.Join(workDir, ".autodev", "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	filePath := filepath.Join(stateDir, "batch.json")
	lock, err := lockfile.Acquire(filePath+".lock", lockfile.HolderInfo{
		PID:       os.Getpid(),
		Actor:     actor,
		Command:   "batch",
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	sm := &StateManager{filePath: filePath, lock: lock}
	if err := sm.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return sm, nil
}

// Close releases the state lock.
func (sm *StateManager) Close() error {
	return sm.lock.Unlock()
}

// FilePath returns the path to the state file.
func (sm *StateManager) FilePath() string {
	return sm.filePath
}

func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.filePath) // #nosec G304 -- path is built from the workspace root
	if err != nil {
		if os.IsNotExist(err) {
			sm.state = &State{Version: SchemaVersion, Items: make(map[string]*ItemState)}
			return nil
		}
		return fmt.Errorf("read batch state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse batch state: %w", err)
	}
	if state.Version > SchemaVersion {
		return fmt.Errorf("batch state version %d is newer than supported version %d; upgrade autodev", state.Version, SchemaVersion)
	}
	if state.Items == nil {
		state.Items = make(map[string]*ItemState)
	}
	sm.state = &state
	return nil
}

// save persists state atomically. Caller must hold sm.mu.
func (sm *StateManager) save() error {
	sm.state.Version = SchemaVersion
	sm.state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch state: %w", err)
	}

	tmpPath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, sm.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Begin starts a new batch run, clearing item state but keeping the
// breaker: a tripped breaker survives restarts on purpose.
func (sm *StateManager) Begin(batchID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.BatchID = batchID
	sm.state.Items = make(map[string]*ItemState)
	return sm.save()
}

// Reset clears all batch state including the breaker.
func (sm *StateManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = &State{Version: SchemaVersion, Items: make(map[string]*ItemState)}
	return sm.save()
}

// BatchID returns the identifier of the current batch run, if any.
func (sm *StateManager) BatchID() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state.BatchID
}

// Item returns a copy of an item's state and whether it exists.
func (sm *StateManager) Item(id string) (ItemState, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	is, ok := sm.state.Items[id]
	if !ok {
		return ItemState{}, false
	}
	return *is, true
}

// Snapshot returns a deep copy of the state for display.
func (sm *StateManager) Snapshot() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := *sm.state
	out.Items = make(map[string]*ItemState, len(sm.state.Items))
	for id, is := range sm.state.Items {
		copied := *is
		out.Items[id] = &copied
	}
	return out
}

// MarkRunning records an item starting an attempt.
func (sm *StateManager) MarkRunning(id string) error {
	return sm.update(id, func(is *ItemState) {
		is.Status = ItemRunning
		is.Attempts++
	})
}

// MarkDone records a successful item.
func (sm *StateManager) MarkDone(id string) error {
	return sm.update(id, func(is *ItemState) {
		is.Status = ItemDone
		is.LastError = ""
	})
}

// MarkFailed records a failed attempt. Once maxAttempts is reached the
// item goes dead and is no longer retried.
func (sm *StateManager) MarkFailed(id, reason string, maxAttempts int) error {
	return sm.update(id, func(is *ItemState) {
		is.LastError = reason
		if is.Attempts >= maxAttempts {
			is.Status = ItemDead
		} else {
			is.Status = ItemFailed
		}
	})
}

// Retry returns failed and dead items to pending with a fresh attempt
// budget.
func (sm *StateManager) Retry() (int, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	count := 0
	for _, is := range sm.state.Items {
		if is.Status == ItemFailed || is.Status == ItemDead {
			is.Status = ItemPending
			is.Attempts = 0
			is.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, sm.save()
}

func (sm *StateManager) update(id string, mutate func(*ItemState)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	is, ok := sm.state.Items[id]
	if !ok {
		is = &ItemState{Status: ItemPending}
		sm.state.Items[id] = is
	}
	mutate(is)
	is.UpdatedAt = time.Now().UTC()
	return sm.save()
}
