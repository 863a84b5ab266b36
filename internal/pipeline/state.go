package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the pipeline state file schema this build writes.
// Files with a newer version are refused rather than silently mangled.
const SchemaVersion = 1

// StageState is the persisted state of a single stage.
type StageState struct {
	Status      StageStatus `json:"status"`
	Attempts    int         `json:"attempts,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// State is the persisted pipeline state for a workspace.
type State struct {
	Version   int                   `json:"version"`
	SessionID string                `json:"session,omitempty"`
	Current   Stage                 `json:"current"`
	StartedAt time.Time             `json:"started_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Stages    map[Stage]*StageState `json:"stages"`
}

// Manager loads, mutates, and persists pipeline state.
// Writes are atomic (temp file + rename) so a crash mid-write never
// leaves a truncated state file behind.
type Manager struct {
	mu       sync.Mutex
	filePath string
	state    *State
}

// NewManager creates a Manager for the given workspace root.
// Existing state is loaded if present; a missing file starts fresh.
func NewManager(workDir string) (*Manager, error) {
	m := &Manager{
		filePath: filepath.Join(workDir, ".autodev", "state", "pipeline.json"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// FilePath returns the path to the state file.
func (m *Manager) FilePath() string {
	return m.filePath
}

func freshState(sessionID string) *State {
	now := time.Now().UTC()
	st := &State{
		Version:   SchemaVersion,
		SessionID: sessionID,
		Current:   Order[0],
		StartedAt: now,
		UpdatedAt: now,
		Stages:    make(map[Stage]*StageState, len(Order)),
	}
	for _, stage := range Order {
		st.Stages[stage] = &StageState{Status: StatusPending}
	}
	return st
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.filePath) // #nosec G304 -- path is built from the workspace root
	if err != nil {
		if os.IsNotExist(err) {
			m.state = freshState("")
			return nil
		}
		return fmt.Errorf("read pipeline state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse pipeline state: %w", err)
	}
	if state.Version > SchemaVersion {
		return fmt.Errorf("pipeline state version %d is newer than supported version %d; upgrade autodev", state.Version, SchemaVersion)
	}
	if state.Stages == nil {
		state.Stages = make(map[Stage]*StageState, len(Order))
	}
	for _, stage := range Order {
		if state.Stages[stage] == nil {
			state.Stages[stage] = &StageState{Status: StatusPending}
		}
	}
	if Index(state.Current) < 0 {
		state.Current = Order[0]
	}
	m.state = &state
	return nil
}

// save persists state atomically. Caller must hold m.mu.
func (m *Manager) save() error {
	m.state.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pipeline state: %w", err)
	}

	tmpPath := m.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Begin resets the pipeline for a new session. All stages return to
// pending and the current stage becomes the first one.
func (m *Manager) Begin(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = freshState(sessionID)
	return m.save()
}

// Reset is Begin keeping the existing session ID.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = freshState(m.state.SessionID)
	return m.save()
}

// Current returns the stage the pipeline is positioned at.
func (m *Manager) Current() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Current
}

// Snapshot returns a deep copy of the current state for display.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := *m.state
	out.Stages = make(map[Stage]*StageState, len(m.state.Stages))
	for stage, ss := range m.state.Stages {
		copied := *ss
		out.Stages[stage] = &copied
	}
	return out
}

// Start marks a stage as running. The stage must be the pipeline's
// current stage unless force is set; earlier satisfied stages cannot be
// restarted without force either.
func (m *Manager) Start(stage Stage, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Index(stage) < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if !force && stage != m.state.Current {
		return fmt.Errorf("stage %s is not current (current: %s); use force to override", stage, m.state.Current)
	}

	ss := m.state.Stages[stage]
	now := time.Now().UTC()
	ss.Status = StatusRunning
	ss.Attempts++
	ss.StartedAt = &now
	ss.CompletedAt = nil
	ss.Detail = ""
	m.state.Current = stage
	return m.save()
}

// Pass marks a stage as passed and advances the current stage. Like
// Start, it only accepts the pipeline's current stage unless force is
// set, so passed stages stay passed and order is preserved.
func (m *Manager) Pass(stage Stage, detail string, force bool) error {
	return m.complete(stage, StatusPassed, detail, force)
}

// Fail marks a stage as failed. The pipeline stays positioned on the
// failed stage so it can be retried.
func (m *Manager) Fail(stage Stage, detail string, force bool) error {
	return m.complete(stage, StatusFailed, detail, force)
}

// Skip marks a stage as skipped and advances past it. Skipping is an
// explicit decision, so it is recorded like any other completion.
func (m *Manager) Skip(stage Stage, reason string, force bool) error {
	return m.complete(stage, StatusSkipped, reason, force)
}

func (m *Manager) complete(stage Stage, status StageStatus, detail string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Index(stage) < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if !force && stage != m.state.Current {
		return fmt.Errorf("stage %s is not current (current: %s); use force to override", stage, m.state.Current)
	}

	ss := m.state.Stages[stage]
	now := time.Now().UTC()
	ss.Status = status
	ss.CompletedAt = &now
	ss.Detail = detail
	if ss.StartedAt == nil {
		ss.StartedAt = &now
	}

	if status.satisfied() && stage == m.state.Current {
		if next := Next(stage); next != "" {
			m.state.Current = next
		}
	}
	return m.save()
}

// Advance moves the pipeline to the next stage. Without force it
// requires the current stage to be passed or skipped first.
func (m *Manager) Advance(force bool) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Current
	ss := m.state.Stages[cur]
	if !force && !ss.Status.satisfied() {
		return cur, fmt.Errorf("stage %s is %s; pass or skip it before advancing", cur, ss.Status)
	}

	next := Next(cur)
	if next == "" {
		return cur, fmt.Errorf("already at the final stage (%s)", cur)
	}
	if force && !ss.Status.terminal() {
		ss.Status = StatusSkipped
		now := time.Now().UTC()
		ss.CompletedAt = &now
		if ss.Detail == "" {
			ss.Detail = "forced advance"
		}
	}
	m.state.Current = next
	if err := m.save(); err != nil {
		return cur, err
	}
	return next, nil
}

// Done reports whether every stage is satisfied.
func (m *Manager) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, stage := range Order {
		if !m.state.Stages[stage].Status.satisfied() {
			return false
		}
	}
	return true
}
