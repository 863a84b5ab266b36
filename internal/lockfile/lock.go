// Package lockfile provides advisory file locking for state files under
// .autodev/. Locks are flock-based on unix and LockFileEx-based on Windows,
// with a JSON sidecar describing the holder so stale locks can be detected
// by PID probe after a crash.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLockBusy is returned when a non-blocking acquire finds the lock held
// by another process.
var ErrLockBusy = errors.New("lock already held by another process")

// HolderInfo describes the process holding a lock. It is written next to
// the lock file as <name>.holder so diagnostics can report who owns it.
type HolderInfo struct {
	PID       int       `json:"pid"`
	Actor     string    `json:"actor,omitempty"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is an acquired advisory lock. Release it with Unlock.
type Lock struct {
	path string
	f    *os.File
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes an exclusive non-blocking lock on path, creating the file
// if needed. Returns ErrLockBusy when another live process holds it. If the
// recorded holder PID is no longer running, the stale lock is broken and
// the acquire retried once.
func Acquire(path string, holder HolderInfo) (*Lock, error) {
	lock, err := tryAcquire(path, holder)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, ErrLockBusy) {
		return nil, err
	}

	// Busy: probe the recorded holder. A dead holder means a crashed
	// process left the lock behind, so break it and retry once.
	info, infoErr := ReadHolder(path)
	if infoErr == nil && info.PID > 0 && !isProcessRunning(info.PID) {
		_ = os.Remove(holderPath(path))
		_ = os.Remove(path)
		return tryAcquire(path, holder)
	}

	return nil, err
}

// AcquireBlocking takes an exclusive lock on path, waiting until it is
// available.
func AcquireBlocking(path string, holder HolderInfo) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 -- lock path is under .autodev
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flockExclusiveBlocking(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	l := &Lock{path: path, f: f}
	l.writeHolder(holder)
	return l, nil
}

func tryAcquire(path string, holder HolderInfo) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 -- lock path is under .autodev
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	l := &Lock{path: path, f: f}
	l.writeHolder(holder)
	return l, nil
}

// writeHolder records holder info. Best effort: the flock is the source of
// truth, the sidecar only improves diagnostics.
func (l *Lock) writeHolder(holder HolderInfo) {
	if holder.PID == 0 {
		holder.PID = os.Getpid()
	}
	if holder.StartedAt.IsZero() {
		holder.StartedAt = time.Now()
	}
	data, err := json.Marshal(holder)
	if err != nil {
		return
	}
	_ = os.WriteFile(holderPath(l.path), data, 0o644)
}

// Unlock releases the lock and removes the holder sidecar. The lock file
// itself is left in place; removing it would race with concurrent acquires.
func (l *Lock) Unlock() error {
	if l.f == nil {
		return nil
	}
	_ = os.Remove(holderPath(l.path))
	err := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}

// ReadHolder reads the holder sidecar for a lock path. It also accepts a
// bare-PID file for compatibility with hand-written lock files.
func ReadHolder(path string) (*HolderInfo, error) {
	data, err := os.ReadFile(holderPath(path)) // #nosec G304 -- derived from lock path
	if err != nil {
		// Fall back to the lock file itself holding a plain PID.
		data, err = os.ReadFile(path) // #nosec G304
		if err != nil {
			return nil, err
		}
	}

	var info HolderInfo
	if jsonErr := json.Unmarshal(data, &info); jsonErr == nil && info.PID != 0 {
		return &info, nil
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return nil, fmt.Errorf("unrecognized lock holder format in %s", path)
	}
	return &HolderInfo{PID: pid}, nil
}

// IsStale reports whether the lock at path has a recorded holder that is no
// longer running. A lock with no readable holder info is not considered
// stale.
func IsStale(path string) bool {
	info, err := ReadHolder(path)
	if err != nil || info.PID <= 0 {
		return false
	}
	return !isProcessRunning(info.PID)
}

func holderPath(lockPath string) string {
	return lockPath + ".holder"
}
