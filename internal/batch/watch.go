package batch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/akaszubski/autonomous-dev/internal/logging"
)

// DefaultDebounce is how long the watcher waits for the queue to settle
// before signalling a run.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the queue directory and signals when new task files
// settle. Signals are debounced: dropping ten files at once produces
// one wakeup, not ten.
type Watcher struct {
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	log      *zap.Logger

	pendingMu sync.Mutex
	pending   bool

	wake chan struct{}
}

// NewWatcher creates a watcher over the workspace queue directory.
// The directory must exist before watching starts.
func NewWatcher(workDir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		dir:      QueueDir(workDir),
		debounce: debounce,
		fsw:      fsw,
		log:      logging.Named("batch.watch"),
		wake:     make(chan struct{}, 1),
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Wake returns the channel that receives a signal when the queue has
// settled after changes.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Start processes filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, TaskExt) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.pendingMu.Lock()
			fire := w.pending
			w.pending = false
			w.pendingMu.Unlock()
			if !fire {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default: // a wakeup is already queued
			}
		}
	}
}
