// Package persist is the durability layer of the history store: a versioned
// JSON codec with a pluggable byte transform, disk-space admission control,
// atomic backup rotation, and a debounced save engine with a
// fallback-chained loader.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dev-datacode/clipshot/pkg/history"
	"github.com/dev-datacode/clipshot/pkg/logging"
)

var (
	// ErrNoCapacity reports that admission control denied a write for lack
	// of free disk space. The in-memory state is untouched; the write is
	// retried on the next debounce trigger.
	ErrNoCapacity = errors.New("persist: insufficient disk space")

	// ErrLoadDegraded reports that the primary file and every backup
	// generation failed to decode. The caller starts from an empty
	// collection; this is recoverable but must not be silent.
	ErrLoadDegraded = errors.New("persist: history data unavailable")
)

// Options configures an Engine.
type Options struct {
	// Path is the primary persisted file. Required.
	Path string

	// Generations is the number of rotating backups to keep (0-5).
	Generations int

	// Quiet is the debounce period: a save is written only after this long
	// with no newer request. Zero means 2s.
	Quiet time.Duration

	// Transform is applied to serialized bytes before write and reversed
	// after read. Nil means Identity.
	Transform Transform

	// OnError receives failures from asynchronous (debounced) writes.
	// Synchronous paths report through return values instead.
	OnError func(error)

	// Logger is optional.
	Logger *logging.Logger
}

// Engine performs debounced, atomic saves and validated, fallback-chained
// loads of the history file.
//
// Save requests are coalesced through a single resettable timer: every
// request replaces the pending snapshot and restarts the quiet period, so a
// burst of captures costs one physical write. Flush bypasses the timer for
// shutdown. In-flight writes are never interrupted; they run to completion
// or fail explicitly.
type Engine struct {
	path      string
	transform Transform
	rotator   *Rotator
	capacity  *CapacityChecker
	quiet     time.Duration
	onError   func(error)
	log       *logging.Logger

	mu         sync.Mutex
	timer      *time.Timer
	pending    []history.Item
	hasPending bool
	closed     bool

	// writeMu serializes physical writes so a flush cannot interleave with
	// a firing debounce.
	writeMu sync.Mutex
}

// NewEngine creates the engine, ensures the data directory exists, and runs
// the one-time legacy-backup migration.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("persist: Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("persist: create data dir: %w", err)
	}
	if opts.Quiet <= 0 {
		opts.Quiet = 2 * time.Second
	}
	if opts.Transform == nil {
		opts.Transform = Identity
	}

	e := &Engine{
		path:      opts.Path,
		transform: opts.Transform,
		rotator:   NewRotator(opts.Generations),
		capacity:  NewCapacityChecker(opts.Path, opts.Generations),
		quiet:     opts.Quiet,
		onError:   opts.OnError,
		log:       opts.Logger,
	}

	if err := e.rotator.MigrateLegacy(e.path); err != nil {
		return nil, err
	}
	return e, nil
}

// RequestSave schedules a coalesced save. The snapshot replaces any pending
// one and the quiet period restarts; only the last request in a burst
// triggers a write.
func (e *Engine) RequestSave(items []history.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending = items
	e.hasPending = true
	if e.timer == nil {
		e.timer = time.AfterFunc(e.quiet, e.flushPending)
	} else {
		e.timer.Reset(e.quiet)
	}
}

// flushPending is the debounce timer callback.
func (e *Engine) flushPending() {
	e.mu.Lock()
	if !e.hasPending || e.closed {
		e.mu.Unlock()
		return
	}
	items := e.pending
	e.pending = nil
	e.hasPending = false
	e.mu.Unlock()

	if err := e.write(items); err != nil {
		e.errorf("debounced save failed: %v", err)
		if e.onError != nil {
			e.onError(err)
		}
	}
}

// Flush writes the snapshot synchronously, superseding any pending debounced
// save. Required at shutdown.
func (e *Engine) Flush(items []history.Item) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.pending = nil
	e.hasPending = false
	e.mu.Unlock()

	return e.write(items)
}

// Close cancels the debounce timer and writes any snapshot still pending.
// The engine accepts no further save requests afterward.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	items, has := e.pending, e.hasPending
	e.pending = nil
	e.hasPending = false
	e.mu.Unlock()

	if has {
		return e.write(items)
	}
	return nil
}

// write is the physical save: encode, admission check, rotate, then atomic
// write-then-rename with restrictive permissions. No failure here may have
// mutated the caller's in-memory state.
func (e *Engine) write(items []history.Item) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	data, err := encodeItems(items, e.transform)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if !e.capacity.HasCapacity(int64(len(data))) {
		return fmt.Errorf("persist: save of %s denied: %w", humanize.IBytes(uint64(len(data))), ErrNoCapacity)
	}

	if err := e.rotator.Rotate(e.path); err != nil {
		// Rotation failure falls back to a single backup and never aborts
		// the save itself.
		e.warnf("%v", err)
		if e.onError != nil {
			e.onError(err)
		}
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist: atomic rename %s: %w", e.path, err)
	}

	e.debugf("wrote %d item(s), %s", len(items), humanize.IBytes(uint64(len(data))))
	return nil
}

// Load reads the persisted sequence: the primary file first, then each
// backup generation in order. Every candidate gets a full
// decode-and-validate before being accepted; one that exists but fails is
// skipped. A missing primary with no backups is a clean empty start. If
// candidates existed but all failed, Load returns an ErrLoadDegraded-wrapped
// error and an empty sequence.
func (e *Engine) Load() ([]history.Item, error) {
	candidates := []string{e.path}
	for gen := 1; gen <= e.rotator.generations; gen++ {
		candidates = append(candidates, BackupPath(e.path, gen))
	}

	sawCandidate := false
	var firstErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			sawCandidate = true
			e.warnf("unreadable candidate %s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sawCandidate = true

		items, err := decodeItems(data, e.transform)
		if err != nil {
			e.warnf("skipping invalid candidate %s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if path != e.path {
			e.warnf("primary failed, recovered %d item(s) from %s", len(items), path)
		}
		return items, nil
	}

	if !sawCandidate {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: primary and all backups failed validation: %v", ErrLoadDegraded, firstErr)
}

// Path returns the primary file location.
func (e *Engine) Path() string { return e.path }

func (e *Engine) debugf(format string, v ...interface{}) {
	if e.log != nil {
		e.log.Debugf(format, v...)
	}
}

func (e *Engine) warnf(format string, v ...interface{}) {
	if e.log != nil {
		e.log.Warnf(format, v...)
	}
}

func (e *Engine) errorf(format string, v ...interface{}) {
	if e.log != nil {
		e.log.Errorf(format, v...)
	}
}
