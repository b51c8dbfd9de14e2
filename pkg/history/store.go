// Package history owns the in-memory ordered clipboard history: the item
// model, duplicate suppression, size-bounded eviction, and the Store
// coordinator that sequences them.
//
// Concurrency model: all mutation of the ordered sequence and its running
// byte total happens under one mutex, owned by the Store. File I/O (persist,
// backing-file deletion) runs off that owner and only ever sees immutable
// snapshots taken at request time.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dev-datacode/clipshot/pkg/logging"
)

// Outcome is the result of a capture attempt.
type Outcome int

const (
	// OutcomeAccepted means the candidate was inserted at the head.
	OutcomeAccepted Outcome = iota

	// OutcomeRejectedDuplicate means the candidate matched an item in the
	// recent window. Not an error; the normal result of polling a stable
	// clipboard.
	OutcomeRejectedDuplicate

	// OutcomeRejectedOversize means the candidate exceeded the per-item
	// byte ceiling. Checked before dedup or storage.
	OutcomeRejectedOversize

	// OutcomeRejectedEmpty means the candidate carried no payload.
	OutcomeRejectedEmpty
)

// String returns a short name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejectedDuplicate:
		return "duplicate"
	case OutcomeRejectedOversize:
		return "oversize"
	case OutcomeRejectedEmpty:
		return "empty"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Candidate is one delivery from the capture source.
type Candidate struct {
	Data []byte
	Kind Kind

	// ContextLabel is optional provenance, e.g. the source window name.
	ContextLabel string
}

// Saver is the persistence engine contract consumed by the store. Saves are
// handed immutable snapshots; the saver never reads live store state.
type Saver interface {
	// RequestSave schedules a coalesced save of the snapshot.
	RequestSave(items []Item)

	// Flush writes the snapshot synchronously, bypassing coalescing.
	Flush(items []Item) error

	// Load reads the persisted sequence, walking backups as needed.
	Load() ([]Item, error)
}

// Options configures a Store.
type Options struct {
	// Saver is required.
	Saver Saver

	// BlobDir holds side files for file-backed payloads.
	BlobDir string

	// MaxStorageBytes is the storage ceiling; 0 means unlimited.
	MaxStorageBytes int64

	// MaxItemBytes is the hard per-item ceiling; 0 disables the check.
	MaxItemBytes int64

	// DedupeWindow is how many recent items captures are compared against.
	// Zero means 5.
	DedupeWindow int

	// ProtectFavorites exempts favorited items from eviction.
	ProtectFavorites bool

	// Classifier optionally flags sensitive text content. Advisory only:
	// it sets Item.Sensitive and affects nothing else in the store.
	Classifier func(string) bool

	// Logger is optional.
	Logger *logging.Logger
}

// Store is the single owned, ordered sequence of captured items, newest
// first. Construct exactly one per data directory with Open; tear down with
// Shutdown.
type Store struct {
	saver    Saver
	blobDir  string
	filter   *Filter
	policy   EvictionPolicy
	window   int
	maxItem  int64
	classify func(string) bool
	log      *logging.Logger

	// removeFile performs backing-file deletion; replaced in tests.
	removeFile func(string) error

	mu         sync.Mutex
	items      []Item
	totalBytes int64
	loadErr    error
}

// Open constructs the store and loads the persisted sequence. If the primary
// file and every backup generation fail to decode, Open still returns a
// usable empty store alongside the load error, so callers can surface the
// degradation without crashing.
func Open(opts Options) (*Store, error) {
	if opts.Saver == nil {
		return nil, fmt.Errorf("history: Saver is required")
	}
	if opts.BlobDir != "" {
		if err := os.MkdirAll(opts.BlobDir, 0700); err != nil {
			return nil, fmt.Errorf("history: create blob dir: %w", err)
		}
	}
	window := opts.DedupeWindow
	if window <= 0 {
		window = 5
	}

	s := &Store{
		saver:   opts.Saver,
		blobDir: opts.BlobDir,
		filter:  NewFilter(),
		policy: EvictionPolicy{
			Ceiling:          opts.MaxStorageBytes,
			ProtectFavorites: opts.ProtectFavorites,
		},
		window:     window,
		maxItem:    opts.MaxItemBytes,
		classify:   opts.Classifier,
		log:        opts.Logger,
		removeFile: os.Remove,
	}

	items, err := s.saver.Load()
	if err != nil {
		s.loadErr = err
		s.warnf("load degraded, starting empty: %v", err)
	}
	s.items = items

	// The running total is recomputed from scratch on every load and
	// maintained incrementally afterward.
	var total int64
	for i := range items {
		total += items[i].SizeBytes
	}
	s.totalBytes = total

	return s, s.loadErr
}

// Capture runs a candidate through intake: oversize check, dedup against the
// recent window, head insertion, then eviction. The returned error covers
// intake I/O failures only (side-file writes); all policy decisions are
// expressed through the Outcome.
func (s *Store) Capture(c Candidate) (Outcome, error) {
	if len(c.Data) == 0 {
		return OutcomeRejectedEmpty, nil
	}
	if s.maxItem > 0 && int64(len(c.Data)) > s.maxItem {
		s.debugf("capture rejected: %d bytes over per-item ceiling %d", len(c.Data), s.maxItem)
		return OutcomeRejectedOversize, nil
	}

	it, err := s.makeItem(c)
	if err != nil {
		return OutcomeRejectedEmpty, fmt.Errorf("history: capture intake: %w", err)
	}

	s.mu.Lock()
	// A window of K spans the last K captures including this candidate, so
	// the candidate is compared against the K-1 most recent stored items.
	window := s.items
	if len(window) > s.window-1 {
		window = window[:s.window-1]
	}
	if s.filter.IsDuplicate(it, window) {
		s.mu.Unlock()
		if it.Ref != "" {
			s.scheduleDelete(it.Ref, it.SizeBytes)
		}
		return OutcomeRejectedDuplicate, nil
	}

	s.items = append([]Item{it}, s.items...)
	s.totalBytes += it.SizeBytes

	kept, evicted, newTotal := s.policy.Plan(s.items, s.totalBytes)
	s.items = kept
	s.totalBytes = newTotal
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	for i := range evicted {
		if evicted[i].Ref != "" {
			s.scheduleDelete(evicted[i].Ref, evicted[i].SizeBytes)
		}
	}
	if len(evicted) > 0 {
		s.debugf("evicted %d item(s), total now %d bytes", len(evicted), newTotal)
	}

	s.saver.RequestSave(snapshot)
	return OutcomeAccepted, nil
}

// makeItem builds an Item from a candidate. Non-text payloads are written to
// the blob directory before the sequence is touched, so intake I/O never
// happens under the store lock.
func (s *Store) makeItem(c Candidate) (Item, error) {
	switch c.Kind {
	case KindText, "":
		it := NewTextItem(string(c.Data), c.ContextLabel)
		if s.classify != nil && s.classify(it.Text) {
			it.Sensitive = true
		}
		return it, nil
	default:
		ref, err := s.writeBlob(c.Data)
		if err != nil {
			return Item{}, err
		}
		if c.Kind == KindFile {
			return NewFileItem(ref, int64(len(c.Data)), c.ContextLabel), nil
		}
		return NewUnknownItem(ref, int64(len(c.Data)), c.ContextLabel), nil
	}
}

// writeBlob stores a file-backed payload as a side file with restrictive
// permissions.
func (s *Store) writeBlob(data []byte) (string, error) {
	if s.blobDir == "" {
		return "", fmt.Errorf("no blob directory configured")
	}
	ref := filepath.Join(s.blobDir, uuid.New().String()+".bin")
	if err := os.WriteFile(ref, data, 0600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return ref, nil
}

// Remove deletes the item with the given id. The in-memory sequence is
// updated synchronously; backing-file deletion and persistence happen
// asynchronously. Returns false if the id is unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	s.totalBytes -= removed.SizeBytes
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if removed.Ref != "" {
		s.scheduleDelete(removed.Ref, removed.SizeBytes)
	}
	s.saver.RequestSave(snapshot)
	return true
}

// ClearAll empties the sequence synchronously, then asynchronously deletes
// backing files and persists the empty state. Safe even while a save of the
// previous contents is still in flight, since that save holds its own
// snapshot.
func (s *Store) ClearAll() {
	s.mu.Lock()
	cleared := s.items
	s.items = nil
	s.totalBytes = 0
	s.mu.Unlock()

	for i := range cleared {
		if cleared[i].Ref != "" {
			s.scheduleDelete(cleared[i].Ref, cleared[i].SizeBytes)
		}
	}
	s.saver.RequestSave(nil)
}

// SetFavorite toggles the favorite flag on an item. Returns false if the id
// is unknown.
func (s *Store) SetFavorite(id string, favorite bool) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.items[idx].Favorite = favorite
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.saver.RequestSave(snapshot)
	return true
}

// Items returns a copy of the full sequence, newest first.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Recent returns a copy of the most recent n items.
func (s *Store) Recent(n int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(s.items) {
		n = len(s.items)
	}
	out := make([]Item, n)
	copy(out, s.items[:n])
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// TotalBytes returns the running storage total.
func (s *Store) TotalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// Degraded reports the non-fatal load failure recorded at Open, if any.
func (s *Store) Degraded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Shutdown performs one synchronous flush of the current sequence. The
// engine's pending debounce, if any, is superseded by this write.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.saver.Flush(snapshot); err != nil {
		return fmt.Errorf("history: shutdown flush: %w", err)
	}
	return nil
}

// indexLocked finds an item by id. Caller holds mu.
func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked copies the sequence for handoff to I/O. Caller holds mu.
func (s *Store) snapshotLocked() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// scheduleDelete removes a backing file off the owner context. Each evicted
// or removed ref is scheduled exactly once.
func (s *Store) scheduleDelete(ref string, size int64) {
	s.filter.Forget(ref, size)
	go func() {
		if err := s.removeFile(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.warnf("delete backing file %s: %v", ref, err)
		}
	}()
}

func (s *Store) debugf(format string, v ...interface{}) {
	if s.log != nil {
		s.log.Debugf(format, v...)
	}
}

func (s *Store) warnf(format string, v ...interface{}) {
	if s.log != nil {
		s.log.Warnf(format, v...)
	}
}
