package history

import (
	"bytes"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SampleSize is how many leading bytes of a file-backed payload are compared
// when deciding duplication. The prefix sample is a documented space/time
// trade-off: false negatives are possible for payloads that differ only
// after the sampled prefix.
const SampleSize = 1024

// sampleCacheSize bounds the prefix-sample cache.
const sampleCacheSize = 128

type sampleKey struct {
	ref  string
	size int64
}

// Filter decides whether a freshly captured item duplicates recent history.
// A single filter instance may be shared; the only state it carries is a
// bounded cache of backing-file prefix samples, so a stable window costs at
// most one read per file.
type Filter struct {
	samples *lru.Cache[sampleKey, []byte]
}

// NewFilter creates a dedup filter.
func NewFilter() *Filter {
	cache, err := lru.New[sampleKey, []byte](sampleCacheSize)
	if err != nil {
		// Only possible with a non-positive size constant.
		panic(err)
	}
	return &Filter{samples: cache}
}

// IsDuplicate reports whether candidate duplicates any item in window.
// The window must be the most recent items, newest first; checking only the
// single newest item is not enough, since alternating captures (A, B, A)
// would re-store A forever.
func (f *Filter) IsDuplicate(candidate Item, window []Item) bool {
	for i := range window {
		if f.same(candidate, window[i]) {
			return true
		}
	}
	return false
}

// same applies the per-kind comparison rules. Cross-kind pairs are never
// duplicates.
func (f *Filter) same(a, b Item) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindText:
		// Full content, never a truncated preview.
		return a.Text == b.Text
	case KindFile:
		if a.SizeBytes != b.SizeBytes {
			return false
		}
		return f.samePrefix(a, b)
	case KindUnknown:
		return a.SizeBytes == b.SizeBytes
	default:
		return false
	}
}

// samePrefix compares bounded prefix samples of both backing files. A read
// failure on either side reports "duplicate": suppressing one capture is
// cheaper than re-reading a broken payload on every poll.
func (f *Filter) samePrefix(a, b Item) bool {
	sa, err := f.sample(a)
	if err != nil {
		return true
	}
	sb, err := f.sample(b)
	if err != nil {
		return true
	}
	return bytes.Equal(sa, sb)
}

// sample returns the first SampleSize bytes of the item's backing file,
// consulting the cache first.
func (f *Filter) sample(it Item) ([]byte, error) {
	key := sampleKey{ref: it.Ref, size: it.SizeBytes}
	if s, ok := f.samples.Get(key); ok {
		return s, nil
	}

	file, err := os.Open(it.Ref)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, SampleSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	s := buf[:n]
	f.samples.Add(key, s)
	return s, nil
}

// Forget drops any cached sample for the given backing file. Called when an
// item is evicted or removed so a later file at the same path is re-read.
func (f *Filter) Forget(ref string, size int64) {
	f.samples.Remove(sampleKey{ref: ref, size: size})
}
