package history

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Kind tags the payload variant of an item and drives type-specific
// comparison and display.
type Kind string

const (
	// KindText is small textual content stored inline.
	KindText Kind = "text"

	// KindFile is large or binary content stored as a side file and
	// referenced by path.
	KindFile Kind = "file"

	// KindUnknown is content of an unrecognized type, stored as a side
	// file like KindFile but compared only by size.
	KindUnknown Kind = "unknown"
)

// Item is a single captured history entry. Items are immutable once created
// except for the Favorite flag; identity is ID-based only.
type Item struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Text holds the inline payload for KindText items.
	Text string `json:"text,omitempty"`

	// Ref is the backing file path for KindFile and KindUnknown items.
	Ref string `json:"ref,omitempty"`

	// SizeBytes is the payload footprint used for storage accounting.
	SizeBytes int64 `json:"size_bytes"`

	CreatedAt time.Time `json:"created_at"`

	// ContextLabel is optional provenance (e.g. source window name).
	// Display-only; never part of identity or equality.
	ContextLabel string `json:"context_label,omitempty"`

	// Favorite is user-set and survives restarts.
	Favorite bool `json:"favorite"`

	// Sensitive is set by an external classifier and is advisory only.
	Sensitive bool `json:"sensitive"`
}

// NewTextItem creates an inline text item.
func NewTextItem(text, contextLabel string) Item {
	return Item{
		ID:           uuid.New().String(),
		Kind:         KindText,
		Text:         text,
		SizeBytes:    int64(len(text)),
		CreatedAt:    time.Now().UTC(),
		ContextLabel: contextLabel,
	}
}

// NewFileItem creates an item whose payload lives in the side file at ref.
func NewFileItem(ref string, sizeBytes int64, contextLabel string) Item {
	return Item{
		ID:           uuid.New().String(),
		Kind:         KindFile,
		Ref:          ref,
		SizeBytes:    sizeBytes,
		CreatedAt:    time.Now().UTC(),
		ContextLabel: contextLabel,
	}
}

// NewUnknownItem creates an item of unrecognized type backed by the side
// file at ref.
func NewUnknownItem(ref string, sizeBytes int64, contextLabel string) Item {
	it := NewFileItem(ref, sizeBytes, contextLabel)
	it.Kind = KindUnknown
	return it
}

// Validate checks structural coherence. Loaded candidates must pass this
// before being accepted into the store.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item missing ID")
	}
	switch it.Kind {
	case KindText:
		if it.Ref != "" {
			return fmt.Errorf("item %s: text item carries a file ref", it.ID)
		}
	case KindFile, KindUnknown:
		if it.Ref == "" {
			return fmt.Errorf("item %s: %s item missing file ref", it.ID, it.Kind)
		}
		if it.Text != "" {
			return fmt.Errorf("item %s: %s item carries inline text", it.ID, it.Kind)
		}
	default:
		return fmt.Errorf("item %s: unknown kind %q", it.ID, it.Kind)
	}
	if it.SizeBytes < 0 {
		return fmt.Errorf("item %s: negative size %d", it.ID, it.SizeBytes)
	}
	if it.Kind == KindText && it.SizeBytes != int64(len(it.Text)) {
		return fmt.Errorf("item %s: size %d does not match text length %d", it.ID, it.SizeBytes, len(it.Text))
	}
	return nil
}

// String renders a short display form with a humanized size.
func (it Item) String() string {
	short := it.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s[%s] %s", it.Kind, short, humanize.IBytes(uint64(it.SizeBytes)))
}
