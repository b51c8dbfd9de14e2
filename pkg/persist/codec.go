package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dev-datacode/clipshot/pkg/history"
)

// SchemaVersion is the current persisted format version. The loader accepts
// anything up to this version; version 0 (no field) is the legacy format and
// decodes as version 1.
const SchemaVersion = 1

// Transform is an optional byte transform applied to the serialized document
// before write and reversed after read. Encryption-at-rest plugs in here;
// the store itself ships only Identity.
type Transform interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

type identity struct{}

func (identity) Encode(data []byte) ([]byte, error) { return data, nil }
func (identity) Decode(data []byte) ([]byte, error) { return data, nil }

// Identity is the no-op Transform.
var Identity Transform = identity{}

// envelope is the on-disk document: a self-describing, versioned wrapper
// around the full ordered item sequence.
type envelope struct {
	SchemaVersion int            `json:"schema_version"`
	SavedAt       time.Time      `json:"saved_at"`
	Items         []history.Item `json:"items"`
}

// encodeItems serializes a snapshot into the transformed on-disk form.
func encodeItems(items []history.Item, tr Transform) ([]byte, error) {
	env := envelope{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Items:         items,
	}
	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	out, err := tr.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("transform encode: %w", err)
	}
	return out, nil
}

// decodeItems performs a full decode-and-validate of one candidate file. A
// candidate that merely exists but fails any step here must be skipped by
// the loader, never returned.
func decodeItems(data []byte, tr Transform) ([]history.Item, error) {
	raw, err := tr.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("transform decode: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if env.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d (newer than %d)", env.SchemaVersion, SchemaVersion)
	}

	for i := range env.Items {
		if err := env.Items[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid item at index %d: %w", i, err)
		}
	}
	return env.Items, nil
}
