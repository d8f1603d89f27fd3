// Package codec implements the stand-in for the spec's "revision-tagged
// serialization format" — named an external, consumed-only collaborator
// by spec §1, but with no generated-stub or library in the retrieval
// pack to depend on (see DESIGN.md). Every encoded catalog entry carries
// a one-byte revision discriminant ahead of a gob payload, so a future
// format change can add a case to Decode without breaking entries
// written by an older revision.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// CurrentRevision is the revision tag new writes are stamped with.
const CurrentRevision byte = 1

// Encode serializes v as the current revision.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CurrentRevision)
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v, dispatching on the leading revision
// byte. Only CurrentRevision is understood today; future revisions add a
// case here rather than changing the wire layout of existing data.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: empty payload")
	}
	rev, body := data[0], data[1:]
	switch rev {
	case CurrentRevision:
		if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
			return fmt.Errorf("codec: decode (revision %d): %w", rev, err)
		}
		return nil
	default:
		return fmt.Errorf("codec: unsupported revision %d", rev)
	}
}
