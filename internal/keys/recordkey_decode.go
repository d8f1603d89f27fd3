package keys

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/surrealkv/surqlcore/internal/value"
)

// DecodeRecordKey reverses EncodeRecordKey for the kinds that are
// invertible (int, string, uuid, generated); array/object/range keys use
// an opaque, non-invertible fallback encoding and report ok=false here,
// the record's own embedded "id" field is the source of truth for those.
func DecodeRecordKey(table string, suffix []byte) (value.RecordKey, bool) {
	if len(suffix) == 0 {
		return value.RecordKey{}, false
	}
	kind := value.RecordKeyKind(suffix[0])
	body := suffix[1:]
	switch kind {
	case value.KeyInt:
		if len(body) != 8 {
			return value.RecordKey{}, false
		}
		u := binary.BigEndian.Uint64(body) ^ (1 << 63)
		return value.IntKey(int64(u)), true
	case value.KeyString:
		s, ok := unescapeTerminated(body)
		if !ok {
			return value.RecordKey{}, false
		}
		return value.StringKey(s), true
	case value.KeyUUID:
		id, err := uuid.FromBytes(body)
		if err != nil {
			return value.RecordKey{}, false
		}
		return value.UUIDKey(id), true
	case value.KeyGenerated:
		id, err := uuid.FromBytes(body)
		if err != nil {
			return value.RecordKey{}, false
		}
		return value.GeneratedKey(id), true
	default:
		return value.RecordKey{}, false
	}
}

func unescapeTerminated(body []byte) (string, bool) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == sep {
			if i+1 >= len(body) {
				return "", false
			}
			switch body[i+1] {
			case 0xFF:
				out = append(out, sep)
				i++
				continue
			case sep:
				return string(out), true
			}
		}
		out = append(out, body[i])
	}
	return "", false
}
