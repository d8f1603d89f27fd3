package keys

import (
	"encoding/binary"

	"github.com/surrealkv/surqlcore/internal/value"
)

// EncodeRecordKey renders a record's identifier as an ordered byte
// string suitable for appending after Record's table prefix. The
// leading kind byte keeps the fixed variant order spec §3 requires;
// within a kind, fixed-width or escaped-and-terminated encodings keep
// byte order matching value order for every kind Scan needs to walk in
// key order (int, string, uuid). Array/object/range keys are rarer in
// practice (most records use a generated or caller-supplied scalar key)
// and fall back to a NUL-delimited text rendering (fallbackEncode) that
// preserves uniqueness but not cross-key ordering.
func EncodeRecordKey(k value.RecordKey) []byte {
	buf := []byte{byte(k.Kind)}
	switch k.Kind {
	case value.KeyInt:
		var v [8]byte
		// Flip the sign bit so two's-complement ordering matches
		// unsigned byte ordering across negative and positive values.
		binary.BigEndian.PutUint64(v[:], uint64(k.I)^(1<<63))
		return append(buf, v[:]...)
	case value.KeyString:
		return append(buf, escapeAndTerminate([]byte(k.S))...)
	case value.KeyUUID:
		b, _ := k.U.MarshalBinary()
		return append(buf, b...)
	case value.KeyGenerated:
		b, _ := k.U.MarshalBinary()
		return append(buf, b...)
	default:
		// Array/object/range keys: opaque, NUL-delimited, unique but
		// not order-preserving across distinct values.
		enc := fallbackEncode(k)
		return append(buf, enc...)
	}
}

func escapeAndTerminate(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+2)
	for _, b := range raw {
		if b == sep {
			out = append(out, sep, 0xFF)
		} else {
			out = append(out, b)
		}
	}
	return append(out, sep, sep)
}

// fallbackEncode renders array/object/range keys as a simple
// self-delimiting byte string; it is not used for ordering, only
// uniqueness, so it does not need to be a total-order-preserving scheme.
func fallbackEncode(k value.RecordKey) []byte {
	var out []byte
	switch k.Kind {
	case value.KeyArray:
		for _, v := range k.A {
			out = append(out, encodeValueOpaque(v)...)
			out = append(out, sep)
		}
	case value.KeyObject:
		keys := sortedObjectKeys(k.O)
		for _, name := range keys {
			out = append(out, []byte(name)...)
			out = append(out, sep)
			out = append(out, encodeValueOpaque(k.O[name])...)
			out = append(out, sep)
		}
	case value.KeyRange:
		out = append(out, encodeValueOpaque(k.R.Begin)...)
		out = append(out, sep)
		out = append(out, encodeValueOpaque(k.R.End)...)
	}
	return out
}

func sortedObjectKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func encodeValueOpaque(v value.Value) []byte {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return []byte(s)
	case value.KindNumber:
		n, _ := v.AsNumber()
		return []byte(n.String())
	default:
		return []byte(v.Kind().String())
	}
}
