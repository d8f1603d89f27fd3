package bolt

import "encoding/binary"

// encodeVersioned frames a user key and a version into one bbolt key so
// that ascending byte order on the composite matches ascending order on
// (userKey, version). User keys may contain arbitrary bytes including
// 0x00, so every literal 0x00 is escaped as 0x00 0xFF and the escaped
// run is closed with a 0x00 0x00 terminator before the fixed-width
// big-endian version suffix. This is the same NUL-escape + terminator
// trick ordered key-value stores use to frame variable-length keys
// (e.g. CockroachDB's key encoding) and keeps a prefix key strictly
// ordered before any key it is a prefix of.
func encodeVersioned(userKey []byte, version uint64) []byte {
	buf := make([]byte, 0, len(userKey)+2+8)
	for _, b := range userKey {
		if b == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	buf = append(buf, 0x00, 0x00)
	var vbuf [8]byte
	binary.BigEndian.PutUint64(vbuf[:], version)
	return append(buf, vbuf[:]...)
}

// decodeVersioned reverses encodeVersioned.
func decodeVersioned(composite []byte) (userKey []byte, version uint64, ok bool) {
	if len(composite) < 8 {
		return nil, 0, false
	}
	body := composite[:len(composite)-8]
	version = binary.BigEndian.Uint64(composite[len(composite)-8:])

	out := make([]byte, 0, len(body))
	i := 0
	for i < len(body) {
		if body[i] == 0x00 {
			if i+1 >= len(body) {
				return nil, 0, false
			}
			switch body[i+1] {
			case 0xFF:
				out = append(out, 0x00)
				i += 2
			case 0x00:
				// terminator written by encodeVersioned: the user key
				// ends here (body already excludes the version suffix).
				return out, version, true
			default:
				return nil, 0, false
			}
		} else {
			out = append(out, body[i])
			i++
		}
	}
	return out, version, true
}

// versionedPrefixUpperBound returns the smallest composite key strictly greater
// than every encoding of userKey at any version: the escaped form
// followed by the terminator's second byte bumped from 0x00 to 0x01,
// which sorts after every real version suffix (version suffixes start
// with the terminator 0x00 0x00 followed by 8 more bytes, all of which
// compare less than a lone trailing 0x01 at that position).
func versionedPrefixUpperBound(userKey []byte) []byte {
	buf := make([]byte, 0, len(userKey)+2)
	for _, b := range userKey {
		if b == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0x00, 0x01)
}

func versionedPrefixLowerBound(userKey []byte) []byte {
	buf := make([]byte, 0, len(userKey)+2)
	for _, b := range userKey {
		if b == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0x00, 0x00)
}
