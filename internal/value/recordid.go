package value

import (
	"fmt"

	"github.com/google/uuid"
)

// RecordKeyKind discriminates the RecordID.Key union, in the fixed
// variant order spec §3 requires for equality/ordering across variants.
type RecordKeyKind int

const (
	KeyInt RecordKeyKind = iota
	KeyString
	KeyUUID
	KeyArray
	KeyObject
	KeyGenerated
	KeyRange
)

// RecordID identifies a single record as {table, key}.
type RecordID struct {
	Table string
	Key   RecordKey
}

// RecordKey is the tagged union of identifier shapes a record can carry.
type RecordKey struct {
	Kind RecordKeyKind
	I    int64
	S    string
	U    uuid.UUID
	A    []Value
	O    map[string]Value
	R    *Range
}

func IntKey(i int64) RecordKey        { return RecordKey{Kind: KeyInt, I: i} }
func StringKey(s string) RecordKey    { return RecordKey{Kind: KeyString, S: s} }
func UUIDKey(u uuid.UUID) RecordKey   { return RecordKey{Kind: KeyUUID, U: u} }
func ArrayKey(a []Value) RecordKey    { return RecordKey{Kind: KeyArray, A: a} }
func ObjectKey(o map[string]Value) RecordKey { return RecordKey{Kind: KeyObject, O: o} }
func GeneratedKey(id uuid.UUID) RecordKey    { return RecordKey{Kind: KeyGenerated, U: id} }
func RangeKey(r *Range) RecordKey     { return RecordKey{Kind: KeyRange, R: r} }

func (r *RecordID) String() string {
	switch r.Key.Kind {
	case KeyInt:
		return fmt.Sprintf("%s:%d", r.Table, r.Key.I)
	case KeyString:
		return fmt.Sprintf("%s:%s", r.Table, r.Key.S)
	case KeyUUID, KeyGenerated:
		return fmt.Sprintf("%s:%s", r.Table, r.Key.U)
	default:
		return fmt.Sprintf("%s:%v", r.Table, r.Key)
	}
}

// CompareRecordID implements equality and total order across record ids:
// first by table name, then by key variant rank, then by key payload.
func CompareRecordID(a, b *RecordID) int {
	if a.Table != b.Table {
		if a.Table < b.Table {
			return -1
		}
		return 1
	}
	if a.Key.Kind != b.Key.Kind {
		if a.Key.Kind < b.Key.Kind {
			return -1
		}
		return 1
	}
	switch a.Key.Kind {
	case KeyInt:
		switch {
		case a.Key.I < b.Key.I:
			return -1
		case a.Key.I > b.Key.I:
			return 1
		default:
			return 0
		}
	case KeyString:
		switch {
		case a.Key.S < b.Key.S:
			return -1
		case a.Key.S > b.Key.S:
			return 1
		default:
			return 0
		}
	case KeyUUID, KeyGenerated:
		as, bs := a.Key.U.String(), b.Key.U.String()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	case KeyArray:
		return compareArrays(a.Key.A, b.Key.A)
	case KeyObject:
		return compareObjects(a.Key.O, b.Key.O)
	case KeyRange:
		return compareRange(a.Key.R, b.Key.R)
	}
	return 0
}
