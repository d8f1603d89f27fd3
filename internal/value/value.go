// Package value implements the engine's dynamically-typed document value
// and the record identifier it is addressed by (spec §3).
package value

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the Value union. Order matters: it is the fixed
// variant priority spec §3 requires for cross-variant comparison.
type Kind int

const (
	KindNone Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindBytes
	KindDuration
	KindDatetime
	KindUUID
	KindArray
	KindObject
	KindGeometry
	KindRecordID
	KindRange
	KindRegex
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDuration:
		return "duration"
	case KindDatetime:
		return "datetime"
	case KindUUID:
		return "uuid"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindGeometry:
		return "geometry"
	case KindRecordID:
		return "record"
	case KindRange:
		return "range"
	case KindRegex:
		return "regex"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Value is the dynamically-typed document value every record field,
// parameter, and expression result carries.
type Value struct {
	kind     Kind
	b        bool
	num      Number
	str      string // string, regex pattern, bytes (raw), file path
	dur      time.Duration
	dt       time.Time
	id       uuid.UUID
	arr      []Value
	obj      map[string]Value
	geom     *Geometry
	rid      *RecordID
	rng      *Range
}

// NumberKind discriminates the Number union.
type NumberKind int

const (
	NumberInt NumberKind = iota
	NumberFloat
	NumberDecimal
)

// Number is a tagged numeric union over int64/float64/decimal, widened to
// the broadest type seen during arithmetic per spec §4.2.
type Number struct {
	Kind NumberKind
	I    int64
	F    float64
	D    *big.Rat
}

func IntNumber(i int64) Number     { return Number{Kind: NumberInt, I: i} }
func FloatNumber(f float64) Number { return Number{Kind: NumberFloat, F: f} }
func DecimalNumber(d *big.Rat) Number { return Number{Kind: NumberDecimal, D: d} }

// Float returns n widened to float64, regardless of its native kind.
func (n Number) Float() float64 {
	switch n.Kind {
	case NumberInt:
		return float64(n.I)
	case NumberFloat:
		return n.F
	case NumberDecimal:
		f, _ := n.D.Float64()
		return f
	}
	return 0
}

func (n Number) String() string {
	switch n.Kind {
	case NumberInt:
		return fmt.Sprintf("%d", n.I)
	case NumberFloat:
		return fmt.Sprintf("%v", n.F)
	case NumberDecimal:
		return n.D.RatString()
	}
	return "0"
}

// Constructors.

func None() Value                  { return Value{kind: KindNone} }
func Null() Value                  { return Value{kind: KindNull} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Int(i int64) Value            { return Value{kind: KindNumber, num: IntNumber(i)} }
func Float(f float64) Value        { return Value{kind: KindNumber, num: FloatNumber(f)} }
func Decimal(d *big.Rat) Value     { return Value{kind: KindNumber, num: DecimalNumber(d)} }
func NumberValue(n Number) Value   { return Value{kind: KindNumber, num: n} }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value         { return Value{kind: KindBytes, str: string(b)} }
func Duration(d time.Duration) Value { return Value{kind: KindDuration, dur: d} }
func Datetime(t time.Time) Value   { return Value{kind: KindDatetime, dt: t} }
func UUID(id uuid.UUID) Value      { return Value{kind: KindUUID, id: id} }
func Array(items []Value) Value    { return Value{kind: KindArray, arr: items} }
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }
func GeometryValue(g *Geometry) Value { return Value{kind: KindGeometry, geom: g} }
func RecordIDValue(r *RecordID) Value { return Value{kind: KindRecordID, rid: r} }
func RangeValue(r *Range) Value    { return Value{kind: KindRange, rng: r} }
func Regex(pattern string) Value   { return Value{kind: KindRegex, str: pattern} }
func File(ref string) Value        { return Value{kind: KindFile, str: ref} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (Number, bool)         { return v.num, v.kind == KindNumber }
func (v Value) AsString() (string, bool)         { return v.str, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)          { return []byte(v.str), v.kind == KindBytes }
func (v Value) AsDuration() (time.Duration, bool) { return v.dur, v.kind == KindDuration }
func (v Value) AsDatetime() (time.Time, bool)    { return v.dt, v.kind == KindDatetime }
func (v Value) AsUUID() (uuid.UUID, bool)        { return v.id, v.kind == KindUUID }
func (v Value) AsArray() ([]Value, bool)         { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }
func (v Value) AsGeometry() (*Geometry, bool)    { return v.geom, v.kind == KindGeometry }
func (v Value) AsRecordID() (*RecordID, bool)    { return v.rid, v.kind == KindRecordID }
func (v Value) AsRange() (*Range, bool)          { return v.rng, v.kind == KindRange }

// IsTruthy implements the engine's truthiness rule, used by Filter and by
// CountValue accumulators: none/null/false/zero/empty are falsy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNone, KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num.Float() != 0
	case KindString, KindBytes, KindRegex, KindFile:
		return v.str != ""
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return len(v.obj) > 0
	default:
		return true
	}
}

// Compare implements the total scalar order with a fixed variant
// priority: lower Kind sorts first; within KindNumber, values are widened
// to float64 for comparison (overflow-free for the ranges this engine
// cares about; exact decimal-vs-decimal comparison uses big.Rat.Cmp).
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNone, KindNull:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindNumber:
		if a.num.Kind == NumberDecimal && b.num.Kind == NumberDecimal {
			return a.num.D.Cmp(b.num.D)
		}
		af, bf := a.num.Float(), b.num.Float()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case KindString, KindBytes, KindRegex, KindFile:
		switch {
		case a.str < b.str:
			return -1
		case a.str > b.str:
			return 1
		default:
			return 0
		}
	case KindDuration:
		switch {
		case a.dur < b.dur:
			return -1
		case a.dur > b.dur:
			return 1
		default:
			return 0
		}
	case KindDatetime:
		if a.dt.Before(b.dt) {
			return -1
		}
		if a.dt.After(b.dt) {
			return 1
		}
		return 0
	case KindUUID:
		switch {
		case a.id.String() < b.id.String():
			return -1
		case a.id.String() > b.id.String():
			return 1
		default:
			return 0
		}
	case KindArray:
		return compareArrays(a.arr, b.arr)
	case KindObject:
		return compareObjects(a.obj, b.obj)
	case KindGeometry:
		if c, ok := CompareGeometry(a.geom, b.geom); ok {
			return c
		}
		return 0
	case KindRecordID:
		return CompareRecordID(a.rid, b.rid)
	case KindRange:
		return compareRange(a.rng, b.rng)
	}
	return 0
}

func compareArrays(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareObjects(a, b map[string]Value) int {
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if ak[i] != bk[i] {
			if ak[i] < bk[i] {
				return -1
			}
			return 1
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	switch {
	case len(ak) < len(bk):
		return -1
	case len(ak) > len(bk):
		return 1
	default:
		return 0
	}
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compareRange(a, b *Range) int {
	if c := Compare(a.Begin, b.Begin); c != 0 {
		return c
	}
	return Compare(a.End, b.End)
}

// Range is an inclusive/exclusive bound pair, used both as a value
// variant and as the scan/seek parameter for the KV layer.
type Range struct {
	Begin, End         Value
	BeginInclusive     bool
	EndInclusive       bool
}
