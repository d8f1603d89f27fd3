package value

import (
	"bytes"
	"encoding/gob"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// wireValue mirrors Value with exported fields so gob (and anything else
// built on encoding/gob, e.g. internal/codec) can serialize a Value
// despite its fields being unexported to keep the tagged union's
// invariants enforced through its constructors.
type wireValue struct {
	Kind Kind
	B    bool
	Num  wireNumber
	Str  string
	Dur  time.Duration
	DT   time.Time
	ID   uuid.UUID
	Arr  []Value
	Obj  map[string]Value
	Geom *Geometry
	Rid  *RecordID
	Rng  *Range
}

type wireNumber struct {
	Kind NumberKind
	I    int64
	F    float64
	D    []byte // big.Rat.GobEncode
}

func init() {
	gob.Register(wireValue{})
}

// GobEncode implements gob.GobEncoder so Value round-trips through
// internal/codec without exposing its fields.
func (v Value) GobEncode() ([]byte, error) {
	w := wireValue{
		Kind: v.kind,
		B:    v.b,
		Num:  wireNumber{Kind: v.num.Kind, I: v.num.I, F: v.num.F},
		Str:  v.str,
		Dur:  v.dur,
		DT:   v.dt,
		ID:   v.id,
		Arr:  v.arr,
		Obj:  v.obj,
		Geom: v.geom,
		Rid:  v.rid,
		Rng:  v.rng,
	}
	if v.num.Kind == NumberDecimal && v.num.D != nil {
		d, err := v.num.D.GobEncode()
		if err != nil {
			return nil, err
		}
		w.Num.D = d
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (v *Value) GobDecode(data []byte) error {
	var w wireValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	v.kind = w.Kind
	v.b = w.B
	v.num = Number{Kind: w.Num.Kind, I: w.Num.I, F: w.Num.F}
	if w.Num.Kind == NumberDecimal && len(w.Num.D) > 0 {
		r := new(big.Rat)
		if err := r.GobDecode(w.Num.D); err != nil {
			return err
		}
		v.num.D = r
	}
	v.str = w.Str
	v.dur = w.Dur
	v.dt = w.DT
	v.id = w.ID
	v.arr = w.Arr
	v.obj = w.Obj
	v.geom = w.Geom
	v.rid = w.Rid
	v.rng = w.Rng
	return nil
}
