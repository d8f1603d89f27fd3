package agg

import (
	"math"
	"time"

	"github.com/surrealkv/surqlcore/internal/value"
)

// State is one accumulator's mutable per-group state. Update widens every
// numeric sample for math::sum/mean/stddev/variance to float64 and only
// remembers whether any sample was not an int, which decides whether sum
// renders as an int or a float. Decimal inputs therefore lose their exact
// precision, and a decimal mixed with a non-finite float is plain float
// arithmetic rather than an aggregation failure (see DESIGN.md).
type State struct {
	kind  Kind
	count int64

	sumI int64
	sumF float64
	hasFloat bool

	numSamples []float64 // every numeric sample of math::sum/mean/stddev/variance

	max value.Value
	min value.Value
	haveMaxMin bool

	timeMax time.Time
	timeMin time.Time
	haveTime bool

	collected []value.Value
}

// NewState starts a fresh accumulator of the given kind.
func NewState(kind Kind) *State { return &State{kind: kind} }

// Update folds one row's argument value (or value.None() for count()) into
// the accumulator.
func (s *State) Update(v value.Value) {
	s.count++
	switch s.kind {
	case KindCount:
		return
	case KindAccumulate:
		s.collected = append(s.collected, v)
		return
	case KindMathSum, KindMathMean, KindMathStdDev, KindMathVariance:
		n, ok := v.AsNumber()
		if !ok {
			return
		}
		f := n.Float()
		s.numSamples = append(s.numSamples, f)
		if n.Kind != value.NumberInt {
			s.hasFloat = true
		}
		s.sumF += f
		return
	case KindMathMax, KindMathMin:
		if !s.haveMaxMin {
			s.max, s.min = v, v
			s.haveMaxMin = true
			return
		}
		if value.Compare(v, s.max) > 0 {
			s.max = v
		}
		if value.Compare(v, s.min) < 0 {
			s.min = v
		}
		return
	case KindTimeMax, KindTimeMin:
		t, ok := v.AsDatetime()
		if !ok {
			return
		}
		if !s.haveTime {
			s.timeMax, s.timeMin = t, t
			s.haveTime = true
			return
		}
		if t.After(s.timeMax) {
			s.timeMax = t
		}
		if t.Before(s.timeMin) {
			s.timeMin = t
		}
	}
}

// Result produces the accumulator's final value for its group.
func (s *State) Result() value.Value {
	switch s.kind {
	case KindCount:
		return value.Int(s.count)
	case KindAccumulate:
		return value.Array(s.collected)
	case KindMathSum:
		if s.hasFloat {
			return value.Float(s.sumF)
		}
		return value.Int(int64(s.sumF))
	case KindMathMean:
		if len(s.numSamples) == 0 {
			return value.Float(0)
		}
		return value.Float(s.sumF / float64(len(s.numSamples)))
	case KindMathStdDev:
		return value.Float(math.Sqrt(variance(s.numSamples)))
	case KindMathVariance:
		return value.Float(variance(s.numSamples))
	case KindMathMax:
		if !s.haveMaxMin {
			return value.None()
		}
		return s.max
	case KindMathMin:
		if !s.haveMaxMin {
			return value.None()
		}
		return s.min
	case KindTimeMax:
		if !s.haveTime {
			return value.None()
		}
		return value.Datetime(s.timeMax)
	case KindTimeMin:
		if !s.haveTime {
			return value.None()
		}
		return value.Datetime(s.timeMin)
	}
	return value.None()
}

func variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var mean float64
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))
	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(samples))
}
