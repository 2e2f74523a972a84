/*
Package ot implements the operational transform algebras used by
chronicle: ordered arrays, nested keyed objects, and a numeric counter.

Every algebra provides three pure functions. Apply runs an operation
against a value, Invert returns the operation that undoes it, and
Transform takes two operations that were derived from the same state and
returns versions of each that can be applied after the other, so that

	Apply(b', Apply(a, S)) == Apply(a', Apply(b, S))

where (a', b') = Transform(a, b).

Ties (equal positions, the same key touched by both sides) are never
errors. They are settled by argument order, so Transform(a, b) and
Transform(b, a) can legitimately converge on different states.
*/
package ot

import (
	"errors"
	"reflect"
)

// ErrApplyConflict is returned when an operation's precondition does not
// hold for the value it is applied to: a delete whose recorded value
// differs from the live one, a create on an existing key, or an index out
// of range.
var ErrApplyConflict = errors.New("apply conflict")

// Algebra is the invert/transform half of an operation type. Chronicle
// merges only ever need these two functions; applying is left to the
// adapter that owns the live value.
type Algebra[O any] interface {
	Invert(op O) O
	Transform(a, b O) (O, O)
}

// InvertChain returns the sequence that undoes ops: each operation
// inverted, in reverse order.
func InvertChain[O any](alg Algebra[O], ops []O) []O {
	out := make([]O, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = alg.Invert(op)
	}
	return out
}

// TransformChains is Transform lifted to sequences. as and bs both start
// from the same state; the results are as rebased onto the end of bs and
// bs rebased onto the end of as.
func TransformChains[O any](alg Algebra[O], as, bs []O) ([]O, []O) {
	bs = append([]O(nil), bs...)
	outA := make([]O, 0, len(as))
	for _, a := range as {
		for j := range bs {
			a, bs[j] = alg.Transform(a, bs[j])
		}
		outA = append(outA, a)
	}
	return outA, bs
}

// TransformPast rebases op, which starts where prior starts, so that it
// can be applied after prior.
func TransformPast[O any](alg Algebra[O], prior []O, op O) O {
	for _, p := range prior {
		_, op = alg.Transform(p, op)
	}
	return op
}

// equalValues compares two operation payloads. Numbers compare by value
// regardless of their Go type, since payloads decoded from JSON come back
// as float64.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !equalValues(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// deepCopy copies the JSON-shaped containers in v so that values stored
// in live state never alias values held by recorded operations.
func deepCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}
