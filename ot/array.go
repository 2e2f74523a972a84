package ot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ArrayKind tags an ArrayOp.
type ArrayKind uint8

const (
	ArrayNop ArrayKind = iota
	ArrayInsert
	ArrayDelete
	ArrayMove
)

func (k ArrayKind) String() string {
	switch k {
	case ArrayInsert:
		return "+"
	case ArrayDelete:
		return "-"
	case ArrayMove:
		return ">>"
	default:
		return "NOP"
	}
}

// ArrayOp is an operation on an ordered array.
//
// For Insert and Delete, Pos is the index and Value the element inserted
// or removed. Delete keeps the value so it can be inverted. For Move, Pos
// is the source index and Target the slot the element lands in, counted
// in the array after the element has been taken out.
type ArrayOp struct {
	Kind   ArrayKind
	Pos    int
	Target int
	Value  any
}

// Insert returns an operation inserting value at pos.
func Insert(pos int, value any) ArrayOp {
	return ArrayOp{Kind: ArrayInsert, Pos: pos, Value: value}
}

// Delete returns an operation removing value, found at pos.
func Delete(pos int, value any) ArrayOp {
	return ArrayOp{Kind: ArrayDelete, Pos: pos, Value: value}
}

// Move returns an operation moving the element at src to slot dst.
func Move(src, dst int) ArrayOp {
	return ArrayOp{Kind: ArrayMove, Pos: src, Target: dst}
}

// ArrayNoop returns the operation that does nothing.
func ArrayNoop() ArrayOp {
	return ArrayOp{Kind: ArrayNop}
}

// IsNop reports whether applying op leaves every array unchanged.
func (op ArrayOp) IsNop() bool {
	return op.Kind == ArrayNop || (op.Kind == ArrayMove && op.Pos == op.Target)
}

func (op ArrayOp) String() string {
	switch op.Kind {
	case ArrayInsert, ArrayDelete:
		return fmt.Sprintf("[%s,%d,%v]", op.Kind, op.Pos, op.Value)
	case ArrayMove:
		return fmt.Sprintf("[%s,%d,%d]", op.Kind, op.Pos, op.Target)
	default:
		return "[NOP]"
	}
}

// Apply runs op against arr and returns the resulting array. arr's
// backing storage may be reused; on error arr is left untouched.
func (op ArrayOp) Apply(arr []any) ([]any, error) {
	switch op.Kind {
	case ArrayNop:
		return arr, nil
	case ArrayInsert:
		if op.Pos < 0 || op.Pos > len(arr) {
			return arr, fmt.Errorf("%w: insert at %d, length %d", ErrApplyConflict, op.Pos, len(arr))
		}
		return slices.Insert(arr, op.Pos, deepCopy(op.Value)), nil
	case ArrayDelete:
		if op.Pos < 0 || op.Pos >= len(arr) {
			return arr, fmt.Errorf("%w: delete at %d, length %d", ErrApplyConflict, op.Pos, len(arr))
		}
		if !equalValues(arr[op.Pos], op.Value) {
			return arr, fmt.Errorf("%w: delete at %d expected %v, found %v", ErrApplyConflict, op.Pos, op.Value, arr[op.Pos])
		}
		return slices.Delete(arr, op.Pos, op.Pos+1), nil
	case ArrayMove:
		if op.Pos < 0 || op.Pos >= len(arr) || op.Target < 0 || op.Target >= len(arr) {
			return arr, fmt.Errorf("%w: move %d to %d, length %d", ErrApplyConflict, op.Pos, op.Target, len(arr))
		}
		v := arr[op.Pos]
		arr = slices.Delete(arr, op.Pos, op.Pos+1)
		return slices.Insert(arr, op.Target, v), nil
	}
	return arr, fmt.Errorf("unknown array operation kind %d", op.Kind)
}

// Invert returns the operation undoing op.
func (op ArrayOp) Invert() ArrayOp {
	switch op.Kind {
	case ArrayInsert:
		return Delete(op.Pos, op.Value)
	case ArrayDelete:
		return Insert(op.Pos, op.Value)
	case ArrayMove:
		return Move(op.Target, op.Pos)
	}
	return op
}

// MarshalJSON encodes op as its tuple form, e.g. ["+",1,"x"] or [">>",0,2].
// The kind is written unescaped; json.Marshal of an enclosing value may
// still escape it unless its encoder disables HTML escaping.
func (op ArrayOp) MarshalJSON() ([]byte, error) {
	var tuple []any
	switch op.Kind {
	case ArrayInsert, ArrayDelete:
		tuple = []any{op.Kind.String(), op.Pos, op.Value}
	case ArrayMove:
		tuple = []any{op.Kind.String(), op.Pos, op.Target}
	default:
		tuple = []any{op.Kind.String()}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tuple); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (op *ArrayOp) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("array operation: %w", err)
	}
	if len(tuple) == 0 {
		return fmt.Errorf("array operation: empty tuple")
	}
	var code string
	if err := json.Unmarshal(tuple[0], &code); err != nil {
		return fmt.Errorf("array operation code: %w", err)
	}
	if code == ArrayNop.String() {
		*op = ArrayNoop()
		return nil
	}
	if len(tuple) != 3 {
		return fmt.Errorf("array operation %q: want 3 elements, got %d", code, len(tuple))
	}
	var out ArrayOp
	if err := json.Unmarshal(tuple[1], &out.Pos); err != nil {
		return fmt.Errorf("array operation position: %w", err)
	}
	switch code {
	case ArrayInsert.String(), ArrayDelete.String():
		out.Kind = ArrayInsert
		if code == ArrayDelete.String() {
			out.Kind = ArrayDelete
		}
		if err := json.Unmarshal(tuple[2], &out.Value); err != nil {
			return fmt.Errorf("array operation value: %w", err)
		}
	case ArrayMove.String():
		out.Kind = ArrayMove
		if err := json.Unmarshal(tuple[2], &out.Target); err != nil {
			return fmt.Errorf("array operation target: %w", err)
		}
	default:
		return fmt.Errorf("unknown array operation %q", code)
	}
	*op = out
	return nil
}

// Array is the Algebra of ArrayOp.
type Array struct{}

func (Array) Invert(op ArrayOp) ArrayOp { return op.Invert() }

func (Array) Transform(a, b ArrayOp) (ArrayOp, ArrayOp) { return TransformArray(a, b) }

// TransformArray returns (a', b') such that b' applies after a and a'
// applies after b with the same result. On an exact tie a is taken to
// have happened first.
func TransformArray(a, b ArrayOp) (ArrayOp, ArrayOp) {
	if a.Kind == ArrayNop || b.Kind == ArrayNop {
		return a, b
	}
	switch a.Kind {
	case ArrayInsert:
		switch b.Kind {
		case ArrayInsert:
			return transformInserts(a, b)
		case ArrayDelete:
			return transformInsertDelete(a, b)
		case ArrayMove:
			mb, ia := transformMoveInsert(b, a, false)
			return ia, mb
		}
	case ArrayDelete:
		switch b.Kind {
		case ArrayInsert:
			ib, da := transformInsertDelete(b, a)
			return da, ib
		case ArrayDelete:
			return transformDeletes(a, b)
		case ArrayMove:
			mb, da := transformMoveDelete(b, a)
			return da, mb
		}
	case ArrayMove:
		switch b.Kind {
		case ArrayInsert:
			return transformMoveInsert(a, b, true)
		case ArrayDelete:
			return transformMoveDelete(a, b)
		case ArrayMove:
			return transformMoves(a, b)
		}
	}
	panic(fmt.Sprintf("transform: unknown array operation kinds %d, %d", a.Kind, b.Kind))
}

func transformInserts(a, b ArrayOp) (ArrayOp, ArrayOp) {
	if a.Pos <= b.Pos {
		return a, Insert(b.Pos+1, b.Value)
	}
	return Insert(a.Pos+1, a.Value), b
}

func transformDeletes(a, b ArrayOp) (ArrayOp, ArrayOp) {
	switch {
	case a.Pos < b.Pos:
		return a, Delete(b.Pos-1, b.Value)
	case a.Pos > b.Pos:
		return Delete(a.Pos-1, a.Value), b
	}
	// the same element was deleted on both sides
	return ArrayNoop(), ArrayNoop()
}

// transformInsertDelete takes an insert and a delete. An insert at the
// deleted index lands before the deleted element.
func transformInsertDelete(ins, del ArrayOp) (ArrayOp, ArrayOp) {
	if ins.Pos <= del.Pos {
		return ins, Delete(del.Pos+1, del.Value)
	}
	return Insert(ins.Pos-1, ins.Value), del
}

// moveOrdering names how a move's source s and target t sit relative to
// the position p of a concurrent insert or delete.
type moveOrdering int

const (
	srcTgtPos         moveOrdering = iota + 1 // s < t < p
	srcPosTgt                                 // s < p < t
	tgtSrcPos                                 // t < s < p
	tgtPosSrc                                 // t < p < s
	posSrcTgt                                 // p < s < t
	posTgtSrc                                 // p < t < s
	nopBeforePos                              // s == t < p
	nopAfterPos                               // p < s == t
	srcAtPosBeforeTgt                         // s == p < t
	srcAtPosAfterTgt                          // t < s == p
	tgtAtPosBeforeSrc                         // t == p < s
	tgtAtPosAfterSrc                          // s < t == p
	allAtPos                                  // s == t == p
)

func classifyMove(s, t, p int) moveOrdering {
	switch {
	case s < t && t < p:
		return srcTgtPos
	case s < p && p < t:
		return srcPosTgt
	case t < s && s < p:
		return tgtSrcPos
	case t < p && p < s:
		return tgtPosSrc
	case p < s && s < t:
		return posSrcTgt
	case p < t && t < s:
		return posTgtSrc
	case s == t && t < p:
		return nopBeforePos
	case p < s && s == t:
		return nopAfterPos
	case s == p && p < t:
		return srcAtPosBeforeTgt
	case t < s && s == p:
		return srcAtPosAfterTgt
	case t == p && p < s:
		return tgtAtPosBeforeSrc
	case s < t && t == p:
		return tgtAtPosAfterSrc
	}
	return allAtPos
}

func transformMoveDelete(m, del ArrayOp) (ArrayOp, ArrayOp) {
	s, t, p := m.Pos, m.Target, del.Pos
	switch classifyMove(s, t, p) {
	case srcTgtPos, tgtSrcPos, nopBeforePos:
		return m, del
	case srcPosTgt, tgtAtPosAfterSrc:
		return Move(s, t-1), Delete(p-1, del.Value)
	case tgtPosSrc, tgtAtPosBeforeSrc:
		return Move(s-1, t), Delete(p+1, del.Value)
	case posSrcTgt, posTgtSrc, nopAfterPos:
		return Move(s-1, t-1), del
	default:
		// srcAtPosBeforeTgt, srcAtPosAfterTgt, allAtPos: the moved
		// element itself is gone, wherever it ended up.
		return ArrayNoop(), Delete(t, del.Value)
	}
}

// transformMoveInsert takes a move and an insert. moveFirst settles the
// one true tie, an insert at the slot the element is moved to.
func transformMoveInsert(m, ins ArrayOp, moveFirst bool) (ArrayOp, ArrayOp) {
	s, t, p := m.Pos, m.Target, ins.Pos
	switch classifyMove(s, t, p) {
	case srcTgtPos, tgtSrcPos, nopBeforePos:
		return m, ins
	case srcPosTgt, tgtAtPosAfterSrc:
		return Move(s, t+1), Insert(p-1, ins.Value)
	case tgtPosSrc, srcAtPosAfterTgt:
		return Move(s+1, t), Insert(p+1, ins.Value)
	case tgtAtPosBeforeSrc:
		if moveFirst {
			return Move(s+1, t), Insert(p+1, ins.Value)
		}
		return Move(s+1, t+1), ins
	default:
		// posSrcTgt, posTgtSrc, nopAfterPos, srcAtPosBeforeTgt, allAtPos
		return Move(s+1, t+1), ins
	}
}

func transformMoves(a, b ArrayOp) (ArrayOp, ArrayOp) {
	s1, t1, s2, t2 := a.Pos, a.Target, b.Pos, b.Target
	if s1 == s2 {
		if t1 == t2 {
			return ArrayNoop(), ArrayNoop()
		}
		// both moved the same element; b's destination wins
		return ArrayNoop(), Move(t1, t2)
	}
	if s1 == t1 && s2 == t2 {
		return a, b
	}

	// k is b's source once a's element is lifted out, j is a's source
	// once b's element is lifted out.
	k, j := s2, s1
	if s2 > s1 {
		k--
	} else {
		j--
	}
	// destinations in the array with both elements lifted out
	t1c, t2c := t1, t2
	if t1 > k {
		t1c--
	}
	if t2 > j {
		t2c--
	}

	var aFirst bool
	switch {
	case t1c < t2c:
		aFirst = true
	case t1c > t2c:
		aFirst = false
	default:
		aFirst = moveTieBreak(s1, t1, k, s2, t2, j)
	}

	var fa, fb int
	if aFirst {
		fa, fb = t1c, t2c+1
	} else {
		fa, fb = t1c+1, t2c
	}
	sa, sb := j, k
	if j >= t2 {
		sa++
	}
	if k >= t1 {
		sb++
	}
	return Move(sa, fa), Move(sb, fb)
}

// moveTieBreak decides which of two moves landing in the same slot ends
// up first. A move placed directly beside the other move's element keeps
// that relation; otherwise a goes first.
func moveTieBreak(s1, t1, k, s2, t2, j int) bool {
	if s1 != t1 {
		switch t1 {
		case k:
			return true
		case k + 1:
			return false
		}
	}
	if s2 != t2 {
		switch t2 {
		case j:
			return false
		case j + 1:
			return true
		}
	}
	return true
}
