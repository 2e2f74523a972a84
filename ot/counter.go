package ot

import "fmt"

// CounterKind names an arithmetic step on a number.
type CounterKind string

const (
	Plus  CounterKind = "plus"
	Minus CounterKind = "minus"
	Times CounterKind = "times"
	Div   CounterKind = "div"
)

// CounterOp is an arithmetic step applied to a single number.
type CounterOp struct {
	Kind    CounterKind `json:"op"`
	Operand float64     `json:"val"`
}

// Apply returns v with op applied. Dividing by zero is a conflict, as is
// multiplying by zero, which could not be inverted.
func (op CounterOp) Apply(v float64) (float64, error) {
	switch op.Kind {
	case Plus:
		return v + op.Operand, nil
	case Minus:
		return v - op.Operand, nil
	case Times, Div:
		if op.Operand == 0 {
			return v, fmt.Errorf("%w: %s by zero", ErrApplyConflict, op.Kind)
		}
		if op.Kind == Times {
			return v * op.Operand, nil
		}
		return v / op.Operand, nil
	}
	return v, fmt.Errorf("unknown counter operation %q", op.Kind)
}

func (op CounterOp) Invert() CounterOp {
	inverse := map[CounterKind]CounterKind{Plus: Minus, Minus: Plus, Times: Div, Div: Times}
	return CounterOp{Kind: inverse[op.Kind], Operand: op.Operand}
}

func (op CounterOp) String() string {
	return fmt.Sprintf("%s(%g)", op.Kind, op.Operand)
}

// Counter is the Algebra of CounterOp. Arithmetic steps are rebased
// without adjustment, so concurrent counter merges replay both sides as
// they were recorded.
type Counter struct{}

func (Counter) Invert(op CounterOp) CounterOp { return op.Invert() }

func (Counter) Transform(a, b CounterOp) (CounterOp, CounterOp) { return a, b }
