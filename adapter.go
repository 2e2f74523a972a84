package chronicle

import "github.com/jrhy/chronicle/ot"

// Adapter binds a Chronicle to one live value. Apply and Revert mutate
// the value; the embedded Algebra supplies the inversion and transform
// Chronicle needs for traversal and merges. Revert(op) must have the same
// effect as Apply(Invert(op)).
type Adapter[O any] interface {
	ot.Algebra[O]
	Apply(op O) error
	Revert(op O) error
}

// ArrayAdapter applies array operations to a caller-owned slice.
type ArrayAdapter struct {
	ot.Array
	arr *[]any
}

func NewArrayAdapter(arr *[]any) *ArrayAdapter {
	return &ArrayAdapter{arr: arr}
}

func (a *ArrayAdapter) Apply(op ot.ArrayOp) error {
	out, err := op.Apply(*a.arr)
	if err != nil {
		return err
	}
	*a.arr = out
	return nil
}

func (a *ArrayAdapter) Revert(op ot.ArrayOp) error {
	return a.Apply(op.Invert())
}

// ObjectAdapter applies object operations to a caller-owned map.
type ObjectAdapter struct {
	ot.Object
	obj map[string]any
}

func NewObjectAdapter(obj map[string]any) *ObjectAdapter {
	return &ObjectAdapter{obj: obj}
}

func (a *ObjectAdapter) Apply(op ot.ObjectOp) error {
	return op.Apply(a.obj)
}

func (a *ObjectAdapter) Revert(op ot.ObjectOp) error {
	return op.Invert().Apply(a.obj)
}

// CounterAdapter applies arithmetic steps to a caller-owned number.
type CounterAdapter struct {
	ot.Counter
	value *float64
}

func NewCounterAdapter(value *float64) *CounterAdapter {
	return &CounterAdapter{value: value}
}

func (a *CounterAdapter) Apply(op ot.CounterOp) error {
	v, err := op.Apply(*a.value)
	if err != nil {
		return err
	}
	*a.value = v
	return nil
}

func (a *CounterAdapter) Revert(op ot.CounterOp) error {
	return a.Apply(op.Invert())
}
