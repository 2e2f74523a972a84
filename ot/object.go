package ot

import (
	"fmt"
	"slices"
	"strings"
)

// ObjectKind tags an ObjectOp.
type ObjectKind uint8

const (
	ObjectNop ObjectKind = iota
	ObjectCreate
	ObjectDelete
	ObjectUpdate
)

var objectKindNames = map[ObjectKind]string{
	ObjectNop:    "NOP",
	ObjectCreate: "create",
	ObjectDelete: "delete",
	ObjectUpdate: "update",
}

func (k ObjectKind) String() string {
	if name, ok := objectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ObjectKind(%d)", uint8(k))
}

func (k ObjectKind) MarshalText() ([]byte, error) {
	if _, ok := objectKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown object operation kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ObjectKind) UnmarshalText(b []byte) error {
	for kind, name := range objectKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown object operation %q", b)
}

// ObjectOp is an operation on a nested map[string]any, addressed by a
// path of keys. Value is the created value, the deleted value, or for an
// update the old value; NewValue is an update's new value.
type ObjectOp struct {
	Kind     ObjectKind `json:"type"`
	Path     []string   `json:"path,omitempty"`
	Value    any        `json:"val,omitempty"`
	NewValue any        `json:"new,omitempty"`
}

func Create(path []string, value any) ObjectOp {
	return ObjectOp{Kind: ObjectCreate, Path: path, Value: value}
}

func Remove(path []string, value any) ObjectOp {
	return ObjectOp{Kind: ObjectDelete, Path: path, Value: value}
}

func Update(path []string, oldValue, newValue any) ObjectOp {
	return ObjectOp{Kind: ObjectUpdate, Path: path, Value: oldValue, NewValue: newValue}
}

func ObjectNoop() ObjectOp {
	return ObjectOp{Kind: ObjectNop}
}

func (op ObjectOp) String() string {
	p := strings.Join(op.Path, ".")
	switch op.Kind {
	case ObjectCreate, ObjectDelete:
		return fmt.Sprintf("%s(%s, %v)", op.Kind, p, op.Value)
	case ObjectUpdate:
		return fmt.Sprintf("%s(%s, %v -> %v)", op.Kind, p, op.Value, op.NewValue)
	}
	return op.Kind.String()
}

// Apply runs op against obj in place. Create makes any missing
// intermediate maps; the other kinds require the path to exist.
func (op ObjectOp) Apply(obj map[string]any) error {
	if op.Kind == ObjectNop {
		return nil
	}
	if len(op.Path) == 0 {
		return fmt.Errorf("%w: %s with empty path", ErrApplyConflict, op.Kind)
	}
	parent, err := walk(obj, op.Path[:len(op.Path)-1], op.Kind == ObjectCreate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	key := op.Path[len(op.Path)-1]
	current, present := parent[key]
	switch op.Kind {
	case ObjectCreate:
		if present {
			return fmt.Errorf("%w: %s: key exists", ErrApplyConflict, op)
		}
		parent[key] = deepCopy(op.Value)
	case ObjectDelete:
		if !present {
			return fmt.Errorf("%w: %s: no such key", ErrApplyConflict, op)
		}
		if !equalValues(current, op.Value) {
			return fmt.Errorf("%w: %s: found %v", ErrApplyConflict, op, current)
		}
		delete(parent, key)
	case ObjectUpdate:
		if !present {
			return fmt.Errorf("%w: %s: no such key", ErrApplyConflict, op)
		}
		if !equalValues(current, op.Value) {
			return fmt.Errorf("%w: %s: found %v", ErrApplyConflict, op, current)
		}
		parent[key] = deepCopy(op.NewValue)
	default:
		return fmt.Errorf("unknown object operation kind %d", op.Kind)
	}
	return nil
}

func walk(obj map[string]any, path []string, create bool) (map[string]any, error) {
	cur := obj
	for i, key := range path {
		next, present := cur[key]
		if !present {
			if !create {
				return nil, fmt.Errorf("%w: no such key %s", ErrApplyConflict, strings.Join(path[:i+1], "."))
			}
			m := map[string]any{}
			cur[key] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, not an object", ErrApplyConflict, strings.Join(path[:i+1], "."), next)
		}
		cur = m
	}
	return cur, nil
}

// Invert returns the operation undoing op.
func (op ObjectOp) Invert() ObjectOp {
	switch op.Kind {
	case ObjectCreate:
		return Remove(op.Path, op.Value)
	case ObjectDelete:
		return Create(op.Path, op.Value)
	case ObjectUpdate:
		return Update(op.Path, op.NewValue, op.Value)
	}
	return op
}

// outcome is what op leaves at its path.
func (op ObjectOp) outcome() (value any, present bool) {
	switch op.Kind {
	case ObjectCreate:
		return op.Value, true
	case ObjectUpdate:
		return op.NewValue, true
	}
	return nil, false
}

// prior is what op expects at its path before it runs.
func (op ObjectOp) prior() (value any, present bool) {
	switch op.Kind {
	case ObjectDelete, ObjectUpdate:
		return op.Value, true
	}
	return nil, false
}

func hasPrefix(path, prefix []string) bool {
	return len(prefix) <= len(path) && slices.Equal(path[:len(prefix)], prefix)
}

// HasConflict reports whether a and b touch overlapping paths: the same
// key, or a key and something nested below it. Two operations on one
// path always conflict: either one of them is structural (create or
// delete) or both are updates.
func HasConflict(a, b ObjectOp) bool {
	if a.Kind == ObjectNop || b.Kind == ObjectNop {
		return false
	}
	return hasPrefix(a.Path, b.Path) || hasPrefix(b.Path, a.Path)
}

// TransformObject rebases a and b past each other. Operations on
// disjoint paths commute. On a conflict the second operand wins: a'
// becomes a no-op and b' takes the shorter of the two paths from a's
// outcome there to b's.
func TransformObject(a, b ObjectOp) (ObjectOp, ObjectOp) {
	if !HasConflict(a, b) {
		return a, b
	}
	outer := a
	if len(b.Path) < len(a.Path) {
		outer = b
	}
	path := outer.Path
	before, had := outer.prior()
	va, pa := outcomeAt(a, path, before, had)
	vb, pb := outcomeAt(b, path, before, had)
	switch {
	case !pa && !pb:
		return ObjectNoop(), ObjectNoop()
	case !pa:
		return ObjectNoop(), Create(path, vb)
	case !pb:
		return ObjectNoop(), Remove(path, va)
	}
	return ObjectNoop(), Update(path, va, vb)
}

// outcomeAt is what op leaves at path, a prefix of op.Path, when path
// held before. An op that cannot run there leaves before untouched.
func outcomeAt(op ObjectOp, path []string, before any, had bool) (any, bool) {
	if len(op.Path) == len(path) {
		return op.outcome()
	}
	if len(path) == 0 {
		return before, had
	}
	doc := map[string]any{}
	if had {
		if err := Create(path, before).Apply(doc); err != nil {
			return before, had
		}
	}
	if err := op.Apply(doc); err != nil {
		return before, had
	}
	parent, err := walk(doc, path[:len(path)-1], false)
	if err != nil {
		return nil, false
	}
	value, present := parent[path[len(path)-1]]
	return value, present
}

// Object is the Algebra of ObjectOp.
type Object struct{}

func (Object) Invert(op ObjectOp) ObjectOp { return op.Invert() }

func (Object) Transform(a, b ObjectOp) (ObjectOp, ObjectOp) { return TransformObject(a, b) }
