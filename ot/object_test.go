package ot

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyObject(t *testing.T, input map[string]any, ops ...ObjectOp) map[string]any {
	t.Helper()
	out := deepCopy(input).(map[string]any)
	for _, op := range ops {
		require.NoError(t, op.Apply(out), "applying %v", op)
	}
	return out
}

func checkObjectTransform(t *testing.T, a, b ObjectOp, input, expected map[string]any) {
	t.Helper()
	a2, b2 := TransformObject(a, b)
	assert.Equal(t, expected, applyObject(t, input, a, b2))
	assert.Equal(t, expected, applyObject(t, input, b, a2))
}

func TestObjectApply(t *testing.T) {
	t.Parallel()
	assert.Equal(t, map[string]any{"a": "bla"},
		applyObject(t, map[string]any{}, Create([]string{"a"}, "bla")))
	assert.Equal(t, map[string]any{"a": map[string]any{"b": "bla"}},
		applyObject(t, map[string]any{}, Create([]string{"a", "b"}, "bla")))
	assert.Equal(t, map[string]any{},
		applyObject(t, map[string]any{"a": "bla"}, Remove([]string{"a"}, "bla")))
	assert.Equal(t, map[string]any{"a": map[string]any{}},
		applyObject(t, map[string]any{"a": map[string]any{"b": "bla"}}, Remove([]string{"a", "b"}, "bla")))
	assert.Equal(t, map[string]any{"a": 2},
		applyObject(t, map[string]any{"a": 1}, Update([]string{"a"}, 1, 2)))
}

func TestObjectApplyConflicts(t *testing.T) {
	t.Parallel()
	for _, c := range []struct {
		op  ObjectOp
		obj map[string]any
	}{
		{Remove([]string{"a", "b"}, "bla"), map[string]any{"a": map[string]any{"c": "bla"}}},
		{Remove([]string{"a"}, "bla"), map[string]any{"a": "blupp"}},
		{Create([]string{"a"}, "bla"), map[string]any{"a": "bla"}},
		{Update([]string{"a"}, "x", "y"), map[string]any{}},
		{Update([]string{"a"}, "x", "y"), map[string]any{"a": "z"}},
		{Create([]string{"a", "b"}, 1), map[string]any{"a": "not an object"}},
		{Create(nil, 1), map[string]any{}},
	} {
		before := fmt.Sprint(c.obj)
		err := c.op.Apply(c.obj)
		assert.ErrorIs(t, err, ErrApplyConflict, "%v on %v", c.op, c.obj)
		assert.Equal(t, before, fmt.Sprint(c.obj))
	}
}

func TestObjectCreateDoesNotAliasValue(t *testing.T) {
	t.Parallel()
	value := map[string]any{"x": 1}
	op := Create([]string{"a"}, value)
	obj := map[string]any{}
	require.NoError(t, op.Apply(obj))
	require.NoError(t, Create([]string{"a", "y"}, 2).Apply(obj))
	assert.Equal(t, map[string]any{"x": 1}, op.Value)
}

func TestObjectTransformConflicts(t *testing.T) {
	t.Parallel()
	path := []string{"a"}

	a, b := Create(path, "bla"), Create(path, "blupp")
	assert.True(t, HasConflict(a, b))
	checkObjectTransform(t, a, b, map[string]any{}, map[string]any{"a": "blupp"})
	checkObjectTransform(t, b, a, map[string]any{}, map[string]any{"a": "bla"})

	a, b = Remove(path, "bla"), Remove(path, "bla")
	assert.True(t, HasConflict(a, b))
	checkObjectTransform(t, a, b, map[string]any{"a": "bla"}, map[string]any{})
	checkObjectTransform(t, b, a, map[string]any{"a": "bla"}, map[string]any{})

	a, b = Remove(path, "bla"), Update(path, "bla", "blupp")
	assert.True(t, HasConflict(a, b))
	checkObjectTransform(t, a, b, map[string]any{"a": "bla"}, map[string]any{"a": "blupp"})
	checkObjectTransform(t, b, a, map[string]any{"a": "bla"}, map[string]any{})

	a, b = Update(path, "bla", "blapp"), Update(path, "bla", "blupp")
	assert.True(t, HasConflict(a, b))
	checkObjectTransform(t, a, b, map[string]any{"a": "bla"}, map[string]any{"a": "blupp"})
	checkObjectTransform(t, b, a, map[string]any{"a": "bla"}, map[string]any{"a": "blapp"})
}

// Create against a deleted or updated key cannot share an input state;
// each side is checked against the input its own precondition needs.
func TestObjectTransformIllPosed(t *testing.T) {
	t.Parallel()
	path := []string{"a"}

	del, create := Remove(path, "bla"), Create(path, "blupp")
	assert.True(t, HasConflict(del, create))
	d2, c2 := TransformObject(del, create)
	assert.Equal(t, map[string]any{"a": "blupp"}, applyObject(t, map[string]any{"a": "bla"}, del, c2))
	assert.Equal(t, map[string]any{"a": "blupp"}, applyObject(t, map[string]any{}, create, d2))
	c2, d2 = TransformObject(create, del)
	assert.Equal(t, map[string]any{}, applyObject(t, map[string]any{}, create, d2))
	assert.Equal(t, map[string]any{}, applyObject(t, map[string]any{"a": "bla"}, del, c2))

	create, update := Create(path, "bla"), Update(path, "foo", "bar")
	assert.True(t, HasConflict(create, update))
	c2, u2 := TransformObject(create, update)
	assert.Equal(t, map[string]any{"a": "bar"}, applyObject(t, map[string]any{}, create, u2))
	assert.Equal(t, map[string]any{"a": "bar"}, applyObject(t, map[string]any{"a": "foo"}, update, c2))
	u2, c2 = TransformObject(update, create)
	assert.Equal(t, map[string]any{"a": "bla"}, applyObject(t, map[string]any{"a": "foo"}, update, c2))
	assert.Equal(t, map[string]any{"a": "bla"}, applyObject(t, map[string]any{}, create, u2))
}

func TestObjectTransformNestedPaths(t *testing.T) {
	t.Parallel()
	input := map[string]any{"x": map[string]any{"y": 1}}

	outer, inner := Remove([]string{"x"}, map[string]any{"y": 1}), Update([]string{"x", "y"}, 1, 2)
	assert.True(t, HasConflict(outer, inner))
	assert.True(t, HasConflict(inner, outer))
	checkObjectTransform(t, outer, inner, input, map[string]any{"x": map[string]any{"y": 2}})
	checkObjectTransform(t, inner, outer, input, map[string]any{})

	replace, create := Update([]string{"x"}, map[string]any{"y": 1}, 5), Create([]string{"x", "z"}, 3)
	checkObjectTransform(t, replace, create, input, map[string]any{"x": map[string]any{"y": 1, "z": 3}})
	checkObjectTransform(t, create, replace, input, map[string]any{"x": 5})

	assert.False(t, HasConflict(Update([]string{"x", "y"}, 1, 2), Create([]string{"xy"}, 1)))
}

func TestObjectIndependentPaths(t *testing.T) {
	t.Parallel()
	a := Update([]string{"a"}, 1, 2)
	b := Create([]string{"b", "c"}, 3)
	assert.False(t, HasConflict(a, b))
	checkObjectTransform(t, a, b, map[string]any{"a": 1}, map[string]any{"a": 2, "b": map[string]any{"c": 3}})
}

func TestObjectInvert(t *testing.T) {
	t.Parallel()
	input := map[string]any{"a": "x", "b": map[string]any{"c": 1}}
	for _, op := range []ObjectOp{
		Create([]string{"d"}, "y"),
		Remove([]string{"a"}, "x"),
		Update([]string{"b", "c"}, 1, 2),
		ObjectNoop(),
	} {
		assert.Equal(t, input, applyObject(t, input, op, op.Invert()), "%v", op)
	}
}

func TestObjectOpJSON(t *testing.T) {
	t.Parallel()
	op := Update([]string{"a", "b"}, "old", "new")
	b, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"update","path":["a","b"],"val":"old","new":"new"}`, string(b))
	var decoded ObjectOp
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, op, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"upsert"}`), &decoded))
}

type objectPair struct {
	input map[string]any
	a, b  ObjectOp
}

// genObjectOp generates an operation valid against input on one of two
// keys, so that roughly half of the generated pairs conflict.
func genObjectOp(input map[string]any) gopter.Gen {
	return gopter.CombineGens(gen.OneConstOf("k1", "k2"), gen.IntRange(0, 3)).Map(func(v []any) ObjectOp {
		key, n := v[0].(string), v[1].(int)
		path := []string{key}
		old, present := input[key]
		switch {
		case !present:
			return Create(path, n)
		case n%2 == 0:
			return Remove(path, old)
		default:
			return Update(path, old, n+10)
		}
	})
}

func genObjectPair() gopter.Gen {
	return gopter.CombineGens(gen.Bool(), gen.Bool()).FlatMap(func(v any) gopter.Gen {
		flags := v.([]any)
		input := map[string]any{}
		if flags[0].(bool) {
			input["k1"] = 1
		}
		if flags[1].(bool) {
			input["k2"] = 2
		}
		return gopter.CombineGens(genObjectOp(input), genObjectOp(input)).Map(func(ops []any) objectPair {
			return objectPair{input, ops[0].(ObjectOp), ops[1].(ObjectOp)}
		})
	}, reflect.TypeOf(objectPair{}))
}

func TestObjectConvergence(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(defaultGopterParameters)
	properties.Property("both application orders converge on the second operand", prop.ForAll(
		func(p objectPair) bool {
			a2, b2 := TransformObject(p.a, p.b)
			left := deepCopy(p.input).(map[string]any)
			if p.a.Apply(left) != nil || b2.Apply(left) != nil {
				return false
			}
			right := deepCopy(p.input).(map[string]any)
			if p.b.Apply(right) != nil || a2.Apply(right) != nil {
				return false
			}
			return equalValues(left, right)
		},
		genObjectPair()))
	properties.TestingRun(t)
}
