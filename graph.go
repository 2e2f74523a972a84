package chronicle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jrhy/chronicle/ot"
)

// ancestry is a breadth-first walk from one change through all of its
// parent links. dist counts the links from the start to each ancestor
// reached, and child names the change one link back towards the start.
type ancestry struct {
	dist  map[string]int
	child map[string]string
}

// ancestors walks up from id. Ancestors removed from the index end the
// walk along their line.
func (c *Chronicle[O]) ancestors(ctx context.Context, id string) (ancestry, error) {
	a := ancestry{dist: map[string]int{id: 0}, child: map[string]string{}}
	queue := []string{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		change, err := c.index.Get(ctx, next)
		if err != nil {
			return ancestry{}, err
		}
		for _, p := range change.Parents() {
			if _, seen := a.dist[p]; seen || !c.index.Contains(p) {
				continue
			}
			a.dist[p] = a.dist[next] + 1
			a.child[p] = next
			queue = append(queue, p)
		}
	}
	return a, nil
}

// leg lists the changes from the start of the walk down to base, base
// excluded, start first.
func (a ancestry) leg(base string) []string {
	leg := make([]string, 0, a.dist[base])
	for id := base; a.dist[id] > 0; {
		id = a.child[id]
		leg = append(leg, id)
	}
	slices.Reverse(leg)
	return leg
}

// mergeBases lists the best common ancestors of a and b: those that are
// not themselves ancestors of another common ancestor. They are ordered
// by their combined distance from a and b, ties going to the smallest
// id. More than one is returned only for criss-cross histories.
func (c *Chronicle[O]) mergeBases(ctx context.Context, a, b string) (bases []string, fromA, fromB ancestry, err error) {
	fromA, err = c.ancestors(ctx, a)
	if err != nil {
		return nil, fromA, fromB, err
	}
	fromB, err = c.ancestors(ctx, b)
	if err != nil {
		return nil, fromA, fromB, err
	}
	var common []string
	for id := range fromA.dist {
		if _, ok := fromB.dist[id]; ok {
			common = append(common, id)
		}
	}

	shadowed := map[string]bool{}
	var queue []string
	for _, id := range common {
		change, err := c.index.Get(ctx, id)
		if err != nil {
			return nil, fromA, fromB, err
		}
		queue = append(queue, change.Parents()...)
	}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if shadowed[next] || !c.index.Contains(next) {
			continue
		}
		shadowed[next] = true
		change, err := c.index.Get(ctx, next)
		if err != nil {
			return nil, fromA, fromB, err
		}
		queue = append(queue, change.Parents()...)
	}

	for _, id := range common {
		if !shadowed[id] {
			bases = append(bases, id)
		}
	}
	span := func(id string) int { return fromA.dist[id] + fromB.dist[id] }
	slices.SortFunc(bases, func(x, y string) int {
		if d := span(x) - span(y); d != 0 {
			return d
		}
		return strings.Compare(x, y)
	})
	return bases, fromA, fromB, nil
}

// commonAncestor picks the first of the merge bases of a and b. up lists
// the changes from a towards base and down the changes from b towards
// base, base excluded from both. Adjacent entries of a leg may be joined
// by a merge's branch link rather than its first parent.
func (c *Chronicle[O]) commonAncestor(ctx context.Context, a, b string) (base string, up, down []string, err error) {
	bases, fromA, fromB, err := c.mergeBases(ctx, a, b)
	if err != nil {
		return "", nil, nil, err
	}
	if len(bases) == 0 {
		return "", nil, nil, fmt.Errorf("%s and %s: %w", a, b, ErrUnrelatedHistory)
	}
	base = bases[0]
	return base, fromA.leg(base), fromB.leg(base), nil
}

// isAncestor reports whether anc can be reached from id through any
// parent links, merges included. A change is its own ancestor.
func (c *Chronicle[O]) isAncestor(ctx context.Context, anc, id string) (bool, error) {
	seen := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == anc {
			return true, nil
		}
		if seen[next] {
			continue
		}
		seen[next] = true
		change, err := c.index.Get(ctx, next)
		if errors.Is(err, ErrUnknownChange) {
			continue
		}
		if err != nil {
			return false, err
		}
		queue = append(queue, change.Parents()...)
	}
	return false, nil
}

// descend returns the operations taking the state at base to the state
// at leg[0]; leg is ordered from the descendant towards base, as
// commonAncestor returns it.
func (c *Chronicle[O]) descend(ctx context.Context, base string, leg []string) ([]O, error) {
	var ops []O
	from := base
	for n := len(leg) - 1; n >= 0; n-- {
		edge, err := c.edge(ctx, from, leg[n])
		if err != nil {
			return nil, err
		}
		ops = append(ops, edge...)
		from = leg[n]
	}
	return ops, nil
}

// ascend returns the operations taking the state at leg[0] back to the
// state at base.
func (c *Chronicle[O]) ascend(ctx context.Context, leg []string, base string) ([]O, error) {
	var ops []O
	for n, id := range leg {
		to := base
		if n+1 < len(leg) {
			to = leg[n+1]
		}
		edge, err := c.edge(ctx, id, to)
		if err != nil {
			return nil, err
		}
		ops = append(ops, edge...)
	}
	return ops, nil
}

// edge returns the operations taking the state at from to the state at
// to, which must be adjacent.
func (c *Chronicle[O]) edge(ctx context.Context, from, to string) ([]O, error) {
	src, err := c.index.Get(ctx, from)
	if err != nil {
		return nil, err
	}
	dst, err := c.index.Get(ctx, to)
	if err != nil {
		return nil, err
	}
	switch {
	case dst.ID != RootID && dst.Parent == from:
		return dst.ops(), nil
	case dst.IsMerge() && dst.Merge.Branch == from:
		return dst.Merge.Theirs, nil
	case src.ID != RootID && src.Parent == to:
		return ot.InvertChain[O](c.adapter, src.ops()), nil
	case src.IsMerge() && src.Merge.Branch == to:
		return ot.InvertChain[O](c.adapter, src.Merge.Theirs), nil
	}
	return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidPath)
}
