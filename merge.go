package chronicle

import (
	"context"
	"fmt"
	"slices"

	"github.com/jrhy/chronicle/ot"
)

// MergeOptions carries the optional inputs of Merge.
type MergeOptions struct {
	// Sequence lists, for StrategyManual, the changes of both branches
	// in the order they should be replayed from the common ancestor.
	// Changes of either branch that are not listed are left out.
	Sequence []string
	Meta     map[string]any
}

// Merge joins the branch ending at other into the current position.
//
// If other is already an ancestor of the position nothing happens. If the
// position is an ancestor of other, the Chronicle fast-forwards to it. Otherwise a merge change is recorded on top of the
// position, reconciling the operations of both branches since their
// nearest common ancestor according to strategy. The returned id is the
// new position.
func (c *Chronicle[O]) Merge(ctx context.Context, other string, strategy Strategy, opts *MergeOptions) (string, error) {
	if opts == nil {
		opts = &MergeOptions{}
	}
	if !c.index.Contains(other) {
		return "", fmt.Errorf("merge %s: %w", other, ErrUnknownChange)
	}
	done, err := c.isAncestor(ctx, other, c.position)
	if err != nil {
		return "", fmt.Errorf("merge %s: %w", other, err)
	}
	if done {
		return c.position, nil
	}
	base, up, down, err := c.commonAncestor(ctx, c.position, other)
	if err != nil {
		return "", fmt.Errorf("merge %s: %w", other, err)
	}
	if len(up) == 0 {
		if err := c.open(ctx, other); err != nil {
			return "", fmt.Errorf("merge %s: fast-forward: %w", other, err)
		}
		if err := c.updateRefs(ctx, true); err != nil {
			return "", fmt.Errorf("merge %s: %w", other, err)
		}
		c.notify(EventFastForward, other)
		return other, nil
	}

	merge, err := c.reconcile(ctx, base, up, down, strategy, opts.Sequence)
	if err != nil {
		return "", fmt.Errorf("merge %s: %w", other, err)
	}
	merge.Branch = other
	if err := c.play(merge.Mine); err != nil {
		return "", fmt.Errorf("merge %s: %w", other, err)
	}
	change := &Change[O]{
		ID:     c.ids.NewID(),
		Parent: c.position,
		Merge:  merge,
		Meta:   opts.Meta,
	}
	if err := c.index.Add(ctx, change); err != nil {
		if rerr := c.play(ot.InvertChain[O](c.adapter, merge.Mine)); rerr != nil {
			c.logger.Error("reverting unrecorded merge", "error", rerr)
		}
		return "", fmt.Errorf("merge %s: %w", other, err)
	}
	c.position = change.ID
	c.logger.Debug("merged", "id", change.ID, "branch", other, "base", base, "strategy", string(strategy))
	if err := c.updateRefs(ctx, true); err != nil {
		return change.ID, fmt.Errorf("merge %s: %w", other, err)
	}
	c.notify(EventMerge, change.ID)
	return change.ID, nil
}

// reconcile computes the Merge record for joining the leg down into the
// leg up. Both legs are ordered from their tip towards base.
func (c *Chronicle[O]) reconcile(ctx context.Context, base string, up, down []string, strategy Strategy, sequence []string) (*Merge[O], error) {
	mine, err := c.descend(ctx, base, up)
	if err != nil {
		return nil, err
	}
	theirs, err := c.descend(ctx, base, down)
	if err != nil {
		return nil, err
	}
	undoMine := ot.InvertChain[O](c.adapter, mine)
	undoTheirs := ot.InvertChain[O](c.adapter, theirs)

	m := &Merge[O]{Strategy: strategy}
	switch strategy {
	case StrategyAuto:
		rebasedMine, rebasedTheirs := ot.TransformChains[O](c.adapter, mine, theirs)
		m.Mine, m.Theirs = rebasedTheirs, rebasedMine
	case StrategyMine:
		m.Mine = []O{}
		m.Theirs = append(undoTheirs, mine...)
	case StrategyTheirs:
		m.Mine = append(undoMine, theirs...)
		m.Theirs = []O{}
	case StrategyManual:
		result, err := c.sequence(ctx, base, up, down, sequence)
		if err != nil {
			return nil, err
		}
		m.Mine = append(undoMine, result...)
		m.Theirs = append(undoTheirs, result...)
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
	return m, nil
}

// unit is one change's operations on a branch being replayed: the step
// from the previous change on the leg into it.
type unit[O any] struct {
	id  string
	ops []O
}

func (c *Chronicle[O]) units(ctx context.Context, base string, leg []string) ([]unit[O], error) {
	out := make([]unit[O], 0, len(leg))
	from := base
	for n := len(leg) - 1; n >= 0; n-- {
		ops, err := c.edge(ctx, from, leg[n])
		if err != nil {
			return nil, err
		}
		out = append(out, unit[O]{id: leg[n], ops: slices.Clone(ops)})
		from = leg[n]
	}
	return out, nil
}

// sequence returns the operations that replay, from the common base,
// the changes named by order. Each branch first drops its unlisted
// changes; then the listed changes are taken in order, and each one
// taken rebases the other branch's remaining operations past itself.
func (c *Chronicle[O]) sequence(ctx context.Context, base string, up, down []string, order []string) ([]O, error) {
	mine, err := c.units(ctx, base, up)
	if err != nil {
		return nil, err
	}
	theirs, err := c.units(ctx, base, down)
	if err != nil {
		return nil, err
	}

	const (
		onMine = iota + 1
		onTheirs
	)
	side := map[string]int{}
	for _, u := range mine {
		side[u.id] = onMine
	}
	for _, u := range theirs {
		side[u.id] = onTheirs
	}
	rank := map[string]int{}
	for n, id := range order {
		if side[id] == 0 {
			return nil, fmt.Errorf("%w: %s is on neither branch", ErrInvalidSequence, id)
		}
		if _, dup := rank[id]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidSequence, id)
		}
		rank[id] = n
	}
	for _, branch := range [][]unit[O]{mine, theirs} {
		last := -1
		for _, u := range branch {
			if n, ok := rank[u.id]; ok {
				if n < last {
					return nil, fmt.Errorf("%w: %s listed before its ancestors", ErrInvalidSequence, u.id)
				}
				last = n
			}
		}
	}

	mine = c.dropUnlisted(mine, rank)
	theirs = c.dropUnlisted(theirs, rank)

	var result []O
	for _, id := range order {
		var head unit[O]
		var rest []unit[O]
		if side[id] == onMine {
			head, mine = mine[0], mine[1:]
			rest = theirs
		} else {
			head, theirs = theirs[0], theirs[1:]
			rest = mine
		}
		for _, op := range head.ops {
			result = append(result, op)
			for _, u := range rest {
				for k := range u.ops {
					op, u.ops[k] = c.adapter.Transform(op, u.ops[k])
				}
			}
		}
	}
	return result, nil
}

// dropUnlisted removes the units missing from rank, rebasing the units
// after each dropped one as if it had never happened. The returned units
// own fresh op slices.
func (c *Chronicle[O]) dropUnlisted(branch []unit[O], rank map[string]int) []unit[O] {
	var kept []unit[O]
	var undo []O
	for _, u := range branch {
		_, keep := rank[u.id]
		ops := make([]O, 0, len(u.ops))
		for _, op := range u.ops {
			for k := range undo {
				undo[k], op = c.adapter.Transform(undo[k], op)
			}
			if keep {
				ops = append(ops, op)
			} else {
				undo = append(undo, c.adapter.Invert(op))
			}
		}
		if keep {
			kept = append(kept, unit[O]{id: u.id, ops: ops})
		}
	}
	return kept
}
