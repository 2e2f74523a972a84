package chronicle

import (
	"context"
	"fmt"
	"log/slog"
)

// Options configures a Chronicle. A nil *Options is valid.
type Options struct {
	// IDs generates ids for recorded changes; defaults to UUIDs.
	IDs IDGenerator
	// Logger defaults to slog.Default().
	Logger   *slog.Logger
	Observer Observer
	// Branch, when set, makes the Chronicle maintain the refs
	// "<Branch>:HEAD", the last change it created or fast-forwarded to,
	// and "<Branch>:LAST", its current position.
	Branch string
}

// Chronicle tracks a position in the graph of an Index and keeps one
// live value, reached through its Adapter, in the state of that
// position.
//
// A Chronicle is not safe for concurrent use. Several Chronicles may
// share an Index.
type Chronicle[O any] struct {
	index    Index[O]
	adapter  Adapter[O]
	ids      IDGenerator
	logger   *slog.Logger
	observer Observer
	branch   string
	position string
}

// New returns a Chronicle positioned at RootID. The live value behind
// adapter is expected to be in its initial state.
func New[O any](index Index[O], adapter Adapter[O], opts *Options) *Chronicle[O] {
	if opts == nil {
		opts = &Options{}
	}
	c := &Chronicle[O]{
		index:    index,
		adapter:  adapter,
		ids:      opts.IDs,
		logger:   opts.Logger,
		observer: opts.Observer,
		branch:   opts.Branch,
		position: RootID,
	}
	if c.ids == nil {
		c.ids = UUIDs
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Position returns the id of the change the live value corresponds to.
func (c *Chronicle[O]) Position() string {
	return c.position
}

func (c *Chronicle[O]) Index() Index[O] {
	return c.index
}

func (c *Chronicle[O]) notify(kind EventKind, id string) {
	if c.observer != nil {
		c.observer.Notify(Event{Kind: kind, ID: id, Position: c.position})
	}
}

func (c *Chronicle[O]) updateRefs(ctx context.Context, head bool) error {
	if c.branch == "" {
		return nil
	}
	if head {
		if err := c.index.SetRef(ctx, c.branch+":HEAD", c.position); err != nil {
			return err
		}
	}
	return c.index.SetRef(ctx, c.branch+":LAST", c.position)
}

// Reset moves the position to id without touching the live value.
func (c *Chronicle[O]) Reset(id string) error {
	if !c.index.Contains(id) {
		return fmt.Errorf("reset %s: %w", id, ErrUnknownChange)
	}
	c.position = id
	c.notify(EventReset, id)
	return nil
}

// Record applies op to the live value and records it as a new change
// whose parent is the current position, which then moves to it.
func (c *Chronicle[O]) Record(ctx context.Context, op O) (string, error) {
	return c.RecordMeta(ctx, op, nil)
}

// RecordMeta is Record with metadata attached to the change.
func (c *Chronicle[O]) RecordMeta(ctx context.Context, op O, meta map[string]any) (string, error) {
	if err := c.adapter.Apply(op); err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	change := NewChange(c.ids.NewID(), c.position, op)
	change.Meta = meta
	if err := c.index.Add(ctx, change); err != nil {
		if rerr := c.adapter.Revert(op); rerr != nil {
			c.logger.Error("reverting unrecorded operation", "error", rerr)
		}
		return "", fmt.Errorf("record: %w", err)
	}
	c.position = change.ID
	c.logger.Debug("recorded", "id", change.ID, "parent", change.Parent)
	if err := c.updateRefs(ctx, true); err != nil {
		return change.ID, fmt.Errorf("record %s: %w", change.ID, err)
	}
	c.notify(EventRecord, change.ID)
	return change.ID, nil
}

// Open moves to id along the shortest path through the nearest common
// ancestor, reverting operations on the way up and applying them on the
// way down.
func (c *Chronicle[O]) Open(ctx context.Context, id string) error {
	if err := c.open(ctx, id); err != nil {
		return fmt.Errorf("open %s: %w", id, err)
	}
	c.notify(EventOpen, id)
	return nil
}

func (c *Chronicle[O]) open(ctx context.Context, id string) error {
	if !c.index.Contains(id) {
		return ErrUnknownChange
	}
	if id == c.position {
		return nil
	}
	base, up, down, err := c.commonAncestor(ctx, c.position, id)
	if err != nil {
		return err
	}
	revert, err := c.ascend(ctx, up, base)
	if err != nil {
		return err
	}
	apply, err := c.descend(ctx, base, down)
	if err != nil {
		return err
	}
	if err := c.play(append(revert, apply...)); err != nil {
		return err
	}
	c.logger.Debug("opened", "from", c.position, "to", id, "reverted", len(revert), "applied", len(apply))
	c.position = id
	return c.updateRefs(ctx, false)
}

// Step moves along an explicit path of adjacent changes, such as from a
// merge to the branch it merged. path may start with the current
// position.
func (c *Chronicle[O]) Step(ctx context.Context, path []string) error {
	if len(path) > 0 && path[0] == c.position {
		path = path[1:]
	}
	if len(path) == 0 {
		return nil
	}
	var ops []O
	from := c.position
	for _, to := range path {
		edge, err := c.edge(ctx, from, to)
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}
		ops = append(ops, edge...)
		from = to
	}
	if err := c.play(ops); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	c.position = from
	if err := c.updateRefs(ctx, false); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	c.notify(EventStep, from)
	return nil
}

// play applies ops to the live value. If one fails, the ones already
// applied are reverted so the value is left as it was.
func (c *Chronicle[O]) play(ops []O) error {
	for n, op := range ops {
		if err := c.adapter.Apply(op); err != nil {
			for k := n - 1; k >= 0; k-- {
				if rerr := c.adapter.Revert(ops[k]); rerr != nil {
					c.logger.Error("rolling back traversal", "error", rerr)
					break
				}
			}
			return err
		}
	}
	return nil
}
