package chronicle

// RootID is the id of the sentinel change every graph starts from.
const RootID = "ROOT"

// Strategy selects how Merge reconciles two branches.
type Strategy string

const (
	// StrategyAuto transforms both branches against each other.
	StrategyAuto Strategy = ""
	// StrategyMine keeps the current branch's state.
	StrategyMine Strategy = "mine"
	// StrategyTheirs takes the other branch's state.
	StrategyTheirs Strategy = "theirs"
	// StrategyManual replays an explicit sequence of changes.
	StrategyManual Strategy = "manual"
)

// Change is an immutable node of the graph. An ordinary change carries
// one operation in Data. A merge change carries Merge instead and has a
// second parent, Merge.Branch.
type Change[O any] struct {
	ID     string         `json:"id"`
	Parent string         `json:"parent,omitempty"`
	Data   O              `json:"data"`
	Merge  *Merge[O]      `json:"merge,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Merge holds what is needed to reach a merge change from either of its
// parents: Mine takes the state at the change's Parent to the merged
// state, Theirs takes the state at Branch there.
type Merge[O any] struct {
	Branch   string   `json:"branch"`
	Strategy Strategy `json:"strategy,omitempty"`
	Mine     []O      `json:"mine"`
	Theirs   []O      `json:"theirs"`
}

// NewChange returns an ordinary change.
func NewChange[O any](id, parent string, data O) *Change[O] {
	return &Change[O]{ID: id, Parent: parent, Data: data}
}

func rootChange[O any]() *Change[O] {
	return &Change[O]{ID: RootID}
}

// IsMerge reports whether c joins two branches.
func (c *Change[O]) IsMerge() bool {
	return c.Merge != nil
}

// Parents lists the first parent and, for a merge, the merged branch.
func (c *Change[O]) Parents() []string {
	if c.ID == RootID {
		return nil
	}
	if c.Merge != nil {
		return []string{c.Parent, c.Merge.Branch}
	}
	return []string{c.Parent}
}

// ops returns the operations that take the state at c.Parent to the
// state at c.
func (c *Change[O]) ops() []O {
	if c.ID == RootID {
		return nil
	}
	if c.Merge != nil {
		return c.Merge.Mine
	}
	return []O{c.Data}
}
