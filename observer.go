package chronicle

// EventKind says what moved a Chronicle.
type EventKind string

const (
	EventRecord      EventKind = "record"
	EventOpen        EventKind = "open"
	EventStep        EventKind = "step"
	EventReset       EventKind = "reset"
	EventMerge       EventKind = "merge"
	EventFastForward EventKind = "fast-forward"
)

// Event describes a completed Chronicle operation. ID is the change the
// operation created or targeted; Position is where the Chronicle ended up.
type Event struct {
	Kind     EventKind
	ID       string
	Position string
}

// Observer is notified after each Chronicle operation that succeeded.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }
