package registry

// EventType classifies a registry event.
type EventType int

const (
	// EventAttach fires when a session is admitted.
	EventAttach EventType = iota
	// EventTouch fires when an attached session pulls again.
	EventTouch
	// EventDetach fires when a session is removed.
	EventDetach
)

func (t EventType) String() string {
	switch t {
	case EventAttach:
		return "attach"
	case EventTouch:
		return "touch"
	case EventDetach:
		return "detach"
	}
	return "unknown"
}

// Event describes one session lifecycle change.
type Event struct {
	Type      EventType
	SessionID string
	Project   string
	Summary   map[string]any
}

// Events returns the lifecycle stream. Single consumer; the channel closes
// on Registry.Close.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// emit sends without blocking. The mirror is observational, so dropping an
// event under backpressure beats stalling a pull.
func (r *Registry) emit(ev Event) {
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}
