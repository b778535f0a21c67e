package toast

// ActionKind names a state transition.
type ActionKind string

// Action kinds.
const (
	ActionAdd     ActionKind = "add"
	ActionUpdate  ActionKind = "update"
	ActionDismiss ActionKind = "dismiss"
	ActionRemove  ActionKind = "remove"
)

// Action is a request to change the toast list.
// Toast is used by add, Patch by update, and ID by dismiss and remove,
// where an empty ID targets every toast.
type Action struct {
	Kind  ActionKind
	Toast Toast
	Patch Patch
	ID    string
}

// Reduce returns the state that follows prev after applying a.
// prev is never modified; the returned state always owns a fresh slice.
// limit caps the number of retained toasts after an add.
func Reduce(prev State, a Action, limit int) State {
	switch a.Kind {
	case ActionAdd:
		if limit <= 0 {
			limit = 1
		}
		n := min(len(prev.Toasts)+1, limit)
		next := make([]Toast, 0, n)
		next = append(next, a.Toast)
		for _, t := range prev.Toasts {
			if len(next) == n {
				break
			}
			next = append(next, t)
		}
		return State{Toasts: next}

	case ActionUpdate:
		next := make([]Toast, len(prev.Toasts))
		for i, t := range prev.Toasts {
			if t.ID == a.Patch.ID {
				t = a.Patch.apply(t)
			}
			next[i] = t
		}
		return State{Toasts: next}

	case ActionDismiss:
		next := make([]Toast, len(prev.Toasts))
		for i, t := range prev.Toasts {
			if a.ID == "" || t.ID == a.ID {
				t.Open = false
			}
			next[i] = t
		}
		return State{Toasts: next}

	case ActionRemove:
		if a.ID == "" {
			return State{Toasts: []Toast{}}
		}
		next := make([]Toast, 0, len(prev.Toasts))
		for _, t := range prev.Toasts {
			if t.ID != a.ID {
				next = append(next, t)
			}
		}
		return State{Toasts: next}
	}

	next := make([]Toast, len(prev.Toasts))
	copy(next, prev.Toasts)
	return State{Toasts: next}
}
