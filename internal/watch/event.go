// Package watch observes the vault tree and emits normalized, debounced
// change events. Two detection modes are supported: a polling scanner that
// stays correct over network mounts, and an fsnotify mode for local disks.
package watch

import "fmt"

// Kind distinguishes file events from directory events.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Action describes what happened to the path.
type Action int

const (
	ActionCreated Action = iota
	ActionModified
	ActionDeleted
	ActionMoved
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionModified:
		return "modified"
	case ActionDeleted:
		return "deleted"
	case ActionMoved:
		return "moved"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Event is one normalized filesystem change. Path is absolute and canonical.
// SrcPath is set only for ActionMoved and holds the previous location.
type Event struct {
	Kind    Kind
	Action  Action
	Path    string
	SrcPath string
}
