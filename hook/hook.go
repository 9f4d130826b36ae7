// Package hook owns the OS-level global input listeners. Each live listener
// consumes a scarce OS resource (an X11 client connection, an evdev file
// descriptor), so the Manager guarantees at most one live handle per kind no
// matter how many times callers arm and disarm.
package hook

import (
	"errors"
	"time"
)

type Kind int

const (
	KindKeyboard Kind = iota
	KindMouse
)

func (k Kind) String() string {
	switch k {
	case KindKeyboard:
		return "keyboard"
	case KindMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

type EventType int

const (
	Press EventType = iota
	Release
)

// Event is a press or release of the configured chord, attributed to the
// hook kind whose device completed it.
type Event struct {
	Kind Kind
	Type EventType
	When time.Time
}

// ErrResourceExhausted reports that the OS refused a new listener. Arming
// does not retry; the caller decides what to surface.
var ErrResourceExhausted = errors.New("hook: OS listener resources exhausted")

// Listener is one OS-level hook. Start begins event delivery; Stop releases
// the underlying resource and waits up to timeout for the listener to
// confirm termination.
type Listener interface {
	Start() error
	Stop(timeout time.Duration) error
}

// Factory builds one fresh Listener per supported kind. Called once per arm
// so listeners never survive across arm generations. Events are delivered
// through emit, which never blocks.
type Factory interface {
	NewListeners(emit func(Event)) (map[Kind]Listener, error)
}
