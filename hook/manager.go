package hook

import (
	"sync"
	"time"

	"github.com/OnePlanDan/screamscriber/log"
)

// stopTimeout bounds how long Disarm waits for a listener to confirm
// termination. Past it the logical reference is cleared anyway: a leaked
// goroutine is recoverable, a retry loop holding the OS handle is not.
const stopTimeout = 500 * time.Millisecond

// Handle is one live OS listener registration, exclusively owned by the
// Manager. Created on Arm, destroyed on Disarm.
type Handle struct {
	kind     Kind
	listener Listener
}

// Manager arms and disarms the global input hooks. Arm is
// ensure-exactly-one: it unconditionally disarms before creating fresh
// handles, so a re-entrant arm (settings change mid-recording) can never
// stack a second OS listener on top of the first.
type Manager struct {
	factory Factory
	events  chan Event

	mu      sync.Mutex
	handles map[Kind]*Handle
}

func NewManager(factory Factory) *Manager {
	return &Manager{
		factory: factory,
		events:  make(chan Event, 16),
		handles: make(map[Kind]*Handle),
	}
}

// Arm registers one listener per supported kind. If the manager is already
// armed the existing handles are released first; there is no silent
// armed-to-armed path. Returns ErrResourceExhausted (wrapped) when the OS
// refuses a listener.
func (m *Manager) Arm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop-before-start: release whatever is live, even if we believe we
	// are not armed. This is the leak fix — a conditional guard here can be
	// bypassed and accumulate OS connections.
	m.disarmLocked()

	listeners, err := m.factory.NewListeners(m.emit)
	if err != nil {
		return err
	}

	// Listeners acquire their OS resource in Start, so on failure only the
	// already-started ones need releasing.
	for kind, l := range listeners {
		if err := l.Start(); err != nil {
			m.disarmLocked()
			return err
		}
		m.handles[kind] = &Handle{kind: kind, listener: l}
	}

	log.HookEvent("arm", len(m.handles))
	return nil
}

// Disarm releases every live handle. Idempotent and unconditional: release
// errors are logged, never propagated, and the reference is cleared
// regardless so repeated cycles cannot accumulate OS resources.
func (m *Manager) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmLocked()
	log.HookEvent("disarm", len(m.handles))
}

func (m *Manager) disarmLocked() {
	for kind, h := range m.handles {
		if err := h.listener.Stop(stopTimeout); err != nil {
			log.Warnf("hook: releasing %s listener: %v", kind, err)
		}
		delete(m.handles, kind)
	}
}

func (m *Manager) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles) > 0
}

// LiveHandles returns the number of live listeners across all kinds.
func (m *Manager) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// LiveByKind reports how many live handles exist per kind. The invariant is
// that no count ever exceeds 1.
func (m *Manager) LiveByKind() map[Kind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Kind]int, len(m.handles))
	for kind := range m.handles {
		counts[kind]++
	}
	return counts
}

// Events is the chord press/release stream consumed by the recording
// session's control loop.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// emit runs on listener callback goroutines and must return immediately so
// the OS event queue never backs up. A full channel drops the event.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Warn("hook: event channel full, dropping event")
	}
}
