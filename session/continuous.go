package session

import (
	"context"
	"time"

	"github.com/OnePlanDan/screamscriber/hook"
	"github.com/OnePlanDan/screamscriber/log"
)

// runContinuous toggles a capture cycle loop on chord presses. While
// toggled on, the session records in MaxSegment-bounded cycles and flushes
// each one to the dispatcher; sustained silence closes a cycle early.
func (s *Session) runContinuous(ctx context.Context) error {
	for {
		// Wait, idle, for the chord to toggle recording on.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.hooks.Events():
			if ev.Type != hook.Press {
				continue
			}
		}

		if stopped := s.cycle(ctx); stopped {
			return ctx.Err()
		}
	}
}

// cycle runs Recording/Flushing rounds until the chord is pressed again,
// silence closes the loop, or ctx ends. Reports whether ctx ended.
func (s *Session) cycle(ctx context.Context) bool {
	for {
		// Defensive re-check between rounds: if the hooks were torn down
		// (settings change, shutdown race), stop cycling rather than
		// re-arming from the wrong goroutine.
		if !s.hooks.Armed() {
			log.Warn("hooks disarmed during continuous cycle, stopping")
			return false
		}

		s.press()
		if s.state != StateRecording {
			return false
		}

		deadline := time.NewTimer(s.cfg.MaxSegment)
		autoClosed := s.autoClosed

		var toggledOff, ctxDone bool
	recording:
		for {
			select {
			case <-ctx.Done():
				ctxDone = true
				break recording
			case <-deadline.C:
				break recording
			case <-autoClosed:
				toggledOff = true
				break recording
			case ev := <-s.hooks.Events():
				if ev.Type == hook.Press {
					toggledOff = true
					break recording
				}
			}
		}
		deadline.Stop()

		if ctxDone {
			s.cancel()
			return true
		}
		s.release()
		if toggledOff {
			return false
		}
	}
}
