// Package inject places transcribed text at the cursor: copy it to the
// clipboard, synthesize the platform paste chord, then restore whatever the
// clipboard held before.
package inject

import (
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"

	"github.com/OnePlanDan/screamscriber/log"
)

// Target apps read the clipboard asynchronously after the paste keystroke;
// restoring too early hands them the old contents.
const restoreDelay = 300 * time.Millisecond

type Injector struct {
	restore bool
}

// New returns an Injector. With restore set, the previous clipboard contents
// come back after each paste.
func New(restore bool) *Injector {
	return &Injector{restore: restore}
}

// Copy puts text on the clipboard without pasting.
func (i *Injector) Copy(text string) error {
	if text == "" {
		return nil
	}
	return cb.WriteAll(text)
}

// Inject pastes text at the cursor.
func (i *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	var prev string
	hadPrev := false
	if i.restore {
		if p, err := cb.ReadAll(); err == nil {
			prev, hadPrev = p, true
		}
	}

	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	if err := sendPaste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}

	if hadPrev {
		time.Sleep(restoreDelay)
		if err := cb.WriteAll(prev); err != nil {
			log.Warnf("clipboard restore failed: %v", err)
		}
	}
	return nil
}
