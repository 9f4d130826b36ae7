package hook

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Linux input event codes, used as the canonical key space on every
// platform. Modifier keys come in left/right pairs.
const (
	codeLCtrl  = 29
	codeRCtrl  = 97
	codeLShift = 42
	codeRShift = 54
	codeLAlt   = 56
	codeRAlt   = 100
	codeLMeta  = 125
	codeRMeta  = 126

	codeBtnLeft   = 272
	codeBtnRight  = 273
	codeBtnMiddle = 274
)

// evdev event values.
const (
	valRelease = 0
	valPress   = 1
	valRepeat  = 2
)

var keyNames = map[string]uint16{
	"space": 57, "enter": 28, "tab": 15, "esc": 1, "backspace": 14,
	"a": 30, "b": 48, "c": 46, "d": 32, "e": 18, "f": 33, "g": 34,
	"h": 35, "i": 23, "j": 36, "k": 37, "l": 38, "m": 50, "n": 49,
	"o": 24, "p": 25, "q": 16, "r": 19, "s": 31, "t": 20, "u": 22,
	"v": 47, "w": 17, "x": 45, "y": 21, "z": 44,
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9,
	"9": 10, "0": 11,
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64,
	"f7": 65, "f8": 66, "f9": 67, "f10": 68, "f11": 87, "f12": 88,
	"mouse1": codeBtnLeft, "mouse2": codeBtnRight, "mouse3": codeBtnMiddle,
}

// Combo is a parsed hotkey chord: zero or more modifiers plus one final key,
// which may be a mouse button (the reason the mouse hook kind exists).
type Combo struct {
	Ctrl, Shift, Alt, Super bool
	Code                    uint16
	Mouse                   bool
}

// ParseCombo parses strings like "ctrl+shift+space" or "ctrl+mouse2".
func ParseCombo(s string) (Combo, error) {
	var c Combo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	seenKey := false
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "":
			return Combo{}, fmt.Errorf("empty token in combo %q", s)
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt":
			c.Alt = true
		case "super", "meta", "cmd", "win":
			c.Super = true
		default:
			code, ok := keyNames[p]
			if !ok {
				return Combo{}, fmt.Errorf("unknown key %q in combo %q", p, s)
			}
			if seenKey {
				return Combo{}, fmt.Errorf("combo %q has more than one non-modifier key", s)
			}
			seenKey = true
			c.Code = code
			c.Mouse = code >= codeBtnLeft && code <= codeBtnMiddle
		}
	}
	if !seenKey {
		return Combo{}, fmt.Errorf("combo %q has no non-modifier key", s)
	}
	return c, nil
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Super {
		parts = append(parts, "super")
	}
	parts = append(parts, keyName(c.Code))
	return strings.Join(parts, "+")
}

var codeNames = func() map[uint16]string {
	m := make(map[uint16]string, len(keyNames))
	for name, code := range keyNames {
		m[code] = name
	}
	return m
}()

func keyName(code uint16) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("key%d", code)
}

// Matcher turns raw key/button transitions into chord press/release events.
// Keyboard and mouse listeners of one arm generation share a Matcher so a
// chord like ctrl+mouse2 can span both devices. Key repeats of the final
// key are swallowed here; the session treats any duplicates as no-ops too.
type Matcher struct {
	combo Combo
	emit  func(Event)

	mu                      sync.Mutex
	ctrl, shift, alt, super bool
	comboHeld               bool
}

func NewMatcher(combo Combo, emit func(Event)) *Matcher {
	return &Matcher{combo: combo, emit: emit}
}

// HandleKey consumes one transition in evdev terms (value 0=release,
// 1=press, 2=repeat) and emits chord events on edges.
func (m *Matcher) HandleKey(kind Kind, code uint16, value int32) {
	if value == valRepeat {
		return
	}
	pressed := value == valPress

	m.mu.Lock()
	defer m.mu.Unlock()

	switch code {
	case codeLCtrl, codeRCtrl:
		m.ctrl = pressed
	case codeLShift, codeRShift:
		m.shift = pressed
	case codeLAlt, codeRAlt:
		m.alt = pressed
	case codeLMeta, codeRMeta:
		m.super = pressed
	}

	if code != m.combo.Code {
		return
	}

	if pressed && !m.comboHeld && m.modifiersHeld() {
		m.comboHeld = true
		m.emit(Event{Kind: kind, Type: Press, When: time.Now()})
	} else if !pressed && m.comboHeld {
		// Release fires even if a modifier went up first.
		m.comboHeld = false
		m.emit(Event{Kind: kind, Type: Release, When: time.Now()})
	}
}

func (m *Matcher) modifiersHeld() bool {
	return m.ctrl == m.combo.Ctrl &&
		m.shift == m.combo.Shift &&
		m.alt == m.combo.Alt &&
		m.super == m.combo.Super
}
