//go:build !linux

package hook

import (
	"fmt"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// xhotkeyFactory registers the chord through golang.design/x/hotkey. Each
// registration holds one OS-level hook connection (an X11 client on BSDs,
// a RegisterHotKey slot on Windows), which is the resource the manager
// bounds. Mouse-button chords are not expressible here, so only the
// keyboard kind is supported.
type xhotkeyFactory struct {
	combo Combo
}

func NewPlatformFactory(combo Combo) (Factory, error) {
	if combo.Mouse {
		return nil, fmt.Errorf("mouse-button chords are only supported on linux (got %q)", combo)
	}
	if combo.Alt || combo.Super {
		// Modifier constants beyond ctrl/shift differ per OS in
		// golang.design/x/hotkey; keep to the common subset.
		return nil, fmt.Errorf("only ctrl/shift modifiers are supported on this platform (got %q)", combo)
	}
	if _, ok := xhotkeyKeys[combo.Code]; !ok {
		return nil, fmt.Errorf("key in chord %q is not registrable on this platform", combo)
	}
	return &xhotkeyFactory{combo: combo}, nil
}

func (f *xhotkeyFactory) NewListeners(emit func(Event)) (map[Kind]Listener, error) {
	var mods []hotkey.Modifier
	if f.combo.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if f.combo.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	return map[Kind]Listener{
		KindKeyboard: &xhotkeyListener{
			hk:   hotkey.New(mods, xhotkeyKeys[f.combo.Code]),
			emit: emit,
		},
	}, nil
}

type xhotkeyListener struct {
	hk   *hotkey.Hotkey
	emit func(Event)
	stop chan struct{}
	once sync.Once
}

func (l *xhotkeyListener) Start() error {
	if err := l.hk.Register(); err != nil {
		return fmt.Errorf("registering hotkey: %w (%w)", err, ErrResourceExhausted)
	}
	l.stop = make(chan struct{})
	go func() {
		for {
			select {
			case <-l.hk.Keydown():
				l.emit(Event{Kind: KindKeyboard, Type: Press, When: time.Now()})
			case <-l.stop:
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case <-l.hk.Keyup():
				l.emit(Event{Kind: KindKeyboard, Type: Release, When: time.Now()})
			case <-l.stop:
				return
			}
		}
	}()
	return nil
}

func (l *xhotkeyListener) Stop(_ time.Duration) error {
	l.once.Do(func() {
		if l.stop != nil {
			close(l.stop)
		}
		l.hk.Unregister()
	})
	return nil
}

// Diagnose reports whether global hooks can be armed in this environment.
func Diagnose() (string, error) {
	return "hotkey support available", nil
}

// Limited to keys golang.design/x/hotkey names identically on darwin and
// windows.
var xhotkeyKeys = map[uint16]hotkey.Key{
	keyNames["space"]: hotkey.KeySpace,
	keyNames["a"]:     hotkey.KeyA, keyNames["b"]: hotkey.KeyB,
	keyNames["c"]: hotkey.KeyC, keyNames["d"]: hotkey.KeyD,
	keyNames["e"]: hotkey.KeyE, keyNames["f"]: hotkey.KeyF,
	keyNames["g"]: hotkey.KeyG, keyNames["h"]: hotkey.KeyH,
	keyNames["i"]: hotkey.KeyI, keyNames["j"]: hotkey.KeyJ,
	keyNames["k"]: hotkey.KeyK, keyNames["l"]: hotkey.KeyL,
	keyNames["m"]: hotkey.KeyM, keyNames["n"]: hotkey.KeyN,
	keyNames["o"]: hotkey.KeyO, keyNames["p"]: hotkey.KeyP,
	keyNames["q"]: hotkey.KeyQ, keyNames["r"]: hotkey.KeyR,
	keyNames["s"]: hotkey.KeyS, keyNames["t"]: hotkey.KeyT,
	keyNames["u"]: hotkey.KeyU, keyNames["v"]: hotkey.KeyV,
	keyNames["w"]: hotkey.KeyW, keyNames["x"]: hotkey.KeyX,
	keyNames["y"]: hotkey.KeyY, keyNames["z"]: hotkey.KeyZ,
	keyNames["1"]: hotkey.Key1, keyNames["2"]: hotkey.Key2,
	keyNames["3"]: hotkey.Key3, keyNames["4"]: hotkey.Key4,
	keyNames["5"]: hotkey.Key5, keyNames["6"]: hotkey.Key6,
	keyNames["7"]: hotkey.Key7, keyNames["8"]: hotkey.Key8,
	keyNames["9"]: hotkey.Key9, keyNames["0"]: hotkey.Key0,
	keyNames["f1"]: hotkey.KeyF1, keyNames["f2"]: hotkey.KeyF2,
	keyNames["f3"]: hotkey.KeyF3, keyNames["f4"]: hotkey.KeyF4,
	keyNames["f5"]: hotkey.KeyF5, keyNames["f6"]: hotkey.KeyF6,
	keyNames["f7"]: hotkey.KeyF7, keyNames["f8"]: hotkey.KeyF8,
	keyNames["f9"]: hotkey.KeyF9, keyNames["f10"]: hotkey.KeyF10,
	keyNames["f11"]: hotkey.KeyF11, keyNames["f12"]: hotkey.KeyF12,
}
