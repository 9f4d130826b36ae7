//go:build linux

package hook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	evKey          = 1
	inputEventSize = 24
)

// EvdevFactory builds listeners that read /dev/input event devices
// directly. Each open device file is the scarce resource the manager
// accounts for.
type EvdevFactory struct {
	combo Combo
}

func NewEvdevFactory(combo Combo) *EvdevFactory {
	return &EvdevFactory{combo: combo}
}

func (f *EvdevFactory) NewListeners(emit func(Event)) (map[Kind]Listener, error) {
	// One matcher per arm generation, shared by both kinds so chords can
	// mix keyboard modifiers with mouse buttons.
	matcher := NewMatcher(f.combo, emit)
	return map[Kind]Listener{
		KindKeyboard: &evdevListener{kind: KindKeyboard, matcher: matcher, scan: findKeyboards},
		KindMouse:    &evdevListener{kind: KindMouse, matcher: matcher, scan: findMice},
	}, nil
}

type evdevListener struct {
	kind    Kind
	matcher *Matcher
	scan    func() ([]string, error)

	files []*os.File
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (l *evdevListener) Start() error {
	paths, err := l.scan()
	if err != nil {
		return fmt.Errorf("scanning %s devices: %w", l.kind, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no %s devices found (is user in 'input' group?)", l.kind)
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
				l.closeFiles()
				return fmt.Errorf("opening %s: %w", path, ErrResourceExhausted)
			}
			continue
		}
		l.files = append(l.files, f)
		wg.Add(1)
		go func(f *os.File) {
			defer wg.Done()
			l.readEvents(f)
		}(f)
	}

	if len(l.files) == 0 {
		return fmt.Errorf("could not open any %s device (run: sudo usermod -aG input $USER, then re-login)", l.kind)
	}

	go func() {
		wg.Wait()
		close(l.done)
	}()
	return nil
}

func (l *evdevListener) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}

		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))

			if evType != evKey {
				continue
			}
			l.matcher.HandleKey(l.kind, evCode, evValue)
		}
	}
}

func (l *evdevListener) Stop(timeout time.Duration) error {
	var err error
	l.once.Do(func() {
		if l.stop != nil {
			close(l.stop)
		}
		l.closeFiles()
		if l.done == nil {
			return
		}
		select {
		case <-l.done:
		case <-time.After(timeout):
			err = fmt.Errorf("%s listener did not confirm termination within %v", l.kind, timeout)
		}
	})
	return err
}

func (l *evdevListener) closeFiles() {
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}

func findKeyboards() ([]string, error) {
	return findDevices(func(eventName string) bool {
		caps, err := readCaps(eventName, "key")
		if err != nil {
			return false
		}
		// Keyboards advertise a long KEY bitmap; mice only a few buttons.
		return len(caps) > 10
	})
}

func findMice() ([]string, error) {
	return findDevices(func(eventName string) bool {
		caps, err := readCaps(eventName, "rel")
		if err != nil {
			return false
		}
		// Any relative axis (pointer motion) marks a mouse-like device.
		return caps != "" && caps != "0"
	})
}

func findDevices(match func(eventName string) bool) ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if match(e.Name()) {
			devices = append(devices, filepath.Join("/dev/input", e.Name()))
		}
	}
	return devices, nil
}

func readCaps(eventName, cap string) (string, error) {
	path := filepath.Join("/sys/class/input", eventName, "device", "capabilities", cap)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Diagnose reports whether global hooks can be armed in this environment.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	var opened string
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			opened = path
			break
		}
	}
	if opened == "" {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
	}

	return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), opened), nil
}

// NewPlatformFactory returns the evdev factory on linux.
func NewPlatformFactory(combo Combo) (Factory, error) {
	return NewEvdevFactory(combo), nil
}
