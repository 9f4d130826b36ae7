// Package session coordinates hotkey events with audio capture. A single
// control goroutine owns every state transition; capture callbacks only
// append to the frame buffer and the dispatcher does its work on its own
// workers, so the hook callback path never blocks.
package session

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/encoder"
	"github.com/OnePlanDan/screamscriber/hook"
	"github.com/OnePlanDan/screamscriber/log"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

type Mode string

const (
	ModePushToTalk Mode = "push-to-talk"
	ModeContinuous Mode = "continuous"
)

// Dispatcher receives sealed segments. Submit must not block; the dispatch
// package runs transcription on its own worker pool.
type Dispatcher interface {
	Submit(seg audio.Segment)
}

// Hooks is the slice of the hook manager the session needs: the chord event
// stream and the armed check used by continuous mode's defensive re-check.
type Hooks interface {
	Events() <-chan hook.Event
	Armed() bool
}

// Callbacks are consumed by the collaborator layer (status display, text
// injection). All optional.
type Callbacks struct {
	OnStateChange     func(State)
	OnSegmentTooShort func()
	OnAudioLevel      func(rms float64)
	OnSilenceWarning  func(active bool)
	OnCaptureError    func(err error)
}

type Config struct {
	Mode       Mode
	SampleRate int
	// MaxSegment bounds one continuous-mode cycle; silence can close a
	// cycle earlier.
	MaxSegment time.Duration
}

type Session struct {
	cfg        Config
	capture    audio.CaptureDevice
	hooks      Hooks
	dispatcher Dispatcher
	cb         Callbacks
	vad        *vadProcessor

	state State // control-goroutine only

	bufMu     sync.Mutex
	buf       []byte
	capturing bool
	start     time.Time

	stopMonitor func()
	autoClosed  <-chan struct{}
}

func New(cfg Config, capture audio.CaptureDevice, hooks Hooks, dispatcher Dispatcher, cb Callbacks) (*Session, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = encoder.SampleRate
	}
	if cfg.MaxSegment == 0 {
		cfg.MaxSegment = 60 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePushToTalk
	}
	vp, err := newVADProcessor(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Session{
		cfg:        cfg,
		capture:    capture,
		hooks:      hooks,
		dispatcher: dispatcher,
		cb:         cb,
		vad:        vp,
	}, nil
}

func (s *Session) State() State {
	return s.state
}

// Run drives the control loop until ctx is cancelled. Cancellation while
// recording discards the in-flight segment.
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.Mode == ModeContinuous {
		return s.runContinuous(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.cancel()
			return ctx.Err()
		case ev := <-s.hooks.Events():
			switch ev.Type {
			case hook.Press:
				s.press()
			case hook.Release:
				s.release()
			}
		}
	}
}

// press handles the chord going down. Only valid in Idle: a duplicate press
// (key repeat, double event) is a no-op, and a press that races the flush
// of the previous segment is dropped rather than queued.
func (s *Session) press() {
	switch s.state {
	case StateRecording:
		return
	case StateFlushing:
		log.Info("press during flush dropped")
		return
	}

	s.bufMu.Lock()
	s.buf = nil
	s.capturing = true
	s.start = time.Now()
	s.bufMu.Unlock()
	s.vad.Reset()

	s.capture.SetCallback(s.onData)
	if err := s.capture.Start(); err != nil {
		s.bufMu.Lock()
		s.capturing = false
		s.bufMu.Unlock()
		s.capture.ClearCallback()
		log.Errorf("capture start: %v", err)
		if s.cb.OnCaptureError != nil {
			s.cb.OnCaptureError(err)
		}
		return
	}

	s.stopMonitor, s.autoClosed = s.startMonitor(s.cfg.Mode == ModeContinuous)
	s.setState(StateRecording)
}

// release seals the segment and hands it off. The session returns to Idle
// immediately after submission; the transcription result arrives later
// through the dispatcher's own callback.
func (s *Session) release() {
	if s.state != StateRecording {
		return
	}
	s.setState(StateFlushing)
	seg := s.stopCapture()

	if seg.Frames() < s.minFrames() {
		log.Info("segment too short, dropping")
		if s.cb.OnSegmentTooShort != nil {
			s.cb.OnSegmentTooShort()
		}
		s.setState(StateIdle)
		return
	}

	s.dispatcher.Submit(seg)
	s.setState(StateIdle)
}

// cancel force-stops capture and discards the in-flight buffer. Used when
// the hooks are disarmed or the session shuts down mid-recording: the
// discarded segment must never reach the dispatcher.
func (s *Session) cancel() {
	if s.state != StateRecording {
		return
	}
	s.stopCapture()
	log.Info("recording cancelled, segment discarded")
	s.setState(StateIdle)
}

// stopCapture tears down the device callback and seals the buffer into an
// immutable segment. Frames arriving after the capturing flag drops are
// discarded, so a later segment can never inherit earlier frames.
func (s *Session) stopCapture() audio.Segment {
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
	s.capture.Stop()
	s.capture.ClearCallback()

	s.bufMu.Lock()
	s.capturing = false
	pcm := s.buf
	s.buf = nil
	start := s.start
	s.bufMu.Unlock()

	return audio.Segment{PCM: pcm, Start: start, SampleRate: s.cfg.SampleRate}
}

// onData runs on the capture thread. Append-only: no state transitions
// happen here.
func (s *Session) onData(data []byte, _ uint32) {
	s.bufMu.Lock()
	if !s.capturing {
		s.bufMu.Unlock()
		return
	}
	s.buf = append(s.buf, data...)
	s.bufMu.Unlock()

	if len(data) > 1 {
		if s.cb.OnAudioLevel != nil {
			var sumSquares float64
			for i := 0; i+1 < len(data); i += 2 {
				sample := int16(binary.LittleEndian.Uint16(data[i:]))
				normalized := float64(sample) / 32768.0
				sumSquares += normalized * normalized
			}
			s.cb.OnAudioLevel(math.Sqrt(sumSquares / float64(len(data)/2)))
		}
		s.vad.Process(data)
	}
}

func (s *Session) minFrames() int {
	return s.cfg.SampleRate / 10
}

func (s *Session) setState(st State) {
	s.state = st
	if s.cb.OnStateChange != nil {
		s.cb.OnStateChange(st)
	}
}

// startMonitor runs the silence monitor on a ticker for the duration of one
// recording. The returned channel fires at most once, when sustained
// silence should close a continuous-mode cycle.
func (s *Session) startMonitor(autoClose bool) (func(), <-chan struct{}) {
	done := make(chan struct{})
	closed := make(chan struct{}, 1)
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		mon := newSilenceMonitor(func() bool { return autoClose })
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				switch mon.Tick(s.vad.HasSpeechTick()) {
				case SilenceWarn:
					log.Info("no_voice_warning")
					if s.cb.OnSilenceWarning != nil {
						s.cb.OnSilenceWarning(true)
					}
				case SilenceWarnClear:
					if s.cb.OnSilenceWarning != nil {
						s.cb.OnSilenceWarning(false)
					}
				case SilenceRepeat:
					log.Info("silence_during_warning")
				case SilenceAutoClose:
					log.Info("silence_auto_close")
					select {
					case closed <- struct{}{}:
					default:
					}
					return
				}
			}
		}
	}()
	return stop, closed
}
