package audio

import (
	"sync"
	"time"
)

const (
	fakeChunkFrames   = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext produces FakeCapture devices that replay canned PCM, used by
// headless tests and the -test run mode.
type FakeContext struct {
	pcm      []byte
	rate     int
	realtime bool
}

// NewFakeContext wraps raw PCM16 audio. With realtime set, capture devices
// feed it at the wall-clock rate implied by sampleRate; otherwise the whole
// buffer is delivered synchronously on Start.
func NewFakeContext(pcm []byte, sampleRate int, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, rate: sampleRate, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, rate: f.rate, realtime: f.realtime}, nil
}

// FakeCapture is a CaptureDevice whose audio comes from canned PCM and
// explicit Push calls rather than a microphone.
type FakeCapture struct {
	pcm      []byte
	rate     int
	realtime bool

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Push delivers PCM to the registered callback as if the device produced it.
// Dropped silently while the device is stopped, matching real drivers.
func (f *FakeCapture) Push(data []byte) {
	f.mu.Lock()
	cb := f.cb
	started := f.started
	f.mu.Unlock()
	if !started || cb == nil {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Unlock()

	if len(f.pcm) == 0 {
		close(f.feedDone)
		return nil
	}

	chunkBytes := fakeChunkFrames * fakeBytesPerFrame

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); pos += chunkBytes {
			f.Push(f.pcm[pos:min(pos+chunkBytes, len(f.pcm))])
		}
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(fakeChunkFrames) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(f.feedDone)
		for pos := 0; pos < len(f.pcm); pos += chunkBytes {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			f.Push(f.pcm[pos:min(pos+chunkBytes, len(f.pcm))])
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
	if feedDone != nil {
		<-feedDone
	}
}

func (f *FakeCapture) Close() {}
