package hook

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeFactory builds in-memory listeners and counts how many are live, so
// tests can assert the manager's resource bounds without touching the OS.
type FakeFactory struct {
	live    atomic.Int64
	created atomic.Int64

	mu        sync.Mutex
	failNext  error
	stopDelay time.Duration

	emit func(Event)
}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// FailNextArm makes the next NewListeners call return err, simulating the
// OS refusing a listener.
func (f *FakeFactory) FailNextArm(err error) {
	f.mu.Lock()
	f.failNext = err
	f.mu.Unlock()
}

// SetStopDelay makes every listener take d to confirm termination.
func (f *FakeFactory) SetStopDelay(d time.Duration) {
	f.mu.Lock()
	f.stopDelay = d
	f.mu.Unlock()
}

// Live returns the number of fake listeners currently holding their
// simulated OS resource.
func (f *FakeFactory) Live() int {
	return int(f.live.Load())
}

// Created returns the total listeners ever created.
func (f *FakeFactory) Created() int {
	return int(f.created.Load())
}

// Press simulates the chord going down on the keyboard hook.
func (f *FakeFactory) Press() {
	f.send(Event{Kind: KindKeyboard, Type: Press, When: time.Now()})
}

// Release simulates the chord going up.
func (f *FakeFactory) Release() {
	f.send(Event{Kind: KindKeyboard, Type: Release, When: time.Now()})
}

func (f *FakeFactory) send(ev Event) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

func (f *FakeFactory) NewListeners(emit func(Event)) (map[Kind]Listener, error) {
	f.mu.Lock()
	err := f.failNext
	f.failNext = nil
	delay := f.stopDelay
	f.emit = emit
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return map[Kind]Listener{
		KindKeyboard: &fakeListener{factory: f, stopDelay: delay},
		KindMouse:    &fakeListener{factory: f, stopDelay: delay},
	}, nil
}

type fakeListener struct {
	factory   *FakeFactory
	stopDelay time.Duration
	started   atomic.Bool
}

func (l *fakeListener) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("listener started twice")
	}
	l.factory.live.Add(1)
	l.factory.created.Add(1)
	return nil
}

func (l *fakeListener) Stop(timeout time.Duration) error {
	if !l.started.CompareAndSwap(true, false) {
		return nil
	}
	if l.stopDelay > timeout {
		// Simulates a wedged OS listener: the resource is released late,
		// after the manager has already given up waiting.
		go func() {
			time.Sleep(l.stopDelay)
			l.factory.live.Add(-1)
		}()
		return fmt.Errorf("fake listener still terminating after %v", timeout)
	}
	l.factory.live.Add(-1)
	return nil
}
