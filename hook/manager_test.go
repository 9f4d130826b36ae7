package hook

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestArmDisarmCyclesNeverLeak(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)

	for i := 0; i < 1000; i++ {
		if err := m.Arm(); err != nil {
			t.Fatalf("cycle %d: Arm: %v", i, err)
		}
		byKind := m.LiveByKind()
		if byKind[KindKeyboard] != 1 || byKind[KindMouse] != 1 {
			t.Fatalf("cycle %d: live handles after arm = %v, want 1 per kind", i, byKind)
		}
		if f.Live() != 2 {
			t.Fatalf("cycle %d: factory live = %d, want 2", i, f.Live())
		}

		m.Disarm()
		if m.LiveHandles() != 0 {
			t.Fatalf("cycle %d: live handles after disarm = %d, want 0", i, m.LiveHandles())
		}
		if f.Live() != 0 {
			t.Fatalf("cycle %d: factory live = %d after disarm, want 0", i, f.Live())
		}
	}
}

func TestDoubleArmKeepsOneHandlePerKind(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)

	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}
	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}

	byKind := m.LiveByKind()
	for _, kind := range []Kind{KindKeyboard, KindMouse} {
		if byKind[kind] != 1 {
			t.Errorf("%s handles = %d, want 1", kind, byKind[kind])
		}
	}
	if f.Live() != 2 {
		t.Errorf("factory live = %d, want 2 (second arm must release the first generation)", f.Live())
	}
	// Two generations were created; none from the first may survive.
	if f.Created() != 4 {
		t.Errorf("created = %d, want 4", f.Created())
	}
}

func TestDisarmIdempotent(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)

	m.Disarm() // disarm before any arm is a no-op

	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}
	m.Disarm()
	m.Disarm()

	if f.Live() != 0 {
		t.Errorf("factory live = %d, want 0", f.Live())
	}
	if m.Armed() {
		t.Error("manager still armed after disarm")
	}
}

func TestArmSurfacesResourceExhausted(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)

	f.FailNextArm(fmt.Errorf("opening /dev/input/event3: %w", ErrResourceExhausted))
	err := m.Arm()
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Arm error = %v, want ErrResourceExhausted", err)
	}
	if m.Armed() {
		t.Error("manager armed after failed arm")
	}
	if m.LiveHandles() != 0 {
		t.Errorf("live handles = %d after failed arm, want 0", m.LiveHandles())
	}

	// Next arm succeeds; no retry happened in between.
	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}
	if f.Created() != 2 {
		t.Errorf("created = %d, want 2 (no automatic retries)", f.Created())
	}
}

func TestDisarmClearsReferenceOnSlowStop(t *testing.T) {
	f := NewFakeFactory()
	f.SetStopDelay(2 * time.Second) // longer than the manager's 500ms wait
	m := NewManager(f)

	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	m.Disarm()
	elapsed := time.Since(start)

	// The logical reference must be gone even though the listener has not
	// confirmed termination.
	if m.LiveHandles() != 0 {
		t.Errorf("live handles = %d, want 0 (fail-safe clear)", m.LiveHandles())
	}
	if elapsed > 2*time.Second {
		t.Errorf("Disarm blocked %v, want bounded wait", elapsed)
	}
}

func TestEventsFlowAfterRearm(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)

	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}
	if err := m.Arm(); err != nil { // re-arm, fresh listener generation
		t.Fatal(err)
	}

	f.Press()
	select {
	case ev := <-m.Events():
		if ev.Type != Press || ev.Kind != KindKeyboard {
			t.Errorf("got event %+v, want keyboard press", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after re-arm")
	}

	f.Release()
	select {
	case ev := <-m.Events():
		if ev.Type != Release {
			t.Errorf("got event %+v, want release", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no release event")
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	f := NewFakeFactory()
	m := NewManager(f)
	if err := m.Arm(); err != nil {
		t.Fatal(err)
	}

	// Nobody drains the channel; emits beyond its capacity must drop, not
	// wedge the listener callback.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.Press()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked with a full event channel")
	}
}
