package session

import "testing"

func runTicks(m *silenceMonitor, n int, speech bool) []SilenceEvent {
	var events []SilenceEvent
	for i := 0; i < n; i++ {
		if ev := m.Tick(speech); ev != SilenceNone {
			events = append(events, ev)
		}
	}
	return events
}

func TestSilenceWarnAfterEightSeconds(t *testing.T) {
	m := newSilenceMonitor(func() bool { return false })

	events := runTicks(m, m.warnAt-1, false)
	if len(events) != 0 {
		t.Fatalf("warned before the window filled: %v", events)
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Errorf("tick %d = %v, want SilenceWarn", m.warnAt, ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor(func() bool { return false })
	runTicks(m, m.warnAt, false)

	// Enough speech ticks to push the ratio past the clear threshold.
	events := runTicks(m, m.warnAt, true)
	found := false
	for _, ev := range events {
		if ev == SilenceWarnClear {
			found = true
		}
		if ev == SilenceWarn || ev == SilenceRepeat {
			t.Errorf("unexpected %v while speaking", ev)
		}
	}
	if !found {
		t.Error("warning never cleared despite sustained speech")
	}
}

func TestSilenceRepeatsEveryWindow(t *testing.T) {
	m := newSilenceMonitor(func() bool { return false })

	events := runTicks(m, 3*m.warnAt, false)
	want := []SilenceEvent{SilenceWarn, SilenceRepeat, SilenceRepeat}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestSilenceAutoCloseOnlyWhenEnabled(t *testing.T) {
	m := newSilenceMonitor(func() bool { return false })
	for _, ev := range runTicks(m, 2*m.windowSz, false) {
		if ev == SilenceAutoClose {
			t.Fatal("auto-close fired with auto-close disabled")
		}
	}

	m = newSilenceMonitor(func() bool { return true })
	events := runTicks(m, m.windowSz, false)
	if len(events) == 0 || events[len(events)-1] != SilenceAutoClose {
		t.Errorf("events = %v, want trailing SilenceAutoClose", events)
	}
}

func TestSilenceSpeechPreventsAutoClose(t *testing.T) {
	m := newSilenceMonitor(func() bool { return true })

	// Alternate speech and silence so every window stays above threshold.
	for i := 0; i < 2*m.windowSz; i++ {
		if ev := m.Tick(i%2 == 0); ev == SilenceAutoClose {
			t.Fatalf("auto-close at tick %d despite 50%% speech", i)
		}
	}
}
