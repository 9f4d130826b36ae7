package session

import "testing"

func TestVADFraming(t *testing.T) {
	p, err := newVADProcessor(16000)
	if err != nil {
		t.Fatal(err)
	}
	if p.frameBytes != 640 {
		t.Fatalf("frameBytes = %d, want 640 for 20ms at 16kHz", p.frameBytes)
	}

	// 1000 bytes: one full frame processed, 360 left buffered.
	p.Process(make([]byte, 1000))
	if total, _ := p.Stats(); total != 1 {
		t.Errorf("total frames = %d, want 1", total)
	}
	p.Process(make([]byte, 280))
	if total, _ := p.Stats(); total != 2 {
		t.Errorf("total frames = %d after buffered remainder, want 2", total)
	}
}

func TestVADSilenceNotVoice(t *testing.T) {
	p, err := newVADProcessor(16000)
	if err != nil {
		t.Fatal(err)
	}
	p.Process(make([]byte, 640*50)) // one second of digital silence
	if p.VoiceDetected() {
		t.Error("silence flagged as voice")
	}
	if p.HasSpeechTick() {
		t.Error("silence reported as a speaking tick")
	}
}

func TestVADReset(t *testing.T) {
	p, err := newVADProcessor(16000)
	if err != nil {
		t.Fatal(err)
	}
	p.Process(make([]byte, 640*10+100))
	p.Reset()
	if total, speech := p.Stats(); total != 0 || speech != 0 {
		t.Errorf("stats after reset = (%d, %d), want zeros", total, speech)
	}
	// The partial frame must not survive the reset.
	p.Process(make([]byte, 540))
	if total, _ := p.Stats(); total != 0 {
		t.Errorf("stale buffered bytes completed a frame after reset")
	}
}
