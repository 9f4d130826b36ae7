package encoder

import (
	"encoding/binary"
	"math"
	"testing"
)

func sinePCM(nSamples int) []byte {
	pcm := make([]byte, nSamples*2)
	for i := 0; i < nSamples; i++ {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(SampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestNew(t *testing.T) {
	for _, format := range []string{"flac", "wav"} {
		t.Run(format, func(t *testing.T) {
			enc, err := New(format)
			if err != nil {
				t.Fatalf("New(%q): %v", format, err)
			}
			if enc == nil {
				t.Fatalf("New(%q) returned nil", format)
			}
		})
	}
	t.Run("unknown", func(t *testing.T) {
		if _, err := New("mp3"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
	if got := enc.Bytes(); len(got) < 4 || string(got[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestEncodePCMFlac(t *testing.T) {
	pcm := sinePCM(BlockSize + BlockSize/2)
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	out, err := EncodePCM(enc, pcm)
	if err != nil {
		t.Fatalf("EncodePCM: %v", err)
	}
	if string(out[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	if enc.TotalFrames() != uint64(len(pcm)/2) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(pcm)/2)
	}
}

func TestWavRoundTrip(t *testing.T) {
	pcm := sinePCM(SampleRate / 4)

	out, err := EncodePCM(NewWav(), pcm)
	if err != nil {
		t.Fatalf("EncodePCM: %v", err)
	}
	if len(out) != WavHeaderSize+len(pcm) {
		t.Fatalf("encoded size = %d, want %d", len(out), WavHeaderSize+len(pcm))
	}

	decoded, rate, err := DecodeWav(out)
	if err != nil {
		t.Fatalf("DecodeWav: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("sample rate = %d, want %d", rate, SampleRate)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded %d bytes, want %d", len(decoded), len(pcm))
	}
	for i := range pcm {
		if decoded[i] != pcm[i] {
			t.Fatalf("decoded PCM differs at byte %d", i)
		}
	}
}

func TestDecodeWavRawPassthrough(t *testing.T) {
	pcm := sinePCM(100)
	decoded, rate, err := DecodeWav(pcm)
	if err != nil {
		t.Fatalf("DecodeWav raw: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("sample rate = %d, want %d", rate, SampleRate)
	}
	if len(decoded) != len(pcm) {
		t.Errorf("decoded %d bytes, want %d", len(decoded), len(pcm))
	}
}

func TestDecodeWavRejectsStereo(t *testing.T) {
	out, err := EncodePCM(NewWav(), sinePCM(64))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint16(out[22:24], 2) // channel count
	if _, _, err := DecodeWav(out); err == nil {
		t.Error("expected error for stereo WAV")
	}
}
