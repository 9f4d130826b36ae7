package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// stubWhisper writes a shell script that emits canned JSON, standing in for
// the real whisper binary.
func stubWhisper(t *testing.T, payload string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub not available on windows")
	}
	path := filepath.Join(t.TempDir(), "whisper-stub")
	script := "#!/bin/sh\necho '" + payload + "'\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperModelJoinsSegments(t *testing.T) {
	bin := stubWhisper(t, `{"segments":[{"text":" Hello "},{"text":"world. "}]}`)
	m, err := NewWhisperModel(WhisperConfig{Binary: bin})
	if err != nil {
		t.Fatal(err)
	}

	text, err := m.Transcribe(context.Background(), testSegment(1))
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello world." {
		t.Errorf("text = %q", text)
	}
}

func TestWhisperModelPlainTextOutput(t *testing.T) {
	bin := stubWhisper(t, `{"text":" just text "}`)
	m, err := NewWhisperModel(WhisperConfig{Binary: bin})
	if err != nil {
		t.Fatal(err)
	}

	text, err := m.Transcribe(context.Background(), testSegment(1))
	if err != nil {
		t.Fatal(err)
	}
	if text != "just text" {
		t.Errorf("text = %q", text)
	}
}

func TestWhisperModelMissingBinary(t *testing.T) {
	if _, err := NewWhisperModel(WhisperConfig{Binary: "/nonexistent/whisper"}); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestWhisperBuildArgs(t *testing.T) {
	m := &WhisperModel{cfg: WhisperConfig{
		ModelPath: "/models/small.bin",
		Language:  "en",
		Threads:   4,
	}}
	args := m.buildArgs("/tmp/a.wav")
	want := []string{"--model", "/models/small.bin", "--output-json", "--language", "en", "--threads", "4", "/tmp/a.wav"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
