package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/encoder"
)

// WhisperConfig points at a whisper-cpp style CLI binary.
type WhisperConfig struct {
	Binary    string
	ModelPath string
	Language  string
	Threads   int // 0 = auto
}

// WhisperModel shells out to a whisper CLI for each segment. The segment is
// written to a temp WAV file, the binary emits JSON on stdout, and segment
// texts are joined into one line.
type WhisperModel struct {
	cfg WhisperConfig
}

func NewWhisperModel(cfg WhisperConfig) (*WhisperModel, error) {
	if _, err := os.Stat(cfg.Binary); err != nil {
		return nil, fmt.Errorf("whisper binary %q: %w", cfg.Binary, err)
	}
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("whisper model %q: %w", cfg.ModelPath, err)
		}
	}
	return &WhisperModel{cfg: cfg}, nil
}

type whisperOutput struct {
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
	Text string `json:"text"`
}

func (m *WhisperModel) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	wav, err := encoder.EncodePCM(encoder.NewWav(), seg.PCM)
	if err != nil {
		return "", fmt.Errorf("encode segment: %w", err)
	}

	f, err := os.CreateTemp("", "screamscriber-*.wav")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(wav); err != nil {
		f.Close()
		return "", err
	}
	f.Close()

	cmd := exec.CommandContext(ctx, m.cfg.Binary, m.buildArgs(f.Name())...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out whisperOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", fmt.Errorf("whisper output parse: %w", err)
	}
	if len(out.Segments) == 0 {
		return strings.TrimSpace(out.Text), nil
	}
	parts := make([]string, 0, len(out.Segments))
	for _, s := range out.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func (m *WhisperModel) buildArgs(wavPath string) []string {
	var args []string
	if m.cfg.ModelPath != "" {
		args = append(args, "--model", m.cfg.ModelPath)
	}
	args = append(args, "--output-json")
	if m.cfg.Language != "" {
		args = append(args, "--language", m.cfg.Language)
	}
	if m.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(m.cfg.Threads))
	}
	return append(args, wavPath)
}
