package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/OnePlanDan/screamscriber/encoder"
	"github.com/OnePlanDan/screamscriber/log"
)

// ChainHopHeader carries how many server-to-server forwards a segment has
// already taken. Instances refuse to forward once the configured cap is hit.
const ChainHopHeader = "X-Chain-Hops"

type RemoteConfig struct {
	// URL is the full transcription endpoint, e.g.
	// http://host:8760/v1/audio/transcriptions.
	URL      string
	APIKey   string
	Model    string
	Language string
	// Format is the upload codec, flac or wav.
	Format  string
	MaxHops int
	Timeout time.Duration
}

// Remote sends segments to an OpenAI-compatible transcription endpoint.
// Transient failures (timeout, connection refused, 5xx) are retried exactly
// once; there is no fallback to local inference.
type Remote struct {
	cfg     RemoteConfig
	client  *TracedClient
	backoff time.Duration // tests shrink this
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Format == "" {
		cfg.Format = "flac"
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Remote{
		cfg:     cfg,
		client:  NewTracedClient(cfg.Timeout),
		backoff: 500 * time.Millisecond,
	}
}

func (r *Remote) Origin() Origin { return OriginRemote }

// Warm pre-opens the connection so the first segment upload skips the
// TCP+TLS handshake.
func (r *Remote) Warm() {
	go r.client.Warm(r.cfg.URL)
}

func (r *Remote) Transcribe(ctx context.Context, req Request) (string, error) {
	if req.Hops >= r.cfg.MaxHops {
		return "", fmt.Errorf("%w (%d hops, cap %d)", ErrChainLimit, req.Hops, r.cfg.MaxHops)
	}

	enc, err := encoder.New(r.cfg.Format)
	if err != nil {
		return "", err
	}
	data, err := encoder.EncodePCM(enc, req.Segment.PCM)
	if err != nil {
		return "", fmt.Errorf("encode segment: %w", err)
	}

	text, err := r.post(ctx, data, req.Hops)
	if err != nil && isTransient(err) && ctx.Err() == nil {
		log.Warnf("remote transcription failed, retrying once: %v", err)
		select {
		case <-time.After(r.backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		text, err = r.post(ctx, data, req.Hops)
	}
	return text, err
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (r *Remote) post(ctx context.Context, data []byte, hops int) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+r.cfg.Format)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if r.cfg.Model != "" {
		writer.WriteField("model", r.cfg.Model)
	}
	writer.WriteField("response_format", "json")
	if r.cfg.Language != "" {
		writer.WriteField("language", r.cfg.Language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(ChainHopHeader, strconv.Itoa(hops+1))
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &transientError{err: err}
	}

	if resp.StatusCode >= 500 {
		return "", &transientError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(resp.Body, 200))}
	}
	if resp.StatusCode != http.StatusOK {
		var oe openaiError
		if json.Unmarshal(resp.Body, &oe) == nil && oe.Error.Message != "" {
			return "", fmt.Errorf("remote API error %d: %s", resp.StatusCode, oe.Error.Message)
		}
		return "", fmt.Errorf("remote API error %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("remote response parse: %w", err)
	}

	if m := resp.Metrics; m != nil {
		log.Infof("remote upload: total=%dms ttfb=%dms reused=%v",
			m.Total.Milliseconds(), m.TTFB.Milliseconds(), m.ConnReused)
	}
	return parsed.Text, nil
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
