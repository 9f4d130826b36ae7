package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OnePlanDan/screamscriber/dispatch"
	"github.com/OnePlanDan/screamscriber/encoder"
)

type recordingBackend struct {
	text    string
	err     error
	lastReq dispatch.Request
}

func (b *recordingBackend) Origin() dispatch.Origin { return dispatch.OriginLocal }

func (b *recordingBackend) Transcribe(_ context.Context, req dispatch.Request) (string, error) {
	b.lastReq = req
	return b.text, b.err
}

func newTestServer(t *testing.T, backend dispatch.Backend) (*httptest.Server, *dispatch.Dispatcher) {
	t.Helper()
	d := dispatch.New(backend, dispatch.Config{}, nil)
	t.Cleanup(d.Close)
	ts := httptest.NewServer(New(Config{Model: "whisper-test"}, d).Handler())
	t.Cleanup(ts.Close)
	return ts, d
}

func wavPayload(t *testing.T, seconds float64) []byte {
	t.Helper()
	pcm := make([]byte, int(seconds*float64(encoder.SampleRate))*2)
	data, err := encoder.EncodePCM(encoder.NewWav(), pcm)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func postAudio(t *testing.T, url string, payload []byte, hops string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(payload)
	writer.WriteField("model", "whisper-test")
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/v1/audio/transcriptions", &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if hops != "" {
		req.Header.Set(dispatch.ChainHopHeader, hops)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (message, code string) {
	t.Helper()
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	return parsed.Error.Message, parsed.Error.Code
}

func TestTranscribeWav(t *testing.T) {
	backend := &recordingBackend{text: "hello from the api"}
	ts, _ := newTestServer(t, backend)

	resp := postAudio(t, ts.URL, wavPayload(t, 1), "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Text != "hello from the api" {
		t.Errorf("text = %q", parsed.Text)
	}
	if got := backend.lastReq.Segment.Frames(); got != encoder.SampleRate {
		t.Errorf("backend saw %d frames, want %d", got, encoder.SampleRate)
	}
}

func TestTranscribeRawPCMPassthrough(t *testing.T) {
	backend := &recordingBackend{text: "ok"}
	ts, _ := newTestServer(t, backend)

	raw := make([]byte, encoder.SampleRate) // half a second, headerless
	resp := postAudio(t, ts.URL, raw, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := backend.lastReq.Segment.SampleRate; got != encoder.SampleRate {
		t.Errorf("raw PCM sample rate = %d", got)
	}
}

func TestMissingFileField(t *testing.T) {
	ts, _ := newTestServer(t, &recordingBackend{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("model", "whisper-test")
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/audio/transcriptions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if _, code := decodeError(t, resp); code != "missing_file" {
		t.Errorf("error code = %q", code)
	}
}

func TestHopHeaderReachesDispatch(t *testing.T) {
	backend := &recordingBackend{text: "ok"}
	ts, _ := newTestServer(t, backend)

	resp := postAudio(t, ts.URL, wavPayload(t, 0.5), "2")
	resp.Body.Close()
	if backend.lastReq.Hops != 2 {
		t.Errorf("backend saw hops = %d, want 2", backend.lastReq.Hops)
	}
}

func TestChainLimitStatus(t *testing.T) {
	backend := &recordingBackend{err: dispatch.ErrChainLimit}
	ts, _ := newTestServer(t, backend)

	resp := postAudio(t, ts.URL, wavPayload(t, 0.5), "3")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if _, code := decodeError(t, resp); code != "chain_limit_reached" {
		t.Errorf("error code = %q", code)
	}
}

func TestBackendFailureStatus(t *testing.T) {
	backend := &recordingBackend{err: errors.New("model exploded")}
	ts, _ := newTestServer(t, backend)

	resp := postAudio(t, ts.URL, wavPayload(t, 0.5), "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestModelsList(t *testing.T) {
	ts, _ := newTestServer(t, &recordingBackend{})

	resp, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var parsed struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Object != "list" || len(parsed.Data) != 1 || parsed.Data[0].ID != "whisper-test" {
		t.Errorf("models response = %+v", parsed)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	d := dispatch.New(&recordingBackend{text: "ok"}, dispatch.Config{}, nil)
	defer d.Close()
	s := New(Config{Addr: "127.0.0.1:0"}, d)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	addr := s.Addr()
	if err := s.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if got := s.Addr(); got != addr {
		t.Errorf("second Start rebound the listener: %q then %q", addr, got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
