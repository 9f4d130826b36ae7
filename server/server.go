// Package server exposes the dispatcher over an OpenAI-compatible HTTP API.
// Another instance pointed at this one as its remote backend forms a chain;
// the hop header keeps such chains from looping forever.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/dispatch"
	"github.com/OnePlanDan/screamscriber/encoder"
	"github.com/OnePlanDan/screamscriber/log"
)

const maxUploadBytes = 64 << 20

type Config struct {
	Addr string
	// Model is the identifier reported by /v1/models and accepted (but not
	// required) in transcription requests.
	Model string
}

type Server struct {
	cfg  Config
	disp *dispatch.Dispatcher

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, disp *dispatch.Dispatcher) *Server {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Server{cfg: cfg, disp: disp}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/audio/transcriptions", s.handleTranscribe)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	return mux
}

// Start begins serving on the configured address. Calling Start on a running
// server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler()}

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("api server: %v", err)
		}
	}(s.srv, ln)

	log.Infof("api server listening on %s", ln.Addr())
	return nil
}

// Addr reports the bound address, useful when Addr was ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down gracefully. Calling Stop on a stopped server is
// a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse multipart form: "+err.Error(), "invalid_request_error", "")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing required form field: file", "invalid_request_error", "missing_file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio payload", "invalid_request_error", "")
		return
	}

	pcm, rate, err := encoder.DecodeWav(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "unsupported_audio")
		return
	}

	hops := 0
	if h := r.Header.Get(dispatch.ChainHopHeader); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n > 0 {
			hops = n
		}
	}

	seg := audio.Segment{PCM: pcm, Start: time.Now(), SampleRate: rate}
	res := s.disp.Transcribe(r.Context(), dispatch.Request{Segment: seg, Hops: hops})

	if res.Failed() {
		switch {
		case errors.Is(res.Err, dispatch.ErrChainLimit):
			writeError(w, http.StatusTooManyRequests, res.Err.Error(), "requests", "chain_limit_reached")
		default:
			writeError(w, http.StatusBadGateway, res.Err.Error(), "api_error", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       s.cfg.Model,
				"object":   "model",
				"created":  time.Now().Unix(),
				"owned_by": "screamscriber",
			},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}
