// Package dispatch routes sealed audio segments to a transcription backend
// and delivers results through a callback. The session submits and moves on;
// transcription latency never holds up the next recording.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/log"
)

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Request carries one segment plus the number of server hops it has already
// taken when it arrived over the chaining API.
type Request struct {
	Segment audio.Segment
	Hops    int
}

// Result is delivered to the result callback exactly once per request.
type Result struct {
	Text    string
	Origin  Origin
	Latency time.Duration
	Err     error
}

func (r Result) Failed() bool { return r.Err != nil }

// ErrChainLimit reports a segment that already used up its forwarding hops.
var ErrChainLimit = errors.New("dispatch: chain hop limit reached")

// TranscribeError wraps a backend failure with the side it failed on.
type TranscribeError struct {
	Origin Origin
	Err    error
}

func (e *TranscribeError) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Origin, e.Err)
}

func (e *TranscribeError) Unwrap() error { return e.Err }

// Backend turns a request into text. Implementations must honor ctx.
type Backend interface {
	Origin() Origin
	Transcribe(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds one backend call, local or remote.
	Timeout time.Duration
}

// Dispatcher runs a bounded worker pool over a job queue. Submit is the
// async path used by the session; Transcribe is the sync path used by the
// API server.
type Dispatcher struct {
	backend  Backend
	onResult func(Result)
	timeout  time.Duration

	jobs      chan Request
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(backend Backend, cfg Config, onResult func(Result)) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	d := &Dispatcher{
		backend:  backend,
		onResult: onResult,
		timeout:  cfg.Timeout,
		jobs:     make(chan Request, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues a segment for transcription. Never blocks: if the queue is
// full the segment is dropped with a log line rather than stalling the
// session control goroutine.
func (d *Dispatcher) Submit(seg audio.Segment) {
	select {
	case d.jobs <- Request{Segment: seg}:
	default:
		log.Warnf("dispatch queue full, dropping %.1fs segment", seg.Duration().Seconds())
	}
}

// Transcribe runs one request synchronously under the caller's context.
func (d *Dispatcher) Transcribe(ctx context.Context, req Request) Result {
	return d.run(ctx, req)
}

// Close drains the queue and stops the workers. Safe to call twice.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for req := range d.jobs {
		res := d.run(context.Background(), req)
		if d.onResult != nil {
			d.onResult(res)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	origin := d.backend.Origin()
	start := time.Now()
	text, err := d.backend.Transcribe(ctx, req)
	res := Result{Origin: origin, Latency: time.Since(start)}

	if err != nil {
		if errors.Is(err, ErrChainLimit) {
			res.Err = err
		} else {
			res.Err = &TranscribeError{Origin: origin, Err: err}
		}
	} else {
		res.Text = text
		log.TranscriptionText(text)
	}
	log.DispatchResult(string(origin),
		req.Segment.Duration().Seconds(),
		float64(res.Latency.Milliseconds()), res.Failed())
	return res
}
