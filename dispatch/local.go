package dispatch

import (
	"context"

	"github.com/OnePlanDan/screamscriber/audio"
)

// Model is the inference contract the local backend runs against. The
// dispatcher's worker pool bounds how many transcriptions run at once, so
// implementations do not need their own limiting.
type Model interface {
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

// Local is the Backend for on-machine inference.
type Local struct {
	model Model
}

func NewLocal(model Model) *Local {
	return &Local{model: model}
}

func (l *Local) Origin() Origin { return OriginLocal }

func (l *Local) Transcribe(ctx context.Context, req Request) (string, error) {
	return l.model.Transcribe(ctx, req.Segment)
}
