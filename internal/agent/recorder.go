package agent

import (
	"context"
)

// Recorder persists runs as they progress. The loop logs recorder failures and
// carries on.
type Recorder interface {
	StartRun(ctx context.Context, out *Outcome) error
	AppendRecord(ctx context.Context, rec ActionRecord) error
	FinishRun(ctx context.Context, out *Outcome) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, *Outcome) error         { return nil }
func (NopRecorder) AppendRecord(context.Context, ActionRecord) error { return nil }
func (NopRecorder) FinishRun(context.Context, *Outcome) error        { return nil }
