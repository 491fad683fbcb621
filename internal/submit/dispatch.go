package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Submitter delivers a request to the remote store
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, req Request) error

func (f SubmitterFunc) Submit(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Outcome is Ok when OK is set, otherwise Failed(Reason)
type Outcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func Ok() Outcome {
	return Outcome{OK: true}
}

func Failed(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Poster schedules work on the goroutine that owns the caller's state
type Poster interface {
	Post(fn func()) bool
}

// Dispatcher runs submissions on their own goroutine and posts the outcome back
type Dispatcher struct {
	submitter Submitter
	poster    Poster
	timeout   time.Duration
}

func NewDispatcher(submitter Submitter, poster Poster, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		submitter: submitter,
		poster:    poster,
		timeout:   timeout,
	}
}

// Dispatch returns immediately. done runs on the poster's goroutine.
func (d *Dispatcher) Dispatch(req Request, done func(Outcome)) {
	slog.Info("Submitting whistle", "genre", req.Genre(), "artifact", req.ArtifactPath())

	go func() {
		ctx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		start := time.Now()
		outcome := Ok()
		if err := d.submitter.Submit(ctx, req); err != nil {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
			slog.Error("Submission failed", "error", err, "duration", time.Since(start))
			outcome = Failed(err.Error())
		} else {
			slog.Info("Submission completed", "genre", req.Genre(), "duration", time.Since(start))
		}

		if !d.poster.Post(func() { done(outcome) }) {
			slog.Warn("Submission outcome dropped, owner closed", "ok", outcome.OK)
		}
	}()
}
