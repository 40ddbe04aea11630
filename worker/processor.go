// Package worker processes uploaded sessions in the background: it claims
// pending sessions from the store, analyzes their files and records the
// outcome on the session.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lucasjlepore/trackernorm/pipeline"
	"github.com/lucasjlepore/trackernorm/store"
)

// Store describes the session store functions the processor interacts with.
type Store interface {
	Session(ctx context.Context, id int64) (*store.Session, error)
	PendingSessions(ctx context.Context, limit int) ([]int64, error)
	MarkProcessing(ctx context.Context, id int64) (bool, error)
	MarkCompleted(ctx context.Context, id int64, sourceType string, summary pipeline.Summary, samples []pipeline.Sample) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

// AnalyzeFunc parses a session file. pipeline.Analyze is the default.
type AnalyzeFunc func(path string) (pipeline.Summary, []pipeline.Sample, error)

// Option configures processor behaviour.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithAnalyzer replaces the file analyzer.
func WithAnalyzer(fn AnalyzeFunc) Option {
	return func(p *Processor) { p.analyze = fn }
}

// Processor runs the analysis pipeline over stored sessions.
type Processor struct {
	store   Store
	analyze AnalyzeFunc
	logger  *slog.Logger
	now     func() time.Time
}

func NewProcessor(st Store, opts ...Option) *Processor {
	p := &Processor{
		store:   st,
		analyze: pipeline.Analyze,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process analyzes one session. Parse failures are recorded on the session
// as a failed status with a user-facing message and are not returned; only
// store errors are. A session that is already claimed or completed is
// skipped.
func (p *Processor) Process(ctx context.Context, id int64) error {
	log := p.logger.With("session_id", id)

	sess, err := p.store.Session(ctx, id)
	if err != nil {
		log.Error("load session", "error", err)
		return err
	}
	claimed, err := p.store.MarkProcessing(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("session not claimable, skipping", "status", sess.Status)
		return nil
	}

	log.Info("processing session", "file", sess.SourceFile)
	format, _ := pipeline.DetectFormat(sess.SourceFile)
	start := p.now()
	summary, samples, err := p.analyze(sess.SourceFile)
	took := p.now().Sub(start)

	// A claimed session must leave processing even when ctx is cancelled
	// mid-analysis.
	writeCtx := context.WithoutCancel(ctx)
	if err != nil {
		msg := FailureMessage(err)
		log.Error("session failed", "format", format, "error", err)
		recordProcessed(string(format), outcomeFailed, took, p.now())
		return p.store.MarkFailed(writeCtx, id, msg)
	}

	if err := p.store.MarkCompleted(writeCtx, id, string(format), summary, samples); err != nil {
		return err
	}
	recordProcessed(string(format), outcomeCompleted, took, p.now())
	log.Info("session completed", "format", format, "samples", len(samples), "took", took)
	return nil
}

// Drain processes up to batch pending sessions and returns how many were
// attempted. It stops at the first store error.
func (p *Processor) Drain(ctx context.Context, batch int) (int, error) {
	ids, err := p.store.PendingSessions(ctx, batch)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := p.Process(ctx, id); err != nil {
			return i + 1, err
		}
	}
	return len(ids), nil
}

// Run drains pending sessions every interval until ctx cancellation.
func (p *Processor) Run(ctx context.Context, interval time.Duration, batch int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := p.Drain(ctx, batch)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			p.logger.Error("drain error", "error", err)
		case n > 0:
			p.logger.Debug("drained sessions", "count", n)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FailureMessage turns an analysis error into the text stored on a failed
// session.
func FailureMessage(err error) string {
	var (
		formatErr  *pipeline.UnsupportedFormatError
		corruptErr *pipeline.CorruptFileError
		schemaErr  *pipeline.SchemaError
	)
	switch {
	case errors.As(err, &formatErr), errors.As(err, &corruptErr), errors.As(err, &schemaErr):
		return err.Error()
	default:
		return "processing failed: " + err.Error()
	}
}
