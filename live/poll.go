// Package live polls the search API until a channel's livestream appears.
//
// Only a "not found" answer is retried. An ambiguous answer (several live videos) or a
// transport failure ends the run immediately so a misconfigured key or quota problem is
// never mistaken for an offline channel. Cancellation is honoured both while a query is
// in flight and while waiting between attempts.
package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/yt-livestream-rec/telemetry"
	"github.com/onnwee/yt-livestream-rec/youtubeapi"
)

// Defaults give a ~10 minute budget.
const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 30 * time.Second
)

// Searcher performs one classified search (youtubeapi.Client in production).
type Searcher interface {
	Query(ctx context.Context, channelID string) youtubeapi.Outcome
}

// Poller drives Searcher with a fixed backoff.
type Poller struct {
	Searcher    Searcher
	MaxAttempts int
	Interval    time.Duration

	// Wait suspends between attempts; it must return ctx.Err() when ctx ends first.
	// Defaults to a timer raced against ctx.
	Wait func(ctx context.Context, d time.Duration) error
	// OnAttempt, if set, observes every classified attempt.
	OnAttempt func(attempt int, out youtubeapi.Outcome)
}

// Result is the successful end of a poll run.
type Result struct {
	Stream   youtubeapi.Livestream
	Attempts int
	Waits    int
}

// New returns a Poller; non-positive bounds fall back to the defaults.
func New(s Searcher, maxAttempts int, interval time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval < 0 {
		interval = DefaultInterval
	}
	return &Poller{Searcher: s, MaxAttempts: maxAttempts, Interval: interval}
}

// Run polls channelID until a livestream is found or a terminal failure occurs.
// Errors: *ExhaustedError, *CancelledError, *AmbiguousError, *TransportError, ErrEmptyChannel.
func (p *Poller) Run(ctx context.Context, channelID string) (*Result, error) {
	if channelID == "" {
		return nil, ErrEmptyChannel
	}
	ctx, span := telemetry.StartSpan(ctx, "poll.livestream", telemetry.ChannelAttr(channelID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "poll"), slog.String("channel_id", channelID))

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleepCtx
	}

	fail := func(result string, err error) (*Result, error) {
		telemetry.RecordPollResult(result)
		telemetry.RecordError(span, err)
		return nil, err
	}

	waits := 0
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail("cancelled", &CancelledError{Attempts: attempt - 1, Cause: err})
		}
		telemetry.IncPollAttempts()
		out := p.Searcher.Query(ctx, channelID)
		if err := ctx.Err(); err != nil {
			logger.Info("poll cancelled during query", slog.Int("attempt", attempt))
			return fail("cancelled", &CancelledError{Attempts: attempt, Cause: err})
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, out)
		}
		telemetry.AddEvent(span, "attempt", telemetry.AttemptAttr(attempt), telemetry.OutcomeAttr(out.Kind.String()))

		switch out.Kind {
		case youtubeapi.OutcomeFound:
			logger.Info("livestream found",
				slog.Int("attempt", attempt),
				slog.String("video_id", out.Stream.VideoID),
				slog.String("title", out.Stream.Title))
			telemetry.RecordPollResult("found")
			telemetry.SetSpanSuccess(span)
			return &Result{Stream: out.Stream, Attempts: attempt, Waits: waits}, nil
		case youtubeapi.OutcomeAmbiguous:
			logger.Error("ambiguous search result", slog.Int("attempt", attempt), slog.Int("count", out.Count))
			return fail("ambiguous", &AmbiguousError{Count: out.Count})
		case youtubeapi.OutcomeNotFound:
			if attempt >= maxAttempts {
				logger.Warn("poll budget exhausted", slog.Int("attempts", attempt))
				return fail("exhausted", &ExhaustedError{Attempts: attempt})
			}
			logger.Info("no livestream yet",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Duration("retry_in", p.Interval))
			if err := wait(ctx, p.Interval); err != nil {
				logger.Info("poll cancelled while waiting", slog.Int("attempt", attempt))
				return fail("cancelled", &CancelledError{Attempts: attempt, Cause: err})
			}
			waits++
		default:
			logger.Error("search transport error", slog.Int("attempt", attempt), slog.Int("status", out.Status))
			return fail("transport_error", &TransportError{Status: out.Status, Body: out.Body})
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
