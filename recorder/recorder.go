// Package recorder hands a found livestream to yt-dlp and supervises the child
// until it exits or the user cancels.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/yt-livestream-rec/telemetry"
)

const (
	DefaultBinary      = "yt-dlp"
	DefaultFormat      = "best"
	DefaultPollTimeout = time.Second
	DefaultKillGrace   = 10 * time.Second
)

// WatchURL builds the public watch page URL for videoID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

// State is the lifecycle of one download session.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateCompleted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session is a snapshot of one recording, handed to OnState on every transition.
type Session struct {
	VideoID        string
	URL            string
	OutputTemplate string
	State          State
	Started        time.Time
	Progress       Progress
	Status         ExitStatus
}

// Options controls how the downloader is invoked.
type Options struct {
	Binary    string
	Format    string
	ExtraArgs []string
	// PollTimeout is how often the session is re-checked while no output arrives.
	PollTimeout time.Duration
	// KillGrace is how long a terminated child may take to exit before Kill.
	KillGrace time.Duration
}

// Supervisor runs one downloader child per Record call. No retries.
type Supervisor struct {
	Launcher Launcher
	Options  Options
	// OnState, if set, observes every state transition.
	OnState func(Session)

	mu      sync.Mutex
	session Session
}

// New returns a Supervisor with zero Options fields replaced by defaults.
func New(l Launcher, opts Options) *Supervisor {
	if l == nil {
		l = ExecLauncher{}
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	return &Supervisor{Launcher: l, Options: opts}
}

// Args returns the downloader argument list for url writing to outputTemplate.
func (s *Supervisor) Args(watchURL, outputTemplate string) []string {
	args := make([]string, 0, len(s.Options.ExtraArgs)+5)
	args = append(args, s.Options.ExtraArgs...)
	return append(args, "-f", s.Options.Format, watchURL, "-o", outputTemplate)
}

// Session returns a snapshot of the current (or last) session.
func (s *Supervisor) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Supervisor) update(fn func(*Session)) {
	s.mu.Lock()
	prev := s.session.State
	fn(&s.session)
	snap := s.session
	s.mu.Unlock()
	if s.OnState != nil && snap.State != prev {
		s.OnState(snap)
	}
}

func (s *Supervisor) setState(st State) { s.update(func(ss *Session) { ss.State = st }) }

// Record launches the downloader for videoID and blocks until it exits or ctx is cancelled.
// A zero exit returns (status, nil). Otherwise the error is a *FailedError or, after
// cancellation, a *CancelledError.
func (s *Supervisor) Record(ctx context.Context, videoID, outputTemplate string) (ExitStatus, error) {
	if videoID == "" {
		return ExitStatus{Code: -1}, &FailedError{Status: ExitStatus{Code: -1}, Err: ErrEmptyVideoID}
	}
	opts := s.Options
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	watch := WatchURL(videoID)
	ctx, span := telemetry.StartSpan(ctx, "recorder.record", telemetry.VideoAttr(videoID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "recorder"), slog.String("video_id", videoID))

	s.mu.Lock()
	s.session = Session{VideoID: videoID, URL: watch, OutputTemplate: outputTemplate}
	s.mu.Unlock()
	s.setState(StateLaunching)

	if err := ctx.Err(); err != nil {
		s.setState(StateTerminated)
		telemetry.Inc(telemetry.DownloadsCancelled)
		telemetry.RecordError(span, err)
		return ExitStatus{Code: -1}, &CancelledError{Status: ExitStatus{Code: -1}, Cause: err}
	}
	if err := prepareOutputDir(outputTemplate); err != nil {
		return s.launchFailed(ctx, span, logger, err)
	}

	args := s.Args(watch, outputTemplate)
	logger.Info("starting downloader", slog.String("binary", opts.Binary), slog.String("url", watch), slog.Any("args", args))
	proc, err := s.Launcher.Launch(ctx, opts.Binary, args)
	if err != nil {
		return s.launchFailed(ctx, span, logger, err)
	}
	telemetry.Inc(telemetry.DownloadsStarted)
	telemetry.SetDownloadRunning(true)
	defer telemetry.SetDownloadRunning(false)
	start := time.Now()
	s.update(func(ss *Session) { ss.State = StateRunning; ss.Started = start })

	ticker := time.NewTicker(opts.PollTimeout)
	defer ticker.Stop()
	lines := proc.Lines()
	for {
		select {
		case ln, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			s.forward(logger, ln)
		case <-proc.Done():
			s.drain(logger, lines)
			status := proc.ExitStatus()
			telemetry.ObserveDownload(time.Since(start))
			// Ctrl-C reaches the child too, so it can exit before ctx.Done is selected.
			if cerr := ctx.Err(); cerr != nil {
				s.update(func(ss *Session) { ss.State = StateTerminated; ss.Status = status })
				telemetry.Inc(telemetry.DownloadsCancelled)
				logger.Info("downloader exited after cancel", slog.String("status", status.String()))
				err := &CancelledError{Status: status, Cause: cerr}
				telemetry.RecordError(span, err)
				return status, err
			}
			s.update(func(ss *Session) { ss.State = StateCompleted; ss.Status = status })
			if status.Success() {
				logger.Info("downloader finished", slog.Duration("elapsed", time.Since(start)))
				telemetry.Inc(telemetry.DownloadsSucceeded)
				telemetry.SetSpanSuccess(span)
				return status, nil
			}
			logger.Error("downloader failed", slog.String("status", status.String()))
			telemetry.Inc(telemetry.DownloadsFailed)
			ferr := &FailedError{Status: status}
			telemetry.RecordError(span, ferr)
			return status, ferr
		case <-ctx.Done():
			status, err := s.terminate(ctx, logger, proc, lines, opts.KillGrace)
			telemetry.ObserveDownload(time.Since(start))
			telemetry.RecordError(span, err)
			return status, err
		case <-ticker.C:
			snap := s.Session()
			logger.Debug("downloader running",
				slog.String("state", snap.State.String()),
				slog.Duration("elapsed", time.Since(start)),
				slog.Float64("percent", snap.Progress.Percent))
		}
	}
}

func (s *Supervisor) launchFailed(ctx context.Context, span trace.Span, logger *slog.Logger, err error) (ExitStatus, error) {
	status := ExitStatus{Code: -1}
	if cerr := ctx.Err(); cerr != nil {
		s.update(func(ss *Session) { ss.State = StateTerminated; ss.Status = status })
		telemetry.Inc(telemetry.DownloadsCancelled)
		logger.Info("download cancelled before start", slog.Any("err", err))
		telemetry.RecordError(span, cerr)
		return status, &CancelledError{Status: status, Cause: cerr}
	}
	s.update(func(ss *Session) { ss.State = StateCompleted; ss.Status = status })
	logger.Error("failed to start downloader", slog.Any("err", err))
	telemetry.Inc(telemetry.DownloadsFailed)
	ferr := &FailedError{Status: status, Err: err}
	telemetry.RecordError(span, ferr)
	return status, ferr
}

// terminate stops proc after cancellation: SIGTERM, then Kill once grace runs out.
func (s *Supervisor) terminate(ctx context.Context, logger *slog.Logger, proc Process, lines <-chan Line, grace time.Duration) (ExitStatus, error) {
	logger.Warn("download cancelled by user; terminating downloader")
	if err := proc.Terminate(); err != nil {
		logger.Warn("terminate failed", slog.Any("err", err))
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	killed := false
	for {
		select {
		case ln, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			s.forward(logger, ln)
		case <-proc.Done():
			s.drain(logger, lines)
			status := proc.ExitStatus()
			s.update(func(ss *Session) { ss.State = StateTerminated; ss.Status = status })
			telemetry.Inc(telemetry.DownloadsCancelled)
			logger.Info("downloader terminated", slog.String("status", status.String()))
			return status, &CancelledError{Status: status, Cause: ctx.Err()}
		case <-timer.C:
			if !killed {
				logger.Warn("downloader ignored terminate; killing", slog.Duration("grace", grace))
				if err := proc.Kill(); err != nil {
					logger.Error("kill failed", slog.Any("err", err))
				}
				killed = true
				timer.Reset(grace)
				continue
			}
			// Give up waiting; keep the child's output flowing so it never blocks.
			logger.Error("downloader did not exit after kill")
			if lines != nil {
				go func() {
					for range lines {
					}
				}()
			}
			status := ExitStatus{Code: -1}
			s.update(func(ss *Session) { ss.State = StateTerminated; ss.Status = status })
			telemetry.Inc(telemetry.DownloadsCancelled)
			return status, &CancelledError{Status: status, Cause: ctx.Err()}
		}
	}
}

// drain forwards whatever output remains once the child has exited.
func (s *Supervisor) drain(logger *slog.Logger, lines <-chan Line) {
	if lines == nil {
		return
	}
	for ln := range lines {
		s.forward(logger, ln)
	}
}

func (s *Supervisor) forward(logger *slog.Logger, ln Line) {
	telemetry.CountLine(ln.Stream.String())
	if p, ok := ParseProgress(ln.Text); ok {
		telemetry.SetDownloadProgress(p.Percent)
		s.mu.Lock()
		s.session.Progress = p
		s.mu.Unlock()
	}
	if ln.Stream == Stderr {
		logger.Warn(ln.Text, slog.String("stream", "stderr"))
		return
	}
	logger.Info(ln.Text, slog.String("stream", "stdout"))
}

// prepareOutputDir creates the static directory prefix of an output template.
func prepareOutputDir(tmpl string) error {
	dir := filepath.Dir(tmpl)
	if i := strings.Index(dir, "%("); i >= 0 {
		dir = filepath.Dir(dir[:i])
	}
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
