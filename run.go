package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/yt-livestream-rec/config"
	"github.com/onnwee/yt-livestream-rec/db"
	"github.com/onnwee/yt-livestream-rec/live"
	"github.com/onnwee/yt-livestream-rec/recorder"
	"github.com/onnwee/yt-livestream-rec/server"
	"github.com/onnwee/yt-livestream-rec/telemetry"
	"github.com/onnwee/yt-livestream-rec/youtubeapi"
)

// Process exit codes.
const (
	exitOK                = 0
	exitFailure           = 1
	exitCredentialMissing = 2
	exitPollExhausted     = 3
	exitPollCancelled     = 4
	exitDownloadCancelled = 5
)

// deps are the seams main wires to the real world and tests replace.
type deps struct {
	stdout     io.Writer
	stderr     io.Writer
	launcher   recorder.Launcher
	httpClient *http.Client
	// wait overrides the poll loop's sleep between attempts.
	wait func(ctx context.Context, d time.Duration) error
}

var errUsage = errors.New("usage")

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrCredentialMissing):
		return exitCredentialMissing
	case errors.Is(err, live.ErrPollExhausted):
		return exitPollExhausted
	case errors.Is(err, live.ErrPollCancelled):
		return exitPollCancelled
	case errors.Is(err, recorder.ErrDownloadCancelled):
		return exitDownloadCancelled
	default:
		return exitFailure
	}
}

// resultLabel is the short outcome stored in /status and the run history.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, config.ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, live.ErrPollExhausted):
		return "poll_exhausted"
	case errors.Is(err, live.ErrPollCancelled):
		return "poll_cancelled"
	case errors.Is(err, live.ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, live.ErrTransport):
		return "transport_error"
	case errors.Is(err, recorder.ErrDownloadCancelled):
		return "download_cancelled"
	case errors.Is(err, recorder.ErrDownloadFailed):
		return "download_failed"
	default:
		return "error"
	}
}

// describe renders the human-readable line printed for every terminal error.
func describe(err error, keyFile string) string {
	var (
		te *live.TransportError
		ae *live.AmbiguousError
		ex *live.ExhaustedError
		fe *recorder.FailedError
	)
	switch {
	case errors.Is(err, config.ErrCredentialMissing):
		return fmt.Sprintf("API key file '%s' not found or empty", keyFile)
	case errors.As(err, &ex):
		return fmt.Sprintf("No livestream found whilst polling (%d attempts)", ex.Attempts)
	case errors.Is(err, live.ErrPollCancelled):
		return "Polling cancelled by user"
	case errors.As(err, &ae):
		return fmt.Sprintf("Multiple livestreams (%d) airing on channel; not recording", ae.Count)
	case errors.As(err, &te):
		return te.Error()
	case errors.Is(err, recorder.ErrDownloadCancelled):
		return "Download cancelled by user"
	case errors.As(err, &fe):
		return "Download failed: " + fe.Error()
	default:
		return err.Error()
	}
}

func parseArgs(args []string, cfg *config.Config, stderr io.Writer) (string, error) {
	fs := flag.NewFlagSet("yt-livestream-rec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: yt-livestream-rec [flags] <channel_id>")
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "file holding the YouTube Data API key")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "search attempts before giving up")
	fs.DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "wait between search attempts")
	fs.StringVar(&cfg.DataDir, "out", cfg.DataDir, "output directory")
	fs.StringVar(&cfg.OutputTemplate, "template", cfg.OutputTemplate, "yt-dlp output template")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "yt-dlp format selector")
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		fs.Usage()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

// run executes one watch-and-record cycle and returns the process exit code.
func run(ctx context.Context, args []string, d deps) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(d.stderr, "config:", err)
		return exitFailure
	}
	channelID, err := parseArgs(args, cfg, d.stderr)
	if err != nil {
		return exitFailure
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(d.stderr, "config:", err)
		return exitFailure
	}

	fmt.Fprintln(d.stdout, "Loading API key...")
	cred, err := config.LoadCredential(cfg.KeyFile, cfg.CredentialKind)
	if err != nil {
		slog.Debug("credential load failed", slog.Any("err", err))
		fmt.Fprintln(d.stderr, describe(err, cfg.KeyFile))
		return exitCode(err)
	}

	runID := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, runID)
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "cli"))
	logger.Info("starting run",
		slog.String("channel_id", channelID),
		slog.String("credential", cred.Masked()),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.Duration("interval", cfg.PollInterval))

	status := server.NewStatus(runID, channelID)
	if cfg.HTTPAddr != "" {
		srvCtx, stopSrv := context.WithCancel(context.WithoutCancel(ctx))
		defer stopSrv()
		go func() {
			if err := server.Start(srvCtx, cfg.HTTPAddr, status); err != nil {
				logger.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	var store *db.RunStore
	if cfg.DBDsn != "" {
		store = openRunStore(ctx, cfg.DBDsn, logger)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}
	// History writes must outlive a cancelled run.
	bg := context.WithoutCancel(ctx)
	if err := store.StartRun(bg, runID, channelID); err != nil {
		logger.Warn("run history unavailable", slog.Any("err", err))
	}
	finish := func(err error, dlStatus string) int {
		code := exitCode(err)
		label := resultLabel(err)
		status.Finish(label)
		if herr := store.FinishRun(bg, runID, label, code, dlStatus, err); herr != nil {
			logger.Warn("run history write failed", slog.Any("err", herr))
		}
		if err != nil {
			fmt.Fprintln(d.stderr, describe(err, cfg.KeyFile))
		}
		logger.Info("run finished", slog.String("result", label), slog.Int("exit_code", code))
		return code
	}

	client, err := youtubeapi.New(ctx, cred, youtubeapi.Options{Endpoint: cfg.APIEndpoint, HTTPClient: d.httpClient})
	if err != nil {
		return finish(err, "")
	}
	poller := live.New(client, cfg.MaxAttempts, cfg.PollInterval)
	poller.Wait = d.wait
	poller.OnAttempt = func(attempt int, out youtubeapi.Outcome) {
		status.RecordAttempt(attempt, out.Kind.String())
	}
	fmt.Fprintf(d.stdout, "Polling for livestream on YouTube channel '%s'...\n", channelID)
	res, err := poller.Run(ctx, channelID)
	if err != nil {
		return finish(err, "")
	}

	stream := res.Stream
	fmt.Fprintf(d.stdout, "'%s' are livestreaming '%s' [%s]\n", stream.ChannelTitle, stream.Title, stream.VideoID)
	status.SetStream(server.StreamInfo{ChannelTitle: stream.ChannelTitle, Title: stream.Title, VideoID: stream.VideoID, URL: recorder.WatchURL(stream.VideoID)})
	if err := store.MarkFound(bg, runID, stream.VideoID, stream.ChannelTitle, stream.Title, res.Attempts); err != nil {
		logger.Warn("run history write failed", slog.Any("err", err))
	}

	sup := recorder.New(d.launcher, recorder.Options{
		Binary:      cfg.DownloaderPath,
		Format:      cfg.Format,
		ExtraArgs:   cfg.ExtraArgs,
		PollTimeout: cfg.OutputPoll,
		KillGrace:   cfg.KillGrace,
	})
	sup.OnState = func(s recorder.Session) {
		info := server.DownloadInfo{State: s.State.String(), Percent: s.Progress.Percent}
		if s.State == recorder.StateCompleted || s.State == recorder.StateTerminated {
			info.Exit = s.Status.String()
		}
		status.SetDownload(info)
	}
	fmt.Fprintf(d.stdout, "Downloading '%s'...\n", stream.VideoID)
	exit, err := sup.Record(ctx, stream.VideoID, cfg.OutputPath())
	if err == nil {
		fmt.Fprintf(d.stdout, "Recording of '%s' finished\n", stream.Title)
	}
	return finish(err, exit.String())
}

func openRunStore(ctx context.Context, dsn string, logger *slog.Logger) *db.RunStore {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		logger.Warn("run history disabled: db connect failed", slog.Any("err", err))
		return nil
	}
	if err := db.Migrate(ctx, database); err != nil {
		logger.Warn("run history disabled: migrate failed", slog.Any("err", err))
		_ = database.Close()
		return nil
	}
	return db.NewRunStore(database)
}
