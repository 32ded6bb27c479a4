// Command yt-livestream-rec waits for a YouTube channel to go live and records the
// broadcast with yt-dlp.
// It:
//   - Reads the API key from a local file (default api.key).
//   - Polls the search API for the channel's live video within a bounded budget.
//   - Hands the stream to yt-dlp and supervises it until it exits or the user interrupts.
//   - Optionally exposes /healthz, /status and /metrics (HTTP_ADDR) and records run
//     history in Postgres (DB_DSN).
//
// Ctrl-C during polling or recording ends the run with a distinct exit code.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/yt-livestream-rec/recorder"
	"github.com/onnwee/yt-livestream-rec/telemetry"
)

const (
	serviceName    = "yt-livestream-rec"
	serviceVersion = "1.0.0"
)

func main() {
	// Load .env file if present (local convenience only)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(serviceName, serviceVersion)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("yt-livestream-rec starting",
		slog.String("version", serviceVersion),
		slog.Bool("tracing", telemetry.IsTracingEnabled()))

	// Root context cancelled on Ctrl-C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		launcher: recorder.ExecLauncher{},
	})
	stop()
	shutdown()
	os.Exit(code)
}
