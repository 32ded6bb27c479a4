// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SearchQueries      *prometheus.CounterVec // label: outcome
	PollAttempts       prometheus.Counter
	PollResults        *prometheus.CounterVec // label: result
	DownloadsStarted   prometheus.Counter
	DownloadsSucceeded prometheus.Counter
	DownloadsFailed    prometheus.Counter
	DownloadsCancelled prometheus.Counter
	DownloaderLines    *prometheus.CounterVec // label: stream

	// Histograms (seconds)
	QueryDuration    prometheus.Observer
	DownloadDuration prometheus.Observer

	// Gauges
	DownloadProgress prometheus.Gauge
	DownloadRunning  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SearchQueries = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livestream_search_queries_total", Help: "Search API queries by classified outcome"}, []string{"outcome"})
		PollAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "livestream_poll_attempts_total", Help: "Poll attempts made"})
		PollResults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livestream_poll_results_total", Help: "Terminal poll results"}, []string{"result"})
		DownloadsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "livestream_downloads_started_total", Help: "Downloader processes launched"})
		DownloadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "livestream_downloads_succeeded_total", Help: "Downloader processes that exited 0"})
		DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "livestream_downloads_failed_total", Help: "Downloader processes that failed to launch or exited non-zero"})
		DownloadsCancelled = promauto.NewCounter(prometheus.CounterOpts{Name: "livestream_downloads_cancelled_total", Help: "Downloader processes terminated on user request"})
		DownloaderLines = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livestream_downloader_output_lines_total", Help: "Lines relayed from the downloader"}, []string{"stream"})
		QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livestream_search_query_duration_seconds", Help: "Search API round trip seconds", Buckets: prometheus.DefBuckets})
		DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livestream_download_duration_seconds", Help: "Recording duration seconds", Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800}})
		DownloadProgress = promauto.NewGauge(prometheus.GaugeOpts{Name: "livestream_download_progress_percent", Help: "Last progress percentage reported by the downloader"})
		DownloadRunning = promauto.NewGauge(prometheus.GaugeOpts{Name: "livestream_download_running", Help: "1 while a downloader process is running"})
	})
}

// CountQuery counts one classified search outcome. Latency goes to
// QueryDuration through TimeFunc.
func CountQuery(outcome string) {
	if SearchQueries != nil {
		SearchQueries.WithLabelValues(outcome).Inc()
	}
}

// IncPollAttempts records one poll attempt.
func IncPollAttempts() {
	if PollAttempts != nil {
		PollAttempts.Inc()
	}
}

// RecordPollResult counts the terminal result of a poll run.
func RecordPollResult(result string) {
	if PollResults != nil {
		PollResults.WithLabelValues(result).Inc()
	}
}

// SetDownloadProgress records the downloader's last reported percentage.
func SetDownloadProgress(p float64) {
	if DownloadProgress != nil {
		DownloadProgress.Set(p)
	}
}

// ObserveDownload records how long a downloader ran.
func ObserveDownload(d time.Duration) {
	if DownloadDuration != nil {
		DownloadDuration.Observe(d.Seconds())
	}
}

// SetDownloadRunning sets gauge to 1 while a child is running else 0.
func SetDownloadRunning(running bool) {
	if DownloadRunning == nil {
		return
	}
	if running {
		DownloadRunning.Set(1)
	} else {
		DownloadRunning.Set(0)
	}
}

// CountLine records one relayed downloader line for stream stdout|stderr.
func CountLine(stream string) {
	if DownloaderLines != nil {
		DownloaderLines.WithLabelValues(stream).Inc()
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with run_id attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("run_id", id))
	}
	return slog.Default()
}
