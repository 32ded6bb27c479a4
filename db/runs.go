package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("recording run not found")

// Run is one row of recording_runs.
type Run struct {
	RunID            string
	ChannelID        string
	VideoID          string
	ChannelTitle     string
	Title            string
	Phase            string
	Attempts         int
	Outcome          string
	ExitCode         sql.NullInt64
	Error            string
	DownloaderStatus string
}

// RunStore writes run lifecycle events. A nil *RunStore is a no-op so callers
// need not branch on whether persistence is configured.
type RunStore struct {
	db *sql.DB
}

// NewRunStore wraps db.
func NewRunStore(db *sql.DB) *RunStore { return &RunStore{db: db} }

// Close closes the underlying connection pool.
func (s *RunStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts a row for a new run in the polling phase.
func (s *RunStore) StartRun(ctx context.Context, runID, channelID string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recording_runs (run_id, channel_id, phase) VALUES ($1, $2, 'polling')
		 ON CONFLICT (run_id) DO NOTHING`, runID, channelID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// MarkFound records the stream the poll loop found and moves the run to recording.
func (s *RunStore) MarkFound(ctx context.Context, runID, videoID, channelTitle, title string, attempts int) error {
	if s == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recording_runs SET video_id=$2, channel_title=$3, title=$4, attempts=$5, phase='recording', found_at=NOW()
		 WHERE run_id=$1`, runID, videoID, channelTitle, title, attempts)
	if err != nil {
		return fmt.Errorf("mark found: %w", err)
	}
	return expectRow(res)
}

// FinishRun stores the terminal outcome and the process exit code of the run.
func (s *RunStore) FinishRun(ctx context.Context, runID, outcome string, exitCode int, downloaderStatus string, runErr error) error {
	if s == nil {
		return nil
	}
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recording_runs SET phase='finished', outcome=$2, exit_code=$3, downloader_status=NULLIF($4, ''), error=$5, finished_at=NOW()
		 WHERE run_id=$1`, runID, outcome, exitCode, downloaderStatus, msg)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return expectRow(res)
}

// GetRun loads a run by id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var videoID, channelTitle, title, outcome, errMsg, dlStatus sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, channel_id, video_id, channel_title, title, phase, COALESCE(attempts,0), outcome, exit_code, error, downloader_status
		 FROM recording_runs WHERE run_id=$1`, runID).
		Scan(&r.RunID, &r.ChannelID, &videoID, &channelTitle, &title, &r.Phase, &r.Attempts, &outcome, &r.ExitCode, &errMsg, &dlStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.VideoID, r.ChannelTitle, r.Title = videoID.String, channelTitle.String, title.String
	r.Outcome, r.Error, r.DownloaderStatus = outcome.String, errMsg.String, dlStatus.String
	return &r, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
