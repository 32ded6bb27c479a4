package server

import (
	"sync"
	"time"
)

// Run phases reported by /status.
const (
	PhasePolling   = "polling"
	PhaseRecording = "recording"
	PhaseFinished  = "finished"
)

// StreamInfo describes the livestream being recorded.
type StreamInfo struct {
	ChannelTitle string `json:"channel_title"`
	Title        string `json:"title"`
	VideoID      string `json:"video_id"`
	URL          string `json:"url"`
}

// DownloadInfo is the downloader's last known state.
type DownloadInfo struct {
	State   string  `json:"state"`
	Percent float64 `json:"percent"`
	Exit    string  `json:"exit,omitempty"`
}

// Snapshot is the JSON body of /status.
type Snapshot struct {
	RunID       string        `json:"run_id"`
	ChannelID   string        `json:"channel_id"`
	Phase       string        `json:"phase"`
	Attempts    int           `json:"attempts"`
	LastOutcome string        `json:"last_outcome,omitempty"`
	Stream      *StreamInfo   `json:"stream,omitempty"`
	Download    *DownloadInfo `json:"download,omitempty"`
	Result      string        `json:"result,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	UptimeSec   int64         `json:"uptime_seconds"`
}

// Status is the live view of one run, written by the CLI and read by handlers.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatus starts a status in the polling phase.
func NewStatus(runID, channelID string) *Status {
	return &Status{snap: Snapshot{RunID: runID, ChannelID: channelID, Phase: PhasePolling, StartedAt: time.Now()}}
}

// RecordAttempt stores the latest poll attempt and its classified outcome.
func (s *Status) RecordAttempt(attempt int, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Attempts = attempt
	s.snap.LastOutcome = outcome
}

// SetStream moves the run to the recording phase.
func (s *Status) SetStream(info StreamInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stream = &info
	s.snap.Phase = PhaseRecording
}

// SetDownload replaces the downloader state.
func (s *Status) SetDownload(d DownloadInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Download = &d
}

// Finish marks the run finished with a short result label.
func (s *Status) Finish(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Phase = PhaseFinished
	s.snap.Result = result
}

// Snapshot returns a copy safe to serialize.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if s.snap.Stream != nil {
		st := *s.snap.Stream
		out.Stream = &st
	}
	if s.snap.Download != nil {
		d := *s.snap.Download
		out.Download = &d
	}
	out.UptimeSec = int64(time.Since(s.snap.StartedAt).Seconds())
	return out
}
