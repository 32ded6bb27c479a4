package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/yt-livestream-rec/telemetry"
)

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(NewStatus("r1", "UC1")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestStatusLifecycle(t *testing.T) {
	st := NewStatus("r1", "UC1")
	h := NewMux(st)
	get := func() Snapshot {
		t.Helper()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status code = %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var s Snapshot
		if err := json.NewDecoder(rr.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return s
	}

	s := get()
	if s.RunID != "r1" || s.ChannelID != "UC1" || s.Phase != PhasePolling || s.Stream != nil {
		t.Errorf("initial = %+v", s)
	}

	st.RecordAttempt(2, "not_found")
	st.SetStream(StreamInfo{ChannelTitle: "Acme", Title: "Launch Event", VideoID: "abc123"})
	st.SetDownload(DownloadInfo{State: "running", Percent: 12.5})
	s = get()
	if s.Attempts != 2 || s.LastOutcome != "not_found" || s.Phase != PhaseRecording {
		t.Errorf("after found = %+v", s)
	}
	if s.Stream == nil || s.Stream.VideoID != "abc123" || s.Download == nil || s.Download.Percent != 12.5 {
		t.Errorf("stream/download = %+v / %+v", s.Stream, s.Download)
	}

	st.Finish("completed")
	if s = get(); s.Phase != PhaseFinished || s.Result != "completed" {
		t.Errorf("finished = %+v", s)
	}
}

func TestStatusRejectsNonGet(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(NewStatus("r1", "UC1")).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	st := NewStatus("r1", "UC1")
	st.SetStream(StreamInfo{VideoID: "a"})
	snap := st.Snapshot()
	snap.Stream.VideoID = "mutated"
	if st.Snapshot().Stream.VideoID != "a" {
		t.Error("snapshot shares stream pointer with status")
	}
}

func TestCorrelationHeader(t *testing.T) {
	h := NewMux(NewStatus("r1", "UC1"))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "given-id")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "given-id" {
		t.Errorf("correlation = %q, want given-id", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get("X-Correlation-ID"); len(got) != 36 {
		t.Errorf("generated correlation = %q, want uuid", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	telemetry.Init()
	telemetry.IncPollAttempts()
	rr := httptest.NewRecorder()
	NewMux(NewStatus("r1", "UC1")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "livestream_poll_attempts_total") {
		t.Error("metrics body missing livestream_poll_attempts_total")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, NewStatus("r1", "UC1")) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
