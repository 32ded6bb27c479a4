package live

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/yt-livestream-rec/config"
	"github.com/onnwee/yt-livestream-rec/testutil"
	"github.com/onnwee/yt-livestream-rec/youtubeapi"
)

// scriptedSearcher replays outcomes in order and repeats the last one.
type scriptedSearcher struct {
	mu       sync.Mutex
	outcomes []youtubeapi.Outcome
	calls    int
}

func (s *scriptedSearcher) Query(ctx context.Context, channelID string) youtubeapi.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	s.calls++
	return s.outcomes[i]
}

func (s *scriptedSearcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// countingWait records suspensions without sleeping.
type countingWait struct {
	n       int
	lastDur time.Duration
}

func (w *countingWait) Wait(ctx context.Context, d time.Duration) error {
	w.n++
	w.lastDur = d
	return ctx.Err()
}

var (
	notFound = youtubeapi.Outcome{Kind: youtubeapi.OutcomeNotFound}
	found    = youtubeapi.Outcome{Kind: youtubeapi.OutcomeFound, Count: 1, Stream: youtubeapi.Livestream{ChannelTitle: "Acme", Title: "Launch Event", VideoID: "abc123"}}
)

func TestRun_FoundOnThirdAttempt(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound, notFound, found}}
	w := &countingWait{}
	p := &Poller{Searcher: s, MaxAttempts: 3, Interval: 30 * time.Second, Wait: w.Wait}

	res, err := p.Run(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Attempts != 3 || s.Calls() != 3 {
		t.Errorf("attempts = %d (calls %d), want 3", res.Attempts, s.Calls())
	}
	if w.n != 2 || res.Waits != 2 {
		t.Errorf("waits = %d (result %d), want 2", w.n, res.Waits)
	}
	if w.lastDur != 30*time.Second {
		t.Errorf("wait duration = %v, want 30s", w.lastDur)
	}
	if res.Stream != found.Stream {
		t.Errorf("Stream = %+v, want %+v", res.Stream, found.Stream)
	}
}

func TestRun_Exhausted(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound}}
	w := &countingWait{}
	p := &Poller{Searcher: s, MaxAttempts: 3, Interval: time.Second, Wait: w.Wait}

	_, err := p.Run(context.Background(), "UC1")
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("err = %v, want ErrPollExhausted", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 3 {
		t.Errorf("ExhaustedError = %+v, want 3 attempts", ex)
	}
	if s.Calls() != 3 {
		t.Errorf("calls = %d, want 3", s.Calls())
	}
	if w.n != 2 {
		t.Errorf("waits = %d, want 2 (no wait after the last attempt)", w.n)
	}
	if errors.Is(err, ErrPollCancelled) {
		t.Error("exhausted must not be reported as cancelled")
	}
}

func TestRun_FatalOutcomesStopImmediately(t *testing.T) {
	tests := []struct {
		name   string
		out    youtubeapi.Outcome
		target error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "ambiguous",
			out:    youtubeapi.Outcome{Kind: youtubeapi.OutcomeAmbiguous, Count: 2},
			target: ErrAmbiguous,
			check: func(t *testing.T, err error) {
				var ae *AmbiguousError
				if !errors.As(err, &ae) || ae.Count != 2 {
					t.Errorf("AmbiguousError = %+v, want count 2", ae)
				}
			},
		},
		{
			name:   "transport",
			out:    youtubeapi.Outcome{Kind: youtubeapi.OutcomeTransportError, Status: 403, Body: "quotaExceeded"},
			target: ErrTransport,
			check: func(t *testing.T, err error) {
				var te *TransportError
				if !errors.As(err, &te) || te.Status != 403 || te.Body != "quotaExceeded" {
					t.Errorf("TransportError = %+v, want 403/quotaExceeded", te)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{tt.out, found}}
			w := &countingWait{}
			p := &Poller{Searcher: s, MaxAttempts: 20, Interval: time.Second, Wait: w.Wait}

			_, err := p.Run(context.Background(), "UC1")
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
			tt.check(t, err)
			if s.Calls() != 1 || w.n != 0 {
				t.Errorf("calls = %d waits = %d, want 1 and 0", s.Calls(), w.n)
			}
		})
	}
}

func TestRun_FatalAfterNotFound(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound, {Kind: youtubeapi.OutcomeTransportError, Status: 500, Body: "x"}, found}}
	p := &Poller{Searcher: s, MaxAttempts: 5, Wait: (&countingWait{}).Wait}

	_, err := p.Run(context.Background(), "UC1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if s.Calls() != 2 {
		t.Errorf("calls = %d, want 2", s.Calls())
	}
}

func TestRun_CancelDuringWait(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &Poller{
		Searcher:    s,
		MaxAttempts: 20,
		Interval:    time.Hour,
		Wait: func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepCtx(ctx, d)
		},
	}

	_, err := p.Run(ctx, "UC1")
	if !errors.Is(err, ErrPollCancelled) {
		t.Fatalf("err = %v, want ErrPollCancelled", err)
	}
	if errors.Is(err, ErrPollExhausted) {
		t.Error("cancelled must not be reported as exhausted")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want to wrap context.Canceled", err)
	}
	if s.Calls() != 1 {
		t.Errorf("calls = %d, want 1", s.Calls())
	}
}

func TestRun_CancelOnLastBudgetedWait(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &Poller{
		Searcher:    s,
		MaxAttempts: 2,
		Wait: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := p.Run(ctx, "UC1")
	if !errors.Is(err, ErrPollCancelled) {
		t.Fatalf("err = %v, want ErrPollCancelled", err)
	}
	var ce *CancelledError
	if !errors.As(err, &ce) || ce.Attempts != 1 {
		t.Errorf("CancelledError = %+v, want 1 attempt", ce)
	}
}

func TestRun_RealTimerCancelsPromptly(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{notFound}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p := New(s, 20, time.Hour)

	start := time.Now()
	_, err := p.Run(ctx, "UC1")
	if !errors.Is(err, ErrPollCancelled) {
		t.Fatalf("err = %v, want ErrPollCancelled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancellation took %v", time.Since(start))
	}
}

func TestRun_CancelDuringQuery(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	entered := make(chan struct{})
	m.QueueHandler(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	})
	c, err := youtubeapi.New(context.Background(), config.Credential{Token: "k"}, youtubeapi.Options{Endpoint: m.Endpoint(), HTTPClient: m.Client()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-entered
		cancel()
	}()

	_, err = New(c, 20, time.Second).Run(ctx, "UC1")
	if !errors.Is(err, ErrPollCancelled) {
		t.Fatalf("err = %v, want ErrPollCancelled (not a transport error)", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("in-flight cancellation must not surface as transport error")
	}
}

func TestRun_AgainstMockServer(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.QueueSearch(0)
	m.QueueSearch(0)
	m.QueueSearch(1, testutil.SearchItem{ChannelTitle: "Acme", Title: "Launch Event", VideoID: "abc123"})
	c, err := youtubeapi.New(context.Background(), config.Credential{Token: "k"}, youtubeapi.Options{Endpoint: m.Endpoint(), HTTPClient: m.Client()})
	if err != nil {
		t.Fatal(err)
	}

	var seen []youtubeapi.OutcomeKind
	p := New(c, 3, time.Millisecond)
	p.OnAttempt = func(attempt int, out youtubeapi.Outcome) { seen = append(seen, out.Kind) }

	res, err := p.Run(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Stream.VideoID != "abc123" || res.Attempts != 3 {
		t.Errorf("result = %+v", res)
	}
	if len(seen) != 3 || seen[2] != youtubeapi.OutcomeFound {
		t.Errorf("OnAttempt saw %v", seen)
	}
	if len(m.Requests()) != 3 {
		t.Errorf("requests = %d, want 3", len(m.Requests()))
	}
}

func TestRun_EmptyChannel(t *testing.T) {
	s := &scriptedSearcher{outcomes: []youtubeapi.Outcome{found}}
	_, err := New(s, 1, 0).Run(context.Background(), "")
	if !errors.Is(err, ErrEmptyChannel) {
		t.Fatalf("err = %v, want ErrEmptyChannel", err)
	}
	if s.Calls() != 0 {
		t.Errorf("calls = %d, want 0", s.Calls())
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(nil, 0, -1)
	if p.MaxAttempts != DefaultMaxAttempts || p.Interval != DefaultInterval {
		t.Errorf("defaults = %d/%v", p.MaxAttempts, p.Interval)
	}
}
