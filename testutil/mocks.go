// Package testutil holds HTTP fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// SearchPath is where the YouTube client sends search requests relative to its endpoint.
const SearchPath = "/youtube/v3/search"

// SearchItem is one result row served by MockYouTubeServer.
type SearchItem struct {
	ChannelTitle string
	Title        string
	VideoID      string
}

// MockYouTubeServer serves canned YouTube Data API search responses and records requests.
type MockYouTubeServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers []http.HandlerFunc
	requests []*http.Request
}

// NewMockYouTubeServer creates a server that answers every search with zero results until
// responses are queued. The last queued response repeats once the queue is drained.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SearchPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		var h http.HandlerFunc
		switch len(m.handlers) {
		case 0:
			h = searchHandler(0, nil)
		case 1:
			h = m.handlers[0]
		default:
			h = m.handlers[0]
			m.handlers = m.handlers[1:]
		}
		m.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// Endpoint is the value to pass as the client's API endpoint.
func (m *MockYouTubeServer) Endpoint() string { return m.URL + "/" }

// QueueSearch queues a 200 response with the given totalResults and items.
func (m *MockYouTubeServer) QueueSearch(total int, items ...SearchItem) {
	m.queue(searchHandler(total, items))
}

// QueueStatus queues a raw non-JSON-contract response.
func (m *MockYouTubeServer) QueueStatus(status int, body string) {
	m.queue(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body)) //nolint:errcheck // test mock response
	})
}

// QueueHandler queues an arbitrary handler, e.g. one that blocks until the request is cancelled.
func (m *MockYouTubeServer) QueueHandler(h http.HandlerFunc) { m.queue(h) }

// Requests returns the search requests seen so far.
func (m *MockYouTubeServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockYouTubeServer) queue(h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func searchHandler(total int, items []SearchItem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows := make([]map[string]interface{}, 0, len(items))
		for _, it := range items {
			rows = append(rows, map[string]interface{}{
				"kind": "youtube#searchResult",
				"id":   map[string]string{"kind": "youtube#video", "videoId": it.VideoID},
				"snippet": map[string]string{
					"channelTitle":         it.ChannelTitle,
					"title":                it.Title,
					"liveBroadcastContent": "live",
				},
			})
		}
		response := map[string]interface{}{
			"kind":     "youtube#searchListResponse",
			"pageInfo": map[string]int{"totalResults": total, "resultsPerPage": 5},
			"items":    rows,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
