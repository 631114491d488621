package remotegpu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipforge/exportd/internal/platform/logger"
)

func testLoggerClient(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newClientAgainst(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		http:       srv.Client(),
		baseURL:    srv.URL,
		log:        testLoggerClient(t),
		maxRetries: 3,
		pollEvery:  5 * time.Millisecond,
	}
}

func TestClientSubmitAndPoll(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{RemoteJobID: "remote-1"})
	})
	mux.HandleFunc("/jobs/remote-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		done := n >= 2
		_ = json.NewEncoder(w).Encode(RemoteStatus{Done: done, Percent: 100, Outputs: []string{"https://example.test/out.mp4"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClientAgainst(t, srv)
	remoteID, err := c.Submit(context.Background(), "framing", []string{"https://example.test/in.mp4"}, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if remoteID != "remote-1" {
		t.Fatalf("want remote-1 got %q", remoteID)
	}

	st, err := c.Poll(context.Background(), remoteID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if st.Done {
		t.Fatalf("want not done on first poll, got done")
	}

	st, err = c.Poll(context.Background(), remoteID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !st.Done || len(st.Outputs) != 1 {
		t.Fatalf("want done with one output on second poll, got %+v", st)
	}
}

func TestClientRetriesTransientFailuresThenSucceeds(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(submitResponse{RemoteJobID: "remote-2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClientAgainst(t, srv)
	c.maxRetries = 5
	start := time.Now()
	remoteID, err := c.Submit(context.Background(), "overlay", nil, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if remoteID != "remote-2" {
		t.Fatalf("want remote-2 got %q", remoteID)
	}
	if attempts != 3 {
		t.Fatalf("want 3 attempts, got %d", attempts)
	}
	if time.Since(start) < 750*time.Millisecond {
		t.Fatalf("expected backoff sleep between retries, finished too fast: %v", time.Since(start))
	}
}

func TestClientDoesNotRetryPermanentFailure(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClientAgainst(t, srv)
	if _, err := c.Submit(context.Background(), "overlay", nil, nil); err == nil {
		t.Fatalf("expected error for permanent failure")
	}
	if attempts != 1 {
		t.Fatalf("want no retries on a 400, got %d attempts", attempts)
	}
}
