package progress

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clipforge/exportd/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func startTestServer(t *testing.T, hub *Hub, jobID uuid.UUID, synthetic Event) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Serve(jobID, conn, synthetic)
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):]
	return srv, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubSendsSyntheticEventOnSubscribe(t *testing.T) {
	hub := NewHub(testLogger(t))
	jobID := uuid.New()
	synthetic := Event{Status: "processing", Progress: 40, Phase: "compositing"}

	_, wsURL := startTestServer(t, hub, jobID, synthetic)
	conn := dial(t, wsURL)

	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Status != "processing" || got.Progress != 40 || got.Phase != "compositing" {
		t.Fatalf("unexpected synthetic event: %+v", got)
	}
	if got.Seq == 0 {
		t.Fatalf("expected non-zero seq on synthetic event, got %+v", got)
	}
}

func TestHubPublishReachesSubscriber(t *testing.T) {
	hub := NewHub(testLogger(t))
	jobID := uuid.New()

	_, wsURL := startTestServer(t, hub, jobID, Event{Status: "processing"})
	conn := dial(t, wsURL)

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON synthetic: %v", err)
	}

	// give the server goroutine time to register the subscriber before publishing
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.subs[jobID])
		hub.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Publish(jobID, Event{Status: "processing", Progress: 75, Phase: "encoding"})

	var second Event
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON published: %v", err)
	}
	if second.Progress != 75 || second.Phase != "encoding" {
		t.Fatalf("unexpected published event: %+v", second)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected monotonically increasing seq, got first=%d second=%d", first.Seq, second.Seq)
	}
}

func TestHubClosesAfterTerminalEvent(t *testing.T) {
	hub := NewHub(testLogger(t))
	jobID := uuid.New()

	_, wsURL := startTestServer(t, hub, jobID, Event{Status: "processing"})
	conn := dial(t, wsURL)

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON synthetic: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.subs[jobID])
		hub.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Publish(jobID, Event{Status: "complete", OutputRef: "blob://out", OutputFilename: "out.mp4"})

	var final Event
	if err := conn.ReadJSON(&final); err != nil {
		t.Fatalf("ReadJSON terminal: %v", err)
	}
	if final.Status != "complete" || final.OutputRef != "blob://out" {
		t.Fatalf("unexpected terminal event: %+v", final)
	}

	// the server should close the socket shortly after the terminal event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after terminal event")
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	hub := NewHub(testLogger(t))
	s := &subscriber{id: uuid.New(), jobID: uuid.New(), outbound: make(chan Event, 2), done: make(chan struct{})}

	hub.enqueue(s, Event{Progress: 1})
	hub.enqueue(s, Event{Progress: 2})
	hub.enqueue(s, Event{Progress: 3})

	first := <-s.outbound
	second := <-s.outbound
	if first.Progress != 2 || second.Progress != 3 {
		t.Fatalf("expected oldest event dropped, got %d then %d", first.Progress, second.Progress)
	}
}
