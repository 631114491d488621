package progress

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

const (
	subscriberQueueCapacity = 32
	keepaliveInterval       = 30 * time.Second
	writeWait               = 10 * time.Second
)

// queueCapacity and keepalive read SUBSCRIBER_QUEUE_CAPACITY and
// WEBSOCKET_KEEPALIVE_SEC, falling back to the defaults above when a value
// is unset, unparsable or not positive.
func queueCapacity() int {
	if n := envutil.Int("SUBSCRIBER_QUEUE_CAPACITY", subscriberQueueCapacity); n > 0 {
		return n
	}
	return subscriberQueueCapacity
}

func keepalive() time.Duration {
	if n := envutil.Int("WEBSOCKET_KEEPALIVE_SEC", 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return keepaliveInterval
}

// subscriber is one live connection attached to a job id. Its outbound
// queue is bounded; a publish that finds it full drops the oldest pending
// event rather than blocking or dropping the new one, since progress is
// cumulative — an older event adds nothing once a newer one is queued.
type subscriber struct {
	id       uuid.UUID
	jobID    uuid.UUID
	outbound chan Event
	done     chan struct{}
	// pingSeen signals writePump that readPump observed a client "ping";
	// the actual pong write happens on writePump's goroutine, since
	// gorilla/websocket allows only one concurrent writer per connection.
	pingSeen chan struct{}
	closeOne sync.Once
}

func (s *subscriber) close() {
	s.closeOne.Do(func() { close(s.done) })
}

// Hub is the per-job fan-out of ephemeral progress events to zero or more
// WebSocket subscribers. Publishing never blocks the caller (the worker
// pool) and is a no-op in O(1) when a job has no subscribers.
type Hub struct {
	mu   sync.RWMutex
	log  *logger.Logger
	subs map[uuid.UUID]map[*subscriber]struct{}
	seqs map[uuid.UUID]*atomic.Uint64
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("component", "progress.Hub"),
		subs: make(map[uuid.UUID]map[*subscriber]struct{}),
		seqs: make(map[uuid.UUID]*atomic.Uint64),
	}
}

func (h *Hub) seqCounter(jobID uuid.UUID) *atomic.Uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.seqs[jobID]
	if !ok {
		c = &atomic.Uint64{}
		h.seqs[jobID] = c
	}
	return c
}

// Publish fans an event out to every live subscriber of a job, stamping
// its sequence number. Called by the scheduler from worker goroutines; it
// must never block on a slow reader.
func (h *Hub) Publish(jobID uuid.UUID, ev Event) {
	ev.JobID = jobID

	// The seq is stamped under the same lock that snapshots the subscriber
	// set, so a subscriber registered concurrently never receives an event
	// stamped before its synthetic one.
	h.mu.Lock()
	c, ok := h.seqs[jobID]
	if !ok {
		c = &atomic.Uint64{}
		h.seqs[jobID] = c
	}
	ev.Seq = c.Add(1)
	set, ok := h.subs[jobID]
	if !ok {
		h.mu.Unlock()
		return
	}
	subsCopy := make([]*subscriber, 0, len(set))
	for s := range set {
		subsCopy = append(subsCopy, s)
	}
	h.mu.Unlock()

	for _, s := range subsCopy {
		h.enqueue(s, ev)
	}

	if ev.Terminal() {
		for _, s := range subsCopy {
			s.close()
		}
	}
}

func (h *Hub) enqueue(s *subscriber, ev Event) {
	select {
	case s.outbound <- ev:
		return
	default:
	}
	// queue full: drop the oldest pending event, then retry once.
	select {
	case <-s.outbound:
	default:
	}
	select {
	case s.outbound <- ev:
	default:
		h.log.Warn("subscriber queue still full after drop-oldest, discarding event", "jobID", ev.JobID, "subscriberID", s.id)
	}
}

func (h *Hub) addSubscriber(jobID uuid.UUID) *subscriber {
	s := &subscriber{
		id:       uuid.New(),
		jobID:    jobID,
		outbound: make(chan Event, queueCapacity()),
		done:     make(chan struct{}),
		pingSeen: make(chan struct{}, 1),
	}
	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[jobID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) removeSubscriber(s *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.jobID)
			delete(h.seqs, s.jobID)
		}
	}
	h.mu.Unlock()
}

// Serve sends the synthetic current-status event built by the caller from
// a fresh Job Store read, registers conn as a subscriber of jobID only once
// that event is on the wire, then drives the connection's read and write
// loops until it closes, a keepalive fails, or a terminal event is
// delivered. Registering after the synthetic write (rather than before)
// keeps the sequence strictly non-decreasing: a Publish can only reach this
// subscriber once it's registered, by which point any seq it stamps is
// already greater than the synthetic's. It blocks until the subscriber is
// done, matching the "one goroutine per connection" shape of a WebSocket
// handler.
func (h *Hub) Serve(jobID uuid.UUID, conn *websocket.Conn, synthetic Event) {
	defer conn.Close()

	synthetic.JobID = jobID
	synthetic.Seq = h.seqCounter(jobID).Add(1)
	if err := h.writeEvent(conn, synthetic); err != nil {
		return
	}
	if synthetic.Terminal() {
		return
	}

	s := h.addSubscriber(jobID)
	defer h.removeSubscriber(s)

	go h.readPump(conn, s)
	h.writePump(conn, s)
}

// readPump only exists to notice the client's "ping" keepalive and any
// close/read error; it discards everything else. It never writes to conn
// itself — gorilla/websocket allows only one concurrent writer, and
// writePump owns that role, so a ping just flags pingSeen for writePump's
// select loop to act on.
func (h *Hub) readPump(conn *websocket.Conn, s *subscriber) {
	defer s.close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			select {
			case s.pingSeen <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, s *subscriber) {
	ticker := time.NewTicker(keepalive())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.outbound:
			if err := h.writeEvent(conn, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		case <-s.pingSeen:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}
