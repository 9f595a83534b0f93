package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/events"
)

// Client is the subset of a websocket connection the hub writes to.
type Client interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

const (
	clientQueueSize = 16
	writeWait       = 10 * time.Second
)

// subscriber owns one client. Its writer goroutine is the only code that
// writes to or closes the client.
type subscriber struct {
	client  Client
	send    chan []byte
	stopped chan struct{}
}

type unregisterRequest struct {
	client Client
	reply  chan (<-chan struct{})
}

// Hub fans ticket events out to connected websocket clients. Client
// bookkeeping happens on the Run goroutine; each client gets its own send
// queue so a stalled connection cannot hold up the others.
type Hub struct {
	register   chan Client
	unregister chan unregisterRequest
	broadcast  chan []byte
	clients    map[Client]*subscriber
	connected  atomic.Int64
	logger     *zap.Logger
}

// NewHub creates a hub; call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan Client),
		unregister: make(chan unregisterRequest),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[Client]*subscriber),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			h.connected.Store(0)
			return
		case c := <-h.register:
			if _, ok := h.clients[c]; !ok {
				s := &subscriber{client: c, send: make(chan []byte, clientQueueSize), stopped: make(chan struct{})}
				h.clients[c] = s
				go h.write(s)
			}
		case req := <-h.unregister:
			var stopped <-chan struct{}
			if s, ok := h.clients[req.client]; ok {
				stopped = s.stopped
				h.remove(req.client)
			}
			req.reply <- stopped
		case msg := <-h.broadcast:
			for c, s := range h.clients {
				select {
				case s.send <- msg:
				default:
					h.logger.Debug("dropping slow websocket client")
					h.remove(c)
				}
			}
		}
		h.connected.Store(int64(len(h.clients)))
	}
}

func (h *Hub) remove(c Client) {
	if s, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(s.send)
	}
}

// write drains the subscriber queue. After a failed write the client is
// closed and the rest of the queue is discarded.
func (h *Hub) write(s *subscriber) {
	defer close(s.stopped)

	failed := false
	for msg := range s.send {
		if failed {
			continue
		}
		if d, ok := s.client.(deadlineSetter); ok {
			_ = d.SetWriteDeadline(time.Now().Add(writeWait))
		}
		if err := s.client.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			failed = true
			_ = s.client.Close()
		}
	}
	if !failed {
		_ = s.client.Close()
	}
}

// Register adds a client. It blocks until the hub accepts it or ctx ends.
func (h *Hub) Register(ctx context.Context, c Client) {
	select {
	case h.register <- c:
	case <-ctx.Done():
	}
}

// Unregister removes a client and waits until its writer has closed it, so
// the caller may release the connection afterwards.
func (h *Hub) Unregister(ctx context.Context, c Client) {
	reply := make(chan (<-chan struct{}), 1)
	select {
	case h.unregister <- unregisterRequest{client: c, reply: reply}:
	case <-ctx.Done():
		return
	}
	stopped := <-reply
	if stopped == nil {
		return
	}
	select {
	case <-stopped:
	case <-ctx.Done():
	}
}

// Connected reports the number of registered clients.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

// Handle implements events.EventHandler. Events are dropped when the
// broadcast buffer is full.
func (h *Hub) Handle(_ context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- body:
	default:
		h.logger.Warn("websocket broadcast buffer full; event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}
