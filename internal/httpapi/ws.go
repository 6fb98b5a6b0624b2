package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mkretch/quorum/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsHub fans the orchestrator event stream out to websocket subscribers.
// A slow subscriber is dropped rather than allowed to stall the hub.
type wsHub struct {
	mu   sync.Mutex
	subs map[chan orchestrator.Event]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{subs: make(map[chan orchestrator.Event]struct{})}
}

// run consumes events until the channel closes, then closes all subscriber
// channels.
func (h *wsHub) run(events <-chan orchestrator.Event) {
	for ev := range events {
		h.mu.Lock()
		for sub := range h.subs {
			select {
			case sub <- ev:
			default:
				delete(h.subs, sub)
				close(sub)
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub)
	}
	h.mu.Unlock()
}

func (h *wsHub) subscribe() chan orchestrator.Event {
	sub := make(chan orchestrator.Event, 32)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *wsHub) unsubscribe(sub chan orchestrator.Event) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub)
	}
	h.mu.Unlock()
}

// streamEvents upgrades the connection and forwards orchestrator events as
// JSON frames until the client disconnects.
func (s *Server) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	// Reader goroutine notices client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
