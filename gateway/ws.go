package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"meritledger/core/types"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsSubscriberCap = 256
)

// wsHub fans committed events out to websocket subscribers. Slow subscribers
// lose events rather than stalling the commit path.
type wsHub struct {
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[chan *types.Event]struct{}
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		logger: logger,
		subs:   make(map[chan *types.Event]struct{}),
	}
}

func (h *wsHub) subscribe() chan *types.Event {
	ch := make(chan *types.Event, wsSubscriberCap)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *wsHub) unsubscribe(ch chan *types.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *wsHub) broadcast(evt *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("ws: subscriber buffer full, dropping event", "type", evt.Type)
		}
	}
}

// handleEventFeed streams committed ledger events over a websocket. An
// optional ?type= filter restricts the feed to one event type.
func (s *Server) handleEventFeed(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("type")
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			if filter != "" && evt.Type != filter {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				if websocket.CloseStatus(err) == -1 {
					_ = conn.Close(websocket.StatusInternalError, "stream error")
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
