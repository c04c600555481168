package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/types"

	"github.com/google/uuid"
)

// Subscriber receives encoded bar_update messages.
type Subscriber interface {
	Send(ctx context.Context, payload []byte) error
}

// Message is the push frame written to every subscriber.
type Message struct {
	Type      string          `json:"type"`
	Timeframe types.Timeframe `json:"timeframe"`
	Bars      []types.Bar     `json:"bars"`
}

const TypeBarUpdate = "bar_update"

// Hub fans bar updates out to registered subscribers. Delivery is best effort:
// a subscriber whose Send fails is dropped after the pass.
type Hub struct {
	mu      sync.Mutex
	clients map[string]Subscriber
	logger  logger.Interface
}

func NewHub(log logger.Interface) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients: make(map[string]Subscriber),
		logger:  log,
	}
}

// Register adds sub and returns the id to unregister it with.
func (h *Hub) Register(sub Subscriber) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = sub
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("subscriber registered", logger.NewField("id", id), logger.NewField("subscribers", n))
	return id
}

// Unregister removes id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("subscriber removed", logger.NewField("id", id), logger.NewField("subscribers", n))
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish encodes one bar_update and sends it to every subscriber.
func (h *Hub) Publish(ctx context.Context, tf types.Timeframe, bars []types.Bar) error {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]Subscriber, len(h.clients))
	for id, sub := range h.clients {
		snapshot[id] = sub
	}
	h.mu.Unlock()

	payload, err := json.Marshal(Message{Type: TypeBarUpdate, Timeframe: tf, Bars: bars})
	if err != nil {
		return apperr.Internal("encode bar_update: %v", err)
	}

	var failed []string
	for id, sub := range snapshot {
		if err := sub.Send(ctx, payload); err != nil {
			h.logger.Warn("dropping subscriber", logger.NewField("id", id), logger.NewField("error", err.Error()))
			failed = append(failed, id)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			delete(h.clients, id)
		}
		h.mu.Unlock()

		for _, id := range failed {
			if c, ok := snapshot[id].(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
	return nil
}

// Close drops every subscriber, closing those that implement io.Closer.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]Subscriber)
	h.mu.Unlock()

	for id, sub := range clients {
		if c, ok := sub.(io.Closer); ok {
			if err := c.Close(); err != nil {
				h.logger.Warn("close subscriber", logger.NewField("id", id), logger.NewField("error", err.Error()))
			}
		}
	}
	return nil
}
