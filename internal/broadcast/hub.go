// Package broadcast fans out anomaly results to real-time subscribers
// without ever blocking the ingest path that produces them.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

const subscriberBuffer = 32

// Subscriber is a single registered sink for anomaly results.
type Subscriber struct {
	id   uint64
	send chan sensor.AnomalyResult
}

// Recv returns the channel a subscriber should range over to receive results.
func (s *Subscriber) Recv() <-chan sensor.AnomalyResult {
	return s.send
}

// Hub manages active subscribers and broadcasts anomaly results to them.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscriber
	nextID  uint64
	logger  *zap.Logger
}

// NewHub creates an empty broadcast hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[uint64]*Subscriber), logger: logger}
}

// Subscribe registers a new subscriber and returns it for receiving.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscriber{id: h.nextID, send: make(chan sensor.AnomalyResult, subscriberBuffer)}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.send)
	}
}

// Broadcast delivers a result to every subscriber with a single, non-blocking
// send; a subscriber whose buffer is full is dropped rather than stalling
// the ingest path.
func (h *Hub) Broadcast(result sensor.AnomalyResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.send <- result:
		default:
			h.logger.Debug("dropping slow broadcast subscriber", zap.Uint64("subscriber_id", id))
			delete(h.subs, id)
			close(sub.send)
		}
	}
}

// SubscriberCount reports the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
