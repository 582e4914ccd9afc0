package server

import (
	"sync"

	"go.uber.org/zap"
)

// Hub fans status messages out to connected event-stream subscribers. It
// implements the pipeline's notifier contract: Push never blocks the run,
// a slow subscriber simply loses messages.
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[chan string]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function. The cancel function is safe to call more than
// once.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Push delivers a message to every subscriber that has buffer room.
func (h *Hub) Push(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- message:
		default:
			h.logger.Debug("dropping status message for slow subscriber")
		}
	}
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
