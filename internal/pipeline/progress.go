package pipeline

import "sync"

// Event is one progress notification emitted during a run.
type Event struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	ManagerID string `json:"manager_id,omitempty"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}

// Broadcaster fans progress events out to any number of subscribers.
// Slow subscribers drop events rather than stall the pipeline.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered event channel and an unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
