package presence

import (
	"sync"
	"time"
)

// Event kinds published to subscribers.
const (
	EventJoined  = "joined"
	EventLeft    = "left"
	EventExpired = "expired"
)

// Event is a registry membership change.
type Event struct {
	Kind    string    `json:"kind"`
	OwnerID string    `json:"owner_id"`
	At      time.Time `json:"at"`
}

// Subscriber receives registry events on C. C is never closed by the registry; Done is closed
// when the subscriber is cancelled.
type Subscriber struct {
	C chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel closed when the subscription ends.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Subscribe registers a subscriber with a bounded queue. Events are dropped for subscribers
// that fall behind.
func (r *Registry) Subscribe(queue int) *Subscriber {
	if queue <= 0 {
		queue = 64
	}
	s := &Subscriber{C: make(chan Event, queue), done: make(chan struct{})}

	r.subsMu.Lock()
	r.subs[s] = struct{}{}
	r.subsMu.Unlock()
	return s
}

// Unsubscribe removes s and closes its Done channel. It is idempotent.
func (r *Registry) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	r.subsMu.Lock()
	delete(r.subs, s)
	r.subsMu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
}

func (r *Registry) publish(ev Event) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()

	for s := range r.subs {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.C <- ev:
		default:
		}
	}
}
