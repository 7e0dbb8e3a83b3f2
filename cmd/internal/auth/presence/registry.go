// Package presence keeps the in-memory registry of currently active principals.
//
// The registry is an observability cache. It is volatile, keyed by owner (last writer wins
// across devices) and never consulted for authorization.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"warden/cmd/internal/clock"
)

// SessionInfo describes one active principal.
type SessionInfo struct {
	OwnerID       string    `json:"owner_id"`
	DisplayName   string    `json:"display_name"`
	LoginTime     time.Time `json:"login_time"`
	LastActivity  time.Time `json:"last_activity"`
	ClientAgent   string    `json:"client_agent"`
	ClientAddress string    `json:"client_address"`
}

// Registry is a concurrent map of active sessions. It is safe for concurrent use.
type Registry struct {
	log   *slog.Logger
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[string]*SessionInfo

	subsMu sync.RWMutex
	subs   map[*Subscriber]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry(log *slog.Logger, clk clock.Clock) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		log:      log,
		clock:    clock.OrSystem(clk),
		sessions: make(map[string]*SessionInfo),
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Touch upserts the entry for ownerID and sets its last activity to now. The login time of an
// existing entry is kept; the other fields take the latest values.
func (r *Registry) Touch(ownerID, displayName, clientAgent, clientAddress string) {
	if ownerID == "" {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	s, ok := r.sessions[ownerID]
	if !ok {
		s = &SessionInfo{OwnerID: ownerID, LoginTime: now}
		r.sessions[ownerID] = s
	}
	if displayName != "" {
		s.DisplayName = displayName
	}
	s.ClientAgent = clientAgent
	s.ClientAddress = clientAddress
	s.LastActivity = now
	r.mu.Unlock()

	if !ok {
		r.publish(Event{Kind: EventJoined, OwnerID: ownerID, At: now})
	}
}

// Remove drops ownerID and reports whether an entry existed.
func (r *Registry) Remove(ownerID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[ownerID]
	delete(r.sessions, ownerID)
	r.mu.Unlock()

	if ok {
		r.publish(Event{Kind: EventLeft, OwnerID: ownerID, At: r.clock.Now()})
	}
	return ok
}

// Get returns a copy of the entry for ownerID.
func (r *Registry) Get(ownerID string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[ownerID]
	if !ok {
		return SessionInfo{}, false
	}
	return *s, true
}

// Count returns the number of active entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot copy keyed by owner.
func (r *Registry) List() map[string]SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]SessionInfo, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = *s
	}
	return out
}

// Snapshot returns the entries ordered by most recent activity.
func (r *Registry) Snapshot() []SessionInfo {
	m := r.List()
	out := make([]SessionInfo, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	return out
}

// Sweep removes entries idle for longer than timeout and returns how many it removed.
// Concurrent sweeps are safe; each stale entry is removed by exactly one of them.
func (r *Registry) Sweep(timeout time.Duration) int {
	now := r.clock.Now()
	cut := now.Add(-timeout)

	var expired []string
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastActivity.Before(cut) {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.publish(Event{Kind: EventExpired, OwnerID: id, At: now})
	}
	if len(expired) > 0 {
		r.log.Info("presence.sweep", "removed", len(expired), "timeout", timeout.String())
	}
	return len(expired)
}
