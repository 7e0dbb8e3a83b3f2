package audit

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/clock"
)

// ErrInvalidRetention is returned by Cleanup for a non-positive retention.
var ErrInvalidRetention = errors.New("audit: retention must be at least one day")

// Sink receives events after they are stored, e.g. to fan them out to a broker.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Observer is notified about recorder activity. Metrics implement it.
type Observer interface {
	EventRecorded(outcome string)
	EventDropped()
	WriteFailed()
}

type nopObserver struct{}

func (nopObserver) EventRecorded(string) {}
func (nopObserver) EventDropped()        {}
func (nopObserver) WriteFailed()         {}

// Recorder writes events asynchronously.
//
// Events are sharded by owner (or principal name for anonymous events) onto sequential workers,
// which keeps per-owner order. A full shard drops the event rather than block the caller.
type Recorder struct {
	log      *slog.Logger
	store    Store
	sinks    []Sink
	clock    clock.Clock
	observer Observer

	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	shards []chan Event
	wg     sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSinks adds sinks that receive every stored event.
func WithSinks(sinks ...Sink) RecorderOption {
	return func(r *Recorder) { r.sinks = append(r.sinks, sinks...) }
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) RecorderOption {
	return func(r *Recorder) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(c clock.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock.OrSystem(c) }
}

// NewRecorder starts cfg.Workers workers. Call Close to drain them.
func NewRecorder(log *slog.Logger, store Store, cfg Config, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	r := &Recorder{
		log:          log,
		store:        store,
		clock:        clock.System{},
		observer:     nopObserver{},
		writeTimeout: cfg.WriteTimeout,
		shards:       make([]chan Event, cfg.Workers),
	}
	for _, o := range opts {
		o(r)
	}

	for i := range r.shards {
		ch := make(chan Event, cfg.QueueSize)
		r.shards[i] = ch
		r.wg.Add(1)
		go r.work(ch)
	}
	return r
}

// Record enqueues e without blocking. Missing ID and OccurredAt are filled in.
// It reports whether the event was accepted.
func (r *Recorder) Record(e Event) bool {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.clock.Now()
	}
	if e.ID == "" {
		id, err := ids.NewULID(e.OccurredAt)
		if err != nil {
			r.log.Error("audit.id.fail", "err", err)
			r.observer.EventDropped()
			return false
		}
		e.ID = id
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.observer.EventDropped()
		return false
	}

	select {
	case r.shards[r.shardOf(e)] <- e:
		return true
	default:
		r.log.Warn("audit.queue.full", "outcome", e.Outcome, "owner_id", e.Owner())
		r.observer.EventDropped()
		return false
	}
}

func (r *Recorder) shardOf(e Event) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(e.orderKey()))
	return int(h.Sum32() % uint32(len(r.shards)))
}

func (r *Recorder) work(ch <-chan Event) {
	defer r.wg.Done()
	for e := range ch {
		r.write(e)
	}
}

// write runs on a detached context so a finished request cannot cancel its own audit row.
func (r *Recorder) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, e); err != nil {
		r.log.Error("audit.write.fail", "err", err, "event_id", e.ID, "outcome", e.Outcome)
		r.observer.WriteFailed()
		return
	}
	r.observer.EventRecorded(e.Outcome)

	for _, s := range r.sinks {
		if err := s.Publish(ctx, e); err != nil {
			r.log.Warn("audit.sink.fail", "err", err, "event_id", e.ID)
		}
	}
}

// Close stops accepting events and waits for queued events to be written or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, ch := range r.shards {
			close(ch)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query reads stored events.
func (r *Recorder) Query(ctx context.Context, f Filter, p PageRequest) (Page[Event], error) {
	return r.store.Query(ctx, f, p)
}

// Count counts stored events.
func (r *Recorder) Count(ctx context.Context, f Filter) (int, error) {
	return r.store.Count(ctx, f)
}

// Cleanup deletes events older than retentionDays days and returns how many were removed.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := r.clock.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info("audit.cleanup", "removed", n, "retention_days", retentionDays)
	}
	return n, nil
}
