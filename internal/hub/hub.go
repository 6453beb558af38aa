// Package hub fans playback events out to connected clients.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/medialistener/internal/model"
)

// ErrShuttingDown is returned by Register once Shutdown has started.
var ErrShuttingDown = errors.New("broadcast hub is shutting down")

// OverflowPolicy decides what happens when a subscriber's queue is full.
type OverflowPolicy string

const (
	// OverflowDropOldest discards the oldest queued record to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
	// OverflowDisconnect unregisters the subscriber.
	OverflowDisconnect OverflowPolicy = "disconnect"
)

// ValidOverflowPolicies returns all supported overflow policies.
func ValidOverflowPolicies() []OverflowPolicy {
	return []OverflowPolicy{OverflowDropOldest, OverflowDisconnect}
}

// DefaultQueueSize is the per-subscriber queue bound used when none is configured.
const DefaultQueueSize = 64

// Options configures a Hub.
type Options struct {
	QueueSize int
	Overflow  OverflowPolicy
	Codec     model.Codec
}

// DefaultOptions returns the default hub options.
func DefaultOptions() Options {
	return Options{
		QueueSize: DefaultQueueSize,
		Overflow:  OverflowDropOldest,
		Codec:     model.JSONLinesCodec{},
	}
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Overflow == "" {
		o.Overflow = OverflowDropOldest
	}
	if o.Codec == nil {
		o.Codec = model.JSONLinesCodec{}
	}
	return o
}

// Hub is a registry of subscribers that receives every published event.
// The registry lock is held only for map mutation, never across a write.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	opts    Options
	closing bool
	wg      sync.WaitGroup

	logger *slog.Logger
}

// New creates a Hub.
func New(opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// SetOptions replaces the hub options. Queue size and overflow policy
// apply to subscribers registered afterwards.
func (h *Hub) SetOptions(opts Options) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = opts.withDefaults()
}

// Options returns the current hub options.
func (h *Hub) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

// Register adds a connection and starts its drain goroutine.
// After Shutdown has started it returns ErrShuttingDown and the caller
// must close conn itself.
func (h *Hub) Register(conn io.WriteCloser) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate subscriber ID: %w", err)
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return "", ErrShuttingDown
	}
	s := newSubscriber(id.String(), conn, h.opts.QueueSize, h.opts.Overflow)
	h.subs[s.id] = s
	h.wg.Add(1)
	count := len(h.subs)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		s.run(func(err error) { h.onWriteError(s, err) })
		h.remove(s)
	}()

	h.logger.Debug("subscriber registered", "subscriber", s.id, "subscribers", count)
	return s.id, nil
}

// Unregister removes a subscriber and releases its channel and queue.
// Unknown IDs are ignored.
func (h *Hub) Unregister(id string) {
	h.unregister(id, "unregistered")
}

func (h *Hub) unregister(id, reason string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}

	s.stop()
	h.logger.Debug("subscriber removed", "subscriber", id, "reason", reason,
		"sent", s.sent.Load(), "dropped", s.dropped.Load(), "subscribers", count)
}

// remove deletes s from the registry if it is still the registered entry.
func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[s.id]; ok && cur == s {
		delete(h.subs, s.id)
	}
}

func (h *Hub) onWriteError(s *Subscriber, err error) {
	if h.isClosing() || s.stopped() {
		h.logger.Debug("write failed after close", "subscriber", s.id, "error", err)
	} else {
		h.logger.Warn("client write failed, dropping subscriber", "subscriber", s.id, "error", err)
	}
	h.unregister(s.id, "write error")
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Publish serializes ev once and queues the record for every subscriber.
// It never blocks on client I/O.
func (h *Hub) Publish(ev model.PlaybackEvent) {
	h.mu.Lock()
	codec := h.opts.Codec
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	record, err := codec.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "event", ev.Kind, "seq", ev.Seq, "error", err)
		return
	}

	for _, s := range subs {
		before := s.dropped.Load()
		if !s.enqueue(record) {
			h.logger.Info("subscriber queue full, disconnecting", "subscriber", s.id)
			h.unregister(s.id, "queue overflow")
			continue
		}
		if dropped := s.dropped.Load(); dropped > before {
			h.logger.Debug("subscriber queue full, dropped oldest record",
				"subscriber", s.id, "dropped_total", dropped)
		}
	}
}

// Shutdown rejects new registrations and asks every subscriber to flush
// its queue and close. It waits until all drain goroutines exit or ctx is
// done, in which case remaining channels are closed without flushing.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	h.logger.Debug("flushing subscribers", "subscribers", len(subs))
	for _, s := range subs {
		s.requestFlush()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range subs {
			s.stop()
		}
		<-done
		return fmt.Errorf("failed to flush all subscribers: %w", ctx.Err())
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// IDs returns the registered subscriber IDs in sorted order.
func (h *Hub) IDs() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Stats returns a snapshot of every registered subscriber.
func (h *Hub) Stats() []SubscriberStats {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	stats := make([]SubscriberStats, 0, len(subs))
	for _, s := range subs {
		stats = append(stats, s.stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].ID < stats[j].ID
	})
	return stats
}
