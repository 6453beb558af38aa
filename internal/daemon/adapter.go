package daemon

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jmylchreest/medialistener/internal/adapter/input"
	"github.com/jmylchreest/medialistener/internal/core"
	"github.com/jmylchreest/medialistener/internal/model"
)

// Sink receives normalized playback events.
type Sink interface {
	Publish(ev model.PlaybackEvent)
}

// Adapter connects a Source to the normalizer and forwards resulting events to a Sink.
// Callbacks may arrive concurrently; each one is normalized and published
// before the next begins, so the sink sees events in sequence order.
type Adapter struct {
	source     input.Source
	normalizer *core.Normalizer
	sink       Sink
	logger     *slog.Logger

	deliverMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewAdapter creates an Adapter.
func NewAdapter(source input.Source, normalizer *core.Normalizer, sink Sink, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		source:     source,
		normalizer: normalizer,
		sink:       sink,
		logger:     logger,
	}
}

// Start registers with the source. It may only succeed once; a
// registration failure is returned as an *input.AdapterError.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return &input.AdapterError{Source: a.source.Name(), Message: "adapter already started"}
	}

	if err := a.source.Register(a.handle); err != nil {
		var ae *input.AdapterError
		if errors.As(err, &ae) {
			return err
		}
		return &input.AdapterError{
			Source:  a.source.Name(),
			Message: "failed to register with media source",
			Err:     err,
		}
	}
	a.started = true

	a.logger.Info("registered with media source", "source", a.source.Name())
	return nil
}

// handle runs for every raw update delivered by the source.
func (a *Adapter) handle(raw model.RawUpdate) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	for _, ev := range a.normalizer.Ingest(raw) {
		a.logger.Debug("playback event", "event", ev.Kind, "seq", ev.Seq, "app", ev.App)
		a.sink.Publish(ev)
	}
}

// Stop unregisters from the source. Safe to call more than once.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.stopped {
		return nil
	}
	a.stopped = true

	if err := a.source.Unregister(); err != nil {
		return &input.AdapterError{
			Source:  a.source.Name(),
			Message: "failed to unregister from media source",
			Err:     err,
		}
	}
	a.logger.Debug("unregistered from media source", "source", a.source.Name())
	return nil
}
