package daemon

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/medialistener/internal/adapter/input"
	"github.com/jmylchreest/medialistener/internal/core"
	"github.com/jmylchreest/medialistener/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.PlaybackEvent
}

func (s *recordingSink) Publish(ev model.PlaybackEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []model.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

// plainErrSource fails registration with an unwrapped error.
type plainErrSource struct{ err error }

func (s plainErrSource) Name() string { return "plain" }
func (s plainErrSource) Register(func(model.RawUpdate)) error { return s.err }
func (s plainErrSource) Unregister() error { return nil }

func TestAdapter_ForwardsNormalizedEvents(t *testing.T) {
	src := input.NewManualSource()
	sink := &recordingSink{}
	a := NewAdapter(src, core.NewNormalizer(), sink, nil)
	require.NoError(t, a.Start())

	src.Emit(model.RawUpdate{Track: &model.RawTrack{Title: model.String("A")}, Playing: model.Bool(true)})
	src.Emit(model.RawUpdate{Track: &model.RawTrack{Title: model.String("A")}, Playing: model.Bool(true)})
	src.Emit(model.RawUpdate{PositionMs: model.Int64(10)})

	assert.Equal(t, []model.EventKind{
		model.KindTrackChanged,
		model.KindPlaybackStateChanged,
		model.KindPositionChanged,
	}, sink.kinds())

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.False(t, src.Emit(model.RawUpdate{PositionMs: model.Int64(20)}))
	assert.Len(t, sink.kinds(), 3)
}

// callbackSource hands the registered callback to the test, which may
// invoke it from several goroutines at once.
type callbackSource struct {
	mu sync.Mutex
	cb func(model.RawUpdate)
}

func (s *callbackSource) Name() string { return "callback" }

func (s *callbackSource) Register(cb func(model.RawUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
	return nil
}

func (s *callbackSource) Unregister() error { return nil }

func (s *callbackSource) callback() func(model.RawUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

func TestAdapter_ConcurrentCallbacksPublishInSequence(t *testing.T) {
	src := &callbackSource{}
	sink := &recordingSink{}
	a := NewAdapter(src, core.NewNormalizer(), sink, nil)
	require.NoError(t, a.Start())
	cb := src.callback()
	require.NotNil(t, cb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cb(model.RawUpdate{PositionMs: model.Int64(int64(j))})
			}
		}()
	}
	wg.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1600)
	for i, ev := range sink.events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestAdapter_StartOnce(t *testing.T) {
	a := NewAdapter(input.NewManualSource(), core.NewNormalizer(), &recordingSink{}, nil)
	require.NoError(t, a.Start())

	var ae *input.AdapterError
	assert.ErrorAs(t, a.Start(), &ae)
}

func TestAdapter_WrapsRegistrationErrors(t *testing.T) {
	boom := errors.New("bus down")
	a := NewAdapter(plainErrSource{err: boom}, core.NewNormalizer(), &recordingSink{}, nil)

	err := a.Start()
	var ae *input.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "plain", ae.Source)
	assert.ErrorIs(t, err, boom)

	// Never started, so stopping is a no-op.
	assert.NoError(t, a.Stop())
}
