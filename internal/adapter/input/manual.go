package input

import (
	"sync"

	"github.com/jmylchreest/medialistener/internal/model"
)

// ManualSource delivers updates passed to Emit. It is used for tests and
// for driving the daemon without a media player.
type ManualSource struct {
	mu         sync.Mutex
	cb         func(model.RawUpdate)
	registered bool
	failWith   error
}

// NewManualSource creates a ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Name returns the source identifier.
func (s *ManualSource) Name() string {
	return "manual"
}

// FailRegister makes the next Register call return err.
func (s *ManualSource) FailRegister(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Register installs cb.
func (s *ManualSource) Register(cb func(model.RawUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return &AdapterError{Source: s.Name(), Message: "registration failed", Err: s.failWith}
	}
	if s.registered {
		return &AdapterError{Source: s.Name(), Message: "source already registered"}
	}
	s.registered = true
	s.cb = cb
	return nil
}

// Unregister removes the callback. Later Emit calls are ignored.
func (s *ManualSource) Unregister() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = nil
	return nil
}

// Emit calls the registered callback synchronously. It reports whether a
// callback was registered.
func (s *ManualSource) Emit(raw model.RawUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb == nil {
		return false
	}
	s.cb(raw)
	return true
}
