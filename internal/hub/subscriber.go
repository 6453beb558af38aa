package hub

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber is one connected client: a writable channel, a bounded
// outgoing queue, and the goroutine that drains the queue in order.
type Subscriber struct {
	id          string
	conn        io.WriteCloser
	queue       chan []byte
	overflow    OverflowPolicy
	connectedAt time.Time

	stopCh  chan struct{} // stop immediately, discard the queue
	flushCh chan struct{} // write what is queued, then stop
	doneCh  chan struct{}

	stopOnce  sync.Once
	flushOnce sync.Once
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newSubscriber(id string, conn io.WriteCloser, queueSize int, overflow OverflowPolicy) *Subscriber {
	return &Subscriber{
		id:          id,
		conn:        conn,
		queue:       make(chan []byte, queueSize),
		overflow:    overflow,
		connectedAt: time.Now(),
		stopCh:      make(chan struct{}),
		flushCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Done is closed once the drain goroutine has exited and the channel is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.doneCh
}

// enqueue adds a record to the outgoing queue without blocking.
// When the queue is full the oldest record is discarded, unless the
// overflow policy is disconnect, in which case false is returned.
func (s *Subscriber) enqueue(record []byte) bool {
	for {
		select {
		case s.queue <- record:
			return true
		default:
		}

		if s.overflow == OverflowDisconnect {
			return false
		}

		select {
		case <-s.queue:
			s.dropped.Add(1)
		default:
			// The drain goroutine made room in the meantime.
		}
	}
}

// run drains the queue until stopped, flushed, or a write fails.
// A write error is passed to onError.
func (s *Subscriber) run(onError func(error)) {
	defer close(s.doneCh)
	defer s.closeConn()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		select {
		case <-s.stopCh:
			return
		case record := <-s.queue:
			if err := s.write(record); err != nil {
				onError(err)
				return
			}
		case <-s.flushCh:
			s.flush(onError)
			return
		}
	}
}

// flush writes every record still queued.
func (s *Subscriber) flush(onError func(error)) {
	for {
		select {
		case <-s.stopCh:
			return
		case record := <-s.queue:
			if err := s.write(record); err != nil {
				onError(err)
				return
			}
		default:
			return
		}
	}
}

func (s *Subscriber) write(record []byte) error {
	if _, err := s.conn.Write(record); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// stop terminates the drain goroutine and closes the channel right away.
// Closing the channel unblocks a write in progress.
func (s *Subscriber) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.closeConn()
}

func (s *Subscriber) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// requestFlush asks the drain goroutine to write out the queue and exit.
func (s *Subscriber) requestFlush() {
	s.flushOnce.Do(func() { close(s.flushCh) })
}

func (s *Subscriber) closeConn() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// SubscriberStats is a point-in-time view of one subscriber.
type SubscriberStats struct {
	ID          string
	ConnectedAt time.Time
	Queued      int
	Sent        uint64
	Dropped     uint64
}

func (s *Subscriber) stats() SubscriberStats {
	return SubscriberStats{
		ID:          s.id,
		ConnectedAt: s.connectedAt,
		Queued:      len(s.queue),
		Sent:        s.sent.Load(),
		Dropped:     s.dropped.Load(),
	}
}
