package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/medialistener/internal/model"
)

// ErrAlreadyRegistered is returned when Register is called twice.
var ErrAlreadyRegistered = errors.New("source already registered")

// MPRISOptions configures an MPRISSource.
type MPRISOptions struct {
	// Player restricts the source to players whose bus name contains it.
	Player string
	// PositionInterval is how often the position is polled while playing.
	// Zero disables polling.
	PositionInterval time.Duration
}

// MPRISSource observes MPRIS players on the session bus without claiming
// any bus name, so it runs alongside the players it watches.
type MPRISSource struct {
	opts   MPRISOptions
	logger *slog.Logger

	mu         sync.Mutex
	conn       *dbus.Conn
	signals    chan *dbus.Signal
	registered bool
	stopCh     chan struct{}
	done       chan struct{}
}

// NewMPRISSource creates a new MPRIS source. It does not connect until Register.
func NewMPRISSource(opts MPRISOptions, logger *slog.Logger) *MPRISSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MPRISSource{
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the source identifier.
func (s *MPRISSource) Name() string {
	return "mpris"
}

// Register connects to the session bus, subscribes to player signals and
// starts delivering updates to cb. The state of the active player, if
// any, is delivered first.
func (s *MPRISSource) Register(cb func(model.RawUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered {
		return ErrAlreadyRegistered
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	for _, rule := range matchRules() {
		if err := conn.AddMatchSignal(rule...); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to add match rule: %w", err)
		}
	}

	s.signals = make(chan *dbus.Signal, 64)
	conn.Signal(s.signals)
	s.conn = conn
	s.registered = true

	t := newTracker(s.opts.Player, &sessionClient{conn: conn}, s.logger)
	go s.loop(t, cb)

	s.logger.Info("started MPRIS source", "player_filter", s.opts.Player,
		"position_interval", s.opts.PositionInterval)
	return nil
}

// matchRules returns the signal subscriptions used by the source.
func matchRules() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(MPRISPath),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, PlayerInterface),
		},
		{
			dbus.WithMatchObjectPath(MPRISPath),
			dbus.WithMatchInterface(PlayerInterface),
			dbus.WithMatchMember("Seeked"),
		},
		{
			dbus.WithMatchSender(busInterface),
			dbus.WithMatchInterface(busInterface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg0Namespace(strings.TrimSuffix(MPRISPrefix, ".")),
		},
	}
}

// loop delivers every update from a single goroutine.
func (s *MPRISSource) loop(t *tracker, cb func(model.RawUpdate)) {
	defer close(s.done)

	if raw, ok := t.init(); ok {
		cb(raw)
	}

	var tick <-chan time.Time
	if s.opts.PositionInterval > 0 {
		ticker := time.NewTicker(s.opts.PositionInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case sig, ok := <-s.signals:
			if !ok {
				s.logger.Warn("session bus signal channel closed")
				return
			}
			for _, raw := range t.handle(sig) {
				select {
				case <-s.stopCh:
					return
				default:
				}
				cb(raw)
			}
		case <-tick:
			if raw, ok := t.poll(); ok {
				cb(raw)
			}
		}
	}
}

// Unregister stops delivery and closes the bus connection.
// No callback runs after it returns.
func (s *MPRISSource) Unregister() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registered {
		return nil
	}
	select {
	case <-s.stopCh:
		return nil
	default:
	}

	close(s.stopCh)
	<-s.done

	s.conn.RemoveSignal(s.signals)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close session bus: %w", err)
	}
	s.logger.Debug("stopped MPRIS source")
	return nil
}

// sessionClient implements busClient on a live connection.
type sessionClient struct {
	conn *dbus.Conn
}

func (c *sessionClient) ListPlayers() (map[string]string, error) {
	var names []string
	if err := c.conn.BusObject().Call(busInterface+".ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("failed to list bus names: %w", err)
	}

	owners := make(map[string]string)
	for _, name := range names {
		if !IsPlayerName(name) {
			continue
		}
		var owner string
		if err := c.conn.BusObject().Call(busInterface+".GetNameOwner", 0, name).Store(&owner); err != nil {
			continue
		}
		owners[owner] = name
	}
	return owners, nil
}

func (c *sessionClient) GetAll(name string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	obj := c.conn.Object(name, MPRISPath)
	if err := obj.Call(propertiesInterface+".GetAll", 0, PlayerInterface).Store(&props); err != nil {
		return nil, fmt.Errorf("failed to get properties of %s: %w", name, err)
	}
	return props, nil
}

func (c *sessionClient) Position(name string) (int64, error) {
	v, err := c.conn.Object(name, MPRISPath).GetProperty(PlayerInterface + ".Position")
	if err != nil {
		return 0, fmt.Errorf("failed to get position of %s: %w", name, err)
	}
	us, ok := variantInt64(v)
	if !ok {
		return 0, fmt.Errorf("unexpected position type %s", v.Signature())
	}
	return us, nil
}
