package dbus

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/medialistener/internal/model"
)

// busClient is the subset of session bus queries the tracker needs.
type busClient interface {
	// ListPlayers returns MPRIS players keyed by unique connection name.
	ListPlayers() (map[string]string, error)
	// GetAll returns every player property of the named player.
	GetAll(name string) (map[string]dbus.Variant, error)
	// Position returns the current playback position in microseconds.
	Position(name string) (int64, error)
}

// tracker follows the active MPRIS player and turns bus signals into raw
// updates. It is owned by a single goroutine and is not safe for concurrent use.
type tracker struct {
	filter string
	client busClient
	logger *slog.Logger
	now    func() time.Time

	owners  map[string]string // unique name -> player bus name
	active  string
	playing bool
}

func newTracker(filter string, client busClient, logger *slog.Logger) *tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &tracker{
		filter: filter,
		client: client,
		logger: logger,
		now:    time.Now,
		owners: make(map[string]string),
	}
}

// init discovers running players and returns the state of the one chosen as active.
func (t *tracker) init() (model.RawUpdate, bool) {
	t.refreshOwners()
	return t.pickActive()
}

func (t *tracker) refreshOwners() {
	owners, err := t.client.ListPlayers()
	if err != nil {
		t.logger.Warn("failed to list media players", "error", err)
		return
	}
	t.owners = make(map[string]string, len(owners))
	for unique, name := range owners {
		if MatchesPlayer(name, t.filter) {
			t.owners[unique] = name
		}
	}
}

// pickActive selects the first playing player, or the first player by name.
func (t *tracker) pickActive() (model.RawUpdate, bool) {
	names := make([]string, 0, len(t.owners))
	for _, name := range t.owners {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		fallback    string
		fallbackRaw model.RawUpdate
	)
	for _, name := range names {
		props, err := t.client.GetAll(name)
		if err != nil {
			t.logger.Debug("failed to read player state", "player", name, "error", err)
			continue
		}
		raw := ParseProperties(AppName(name), props, t.now())
		if raw.Playing != nil && *raw.Playing {
			return t.setActive(name, raw), true
		}
		if fallback == "" {
			fallback, fallbackRaw = name, raw
		}
	}
	if fallback == "" {
		t.active = ""
		return model.RawUpdate{}, false
	}
	return t.setActive(fallback, fallbackRaw), true
}

// activate makes name the active player and returns its current state.
func (t *tracker) activate(name string) model.RawUpdate {
	props, err := t.client.GetAll(name)
	if err != nil {
		t.logger.Debug("failed to read player state", "player", name, "error", err)
		return t.setActive(name, model.RawUpdate{App: AppName(name), At: t.now()})
	}
	return t.setActive(name, ParseProperties(AppName(name), props, t.now()))
}

func (t *tracker) setActive(name string, raw model.RawUpdate) model.RawUpdate {
	if name != t.active {
		t.logger.Info("active media player", "player", name)
	}
	t.active = name
	t.observe(raw)
	return raw
}

func (t *tracker) observe(raw model.RawUpdate) {
	if raw.Playing != nil {
		t.playing = *raw.Playing
	}
}

// resolve maps a signal sender to a player bus name.
func (t *tracker) resolve(sender string) string {
	if !strings.HasPrefix(sender, ":") {
		if MatchesPlayer(sender, t.filter) {
			return sender
		}
		return ""
	}
	if name, ok := t.owners[sender]; ok {
		return name
	}
	t.refreshOwners()
	return t.owners[sender]
}

// handle converts one bus signal into zero or more raw updates.
func (t *tracker) handle(sig *dbus.Signal) []model.RawUpdate {
	switch sig.Name {
	case propertiesInterface + ".PropertiesChanged":
		return t.handlePropertiesChanged(sig)
	case PlayerInterface + ".Seeked":
		return t.handleSeeked(sig)
	case busInterface + ".NameOwnerChanged":
		return t.handleNameOwnerChanged(sig)
	}
	return nil
}

func (t *tracker) handlePropertiesChanged(sig *dbus.Signal) []model.RawUpdate {
	if len(sig.Body) < 2 {
		return nil
	}
	if iface, _ := sig.Body[0].(string); iface != PlayerInterface {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		t.logger.Warn("malformed PropertiesChanged signal", "sender", sig.Sender)
		return nil
	}

	name := t.resolve(sig.Sender)
	if name == "" {
		return nil
	}

	raw := ParseProperties(AppName(name), changed, t.now())
	if name == t.active {
		t.observe(raw)
		return []model.RawUpdate{raw}
	}

	// Another player takes over once it starts playing.
	if t.active == "" || (raw.Playing != nil && *raw.Playing) {
		return []model.RawUpdate{t.activate(name)}
	}
	return nil
}

func (t *tracker) handleSeeked(sig *dbus.Signal) []model.RawUpdate {
	if len(sig.Body) < 1 || t.resolve(sig.Sender) != t.active || t.active == "" {
		return nil
	}
	us, ok := sig.Body[0].(int64)
	if !ok || us < 0 {
		return nil
	}
	return []model.RawUpdate{{
		App:        AppName(t.active),
		PositionMs: model.Int64(us / 1000),
		At:         t.now(),
	}}
}

func (t *tracker) handleNameOwnerChanged(sig *dbus.Signal) []model.RawUpdate {
	if len(sig.Body) < 3 {
		return nil
	}
	name, _ := sig.Body[0].(string)
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)
	if !MatchesPlayer(name, t.filter) {
		return nil
	}

	if oldOwner != "" {
		delete(t.owners, oldOwner)
	}

	if newOwner != "" {
		t.owners[newOwner] = name
		t.logger.Debug("media player appeared", "player", name)
		if t.active == "" {
			return []model.RawUpdate{t.activate(name)}
		}
		return nil
	}

	t.logger.Debug("media player vanished", "player", name)
	if name != t.active {
		return nil
	}

	t.active = ""
	if raw, ok := t.pickActive(); ok {
		return []model.RawUpdate{raw}
	}
	t.playing = false
	return []model.RawUpdate{{Playing: model.Bool(false), At: t.now()}}
}

// poll reads the active player's position while it is playing.
func (t *tracker) poll() (model.RawUpdate, bool) {
	if t.active == "" || !t.playing {
		return model.RawUpdate{}, false
	}
	us, err := t.client.Position(t.active)
	if err != nil {
		t.logger.Debug("failed to read position", "player", t.active, "error", err)
		return model.RawUpdate{}, false
	}
	if us < 0 {
		return model.RawUpdate{}, false
	}
	return model.RawUpdate{
		App:        AppName(t.active),
		PositionMs: model.Int64(us / 1000),
		At:         t.now(),
	}, true
}
