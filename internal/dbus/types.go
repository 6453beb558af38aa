package dbus

import (
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/medialistener/internal/model"
)

const (
	// MPRISPrefix is the bus name prefix shared by all MPRIS players.
	MPRISPrefix = "org.mpris.MediaPlayer2."
	// MPRISPath is the object path every MPRIS player exports.
	MPRISPath = "/org/mpris/MediaPlayer2"
	// PlayerInterface is the MPRIS player interface.
	PlayerInterface = "org.mpris.MediaPlayer2.Player"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	busInterface        = "org.freedesktop.DBus"
)

// PlaybackStatus values defined by MPRIS.
const (
	StatusPlaying = "Playing"
	StatusPaused  = "Paused"
	StatusStopped = "Stopped"
)

// IsPlayerName reports whether name is an MPRIS player bus name.
func IsPlayerName(name string) bool {
	return strings.HasPrefix(name, MPRISPrefix) && len(name) > len(MPRISPrefix)
}

// MatchesPlayer reports whether the player bus name passes filter.
// An empty filter matches every player.
func MatchesPlayer(name, filter string) bool {
	if !IsPlayerName(name) {
		return false
	}
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// AppName derives the application name from a player bus name.
// "org.mpris.MediaPlayer2.chromium.instance42" becomes "chromium".
func AppName(name string) string {
	app := strings.TrimPrefix(name, MPRISPrefix)
	if i := strings.Index(app, "."); i > 0 {
		app = app[:i]
	}
	return app
}

// ParsePlaybackStatus converts a PlaybackStatus value to the playing flag.
// ok is false for unrecognized values.
func ParsePlaybackStatus(status string) (playing, ok bool) {
	switch status {
	case StatusPlaying:
		return true, true
	case StatusPaused, StatusStopped:
		return false, true
	default:
		return false, false
	}
}

// ParseMetadata converts an MPRIS Metadata map into track metadata.
// Metadata always describes the whole current track, so title, artist,
// album and artwork are supplied (possibly empty) whenever the map is not
// empty. A missing or malformed length stays unknown.
func ParseMetadata(meta map[string]dbus.Variant) *model.RawTrack {
	track := &model.RawTrack{}
	if len(meta) == 0 {
		return track
	}
	track.Title = model.String(variantString(meta["xesam:title"]))
	track.Artist = model.String(variantStrings(meta["xesam:artist"]))
	track.Album = model.String(variantString(meta["xesam:album"]))
	track.ArtworkRef = model.String(variantString(meta["mpris:artUrl"]))
	if us, ok := variantInt64(meta["mpris:length"]); ok && us >= 0 {
		track.DurationMs = model.Int64(us / 1000)
	}
	return track
}

// ParseProperties converts a set of player properties, as delivered by
// GetAll or PropertiesChanged, into a raw update for app.
func ParseProperties(app string, props map[string]dbus.Variant, at time.Time) model.RawUpdate {
	raw := model.RawUpdate{App: app, At: at}

	if v, ok := props["Metadata"]; ok {
		if meta, ok := v.Value().(map[string]dbus.Variant); ok {
			raw.Track = ParseMetadata(meta)
		}
	}

	if v, ok := props["PlaybackStatus"]; ok {
		if playing, ok := ParsePlaybackStatus(variantString(v)); ok {
			raw.Playing = model.Bool(playing)
		}
	}

	if v, ok := props["Position"]; ok {
		if us, ok := variantInt64(v); ok && us >= 0 {
			raw.PositionMs = model.Int64(us / 1000)
		}
	}

	return raw
}

func variantString(v dbus.Variant) string {
	switch val := v.Value().(type) {
	case string:
		return strings.TrimSpace(val)
	case dbus.ObjectPath:
		return string(val)
	}
	return ""
}

// variantStrings joins a string list, which MPRIS uses for artists.
func variantStrings(v dbus.Variant) string {
	switch val := v.Value().(type) {
	case []string:
		parts := make([]string, 0, len(val))
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case string:
		return strings.TrimSpace(val)
	}
	return ""
}

// variantInt64 accepts the integer types players use for lengths and positions.
func variantInt64(v dbus.Variant) (int64, bool) {
	switch val := v.Value().(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}
