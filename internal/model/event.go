// Package model defines the core data structures for media-listener.
package model

import (
	"time"
)

// EventKind identifies the variant of a PlaybackEvent.
type EventKind string

const (
	// KindTrackChanged is emitted when title, artist or album changes.
	KindTrackChanged EventKind = "track_changed"
	// KindPlaybackStateChanged is emitted when the play/pause flag flips.
	KindPlaybackStateChanged EventKind = "playback_state_changed"
	// KindPositionChanged is emitted for every position-bearing update.
	KindPositionChanged EventKind = "position_changed"
	// KindApplicationChanged is emitted when the now-playing application changes.
	KindApplicationChanged EventKind = "application_changed"
)

// ValidKinds returns all event kinds in emission order.
func ValidKinds() []EventKind {
	return []EventKind{
		KindApplicationChanged,
		KindTrackChanged,
		KindPlaybackStateChanged,
		KindPositionChanged,
	}
}

// TrackInfo describes the identity and details of a track.
// DurationMs is nil when the source did not report a duration.
type TrackInfo struct {
	Title      string
	Artist     string
	Album      string
	DurationMs *int64
	ArtworkRef string
}

// SameIdentity reports whether two tracks have the same title, artist and album.
func (t TrackInfo) SameIdentity(other TrackInfo) bool {
	return t.Title == other.Title && t.Artist == other.Artist && t.Album == other.Album
}

// clone returns a copy that shares no pointers with t.
func (t TrackInfo) clone() TrackInfo {
	c := t
	if t.DurationMs != nil {
		d := *t.DurationMs
		c.DurationMs = &d
	}
	return c
}

// PlaybackEvent is a normalized, immutable notification that media state changed.
// Only the fields belonging to Kind are meaningful.
type PlaybackEvent struct {
	Kind EventKind
	Seq  uint64
	Time time.Time
	App  string

	track      TrackInfo
	isPlaying  bool
	positionMs int64
}

// NewTrackChanged creates a TrackChanged event.
func NewTrackChanged(seq uint64, at time.Time, app string, track TrackInfo) PlaybackEvent {
	return PlaybackEvent{Kind: KindTrackChanged, Seq: seq, Time: at, App: app, track: track.clone()}
}

// NewPlaybackStateChanged creates a PlaybackStateChanged event.
func NewPlaybackStateChanged(seq uint64, at time.Time, app string, playing bool) PlaybackEvent {
	return PlaybackEvent{Kind: KindPlaybackStateChanged, Seq: seq, Time: at, App: app, isPlaying: playing}
}

// NewPositionChanged creates a PositionChanged event.
func NewPositionChanged(seq uint64, at time.Time, app string, positionMs int64) PlaybackEvent {
	return PlaybackEvent{Kind: KindPositionChanged, Seq: seq, Time: at, App: app, positionMs: positionMs}
}

// NewApplicationChanged creates an ApplicationChanged event.
func NewApplicationChanged(seq uint64, at time.Time, app string) PlaybackEvent {
	return PlaybackEvent{Kind: KindApplicationChanged, Seq: seq, Time: at, App: app}
}

// Track returns the track carried by a TrackChanged event.
func (e PlaybackEvent) Track() TrackInfo {
	return e.track.clone()
}

// IsPlaying returns the play flag carried by a PlaybackStateChanged event.
func (e PlaybackEvent) IsPlaying() bool {
	return e.isPlaying
}

// PositionMs returns the position carried by a PositionChanged event.
func (e PlaybackEvent) PositionMs() int64 {
	return e.positionMs
}

// Position returns the position as a time.Duration.
func (e PlaybackEvent) Position() time.Duration {
	return time.Duration(e.positionMs) * time.Millisecond
}

// PlaybackStateName returns "playing" or "paused".
func PlaybackStateName(playing bool) string {
	if playing {
		return "playing"
	}
	return "paused"
}
