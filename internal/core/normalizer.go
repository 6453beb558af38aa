// Package core contains playback state normalization and record filtering.
package core

import (
	"sync"
	"time"

	"github.com/jmylchreest/medialistener/internal/model"
)

// playbackState is the last known state of the media session.
type playbackState struct {
	app        string
	track      model.TrackInfo
	playing    *bool
	positionMs *int64
}

// Normalizer turns raw source updates into playback events.
// It keeps a single snapshot of the last known state and only emits
// events for genuine transitions. Safe for concurrent use.
type Normalizer struct {
	mu    sync.Mutex
	state playbackState
	seq   uint64
	now   func() time.Time
}

// NewNormalizer creates a Normalizer with an empty snapshot.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Ingest diffs raw against the snapshot and returns the resulting events,
// in the order application, track, playback state, position.
func (n *Normalizer) Ingest(raw model.RawUpdate) []model.PlaybackEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	at := raw.At
	if at.IsZero() {
		at = n.now()
	}

	prev := n.state

	// Snapshot is updated before any event leaves this function.
	if raw.App != "" {
		n.state.app = raw.App
	}
	trackChanged := false
	if raw.Track != nil {
		n.state.track, trackChanged = mergeTrack(prev.track, *raw.Track)
	}
	if raw.Playing != nil {
		n.state.playing = model.Bool(*raw.Playing)
	}
	if raw.PositionMs != nil {
		n.state.positionMs = model.Int64(*raw.PositionMs)
	}

	app := n.state.app
	var events []model.PlaybackEvent

	if raw.App != "" && raw.App != prev.app {
		events = append(events, model.NewApplicationChanged(n.nextSeq(), at, app))
	}

	if trackChanged {
		events = append(events, model.NewTrackChanged(n.nextSeq(), at, app, n.state.track))
	}

	if raw.Playing != nil {
		if prev.playing == nil || *prev.playing != *raw.Playing {
			events = append(events, model.NewPlaybackStateChanged(n.nextSeq(), at, app, *raw.Playing))
		}
	}

	if raw.PositionMs != nil {
		events = append(events, model.NewPositionChanged(n.nextSeq(), at, app, *raw.PositionMs))
	}

	return events
}

// mergeTrack applies the supplied fields of raw to prev. Identity fields that
// were not supplied keep their known value. Duration and artwork belong to a
// single track, so they are cleared on an identity change unless supplied.
func mergeTrack(prev model.TrackInfo, raw model.RawTrack) (model.TrackInfo, bool) {
	next := model.TrackInfo{
		Title:      prev.Title,
		Artist:     prev.Artist,
		Album:      prev.Album,
		DurationMs: prev.DurationMs,
		ArtworkRef: prev.ArtworkRef,
	}
	if raw.Title != nil {
		next.Title = *raw.Title
	}
	if raw.Artist != nil {
		next.Artist = *raw.Artist
	}
	if raw.Album != nil {
		next.Album = *raw.Album
	}

	changed := !prev.SameIdentity(next)
	if changed {
		next.DurationMs = nil
		next.ArtworkRef = ""
	}
	if raw.DurationMs != nil {
		next.DurationMs = model.Int64(*raw.DurationMs)
	}
	if raw.ArtworkRef != nil {
		next.ArtworkRef = *raw.ArtworkRef
	}
	return next, changed
}

// nextSeq returns the next event number. Callers must hold n.mu.
func (n *Normalizer) nextSeq() uint64 {
	n.seq++
	return n.seq
}
