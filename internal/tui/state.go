package tui

import (
	"time"

	"github.com/jmylchreest/medialistener/internal/model"
)

// NowPlaying is the client-side view of the daemon's playback state,
// rebuilt from the event stream.
type NowPlaying struct {
	App        string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	DurationMs *int64
	Playing    bool

	// PositionMs was reported at PositionAt. Elapsed extrapolates from it.
	PositionMs int64
	PositionAt time.Time

	LastSeq  uint64
	Received uint64
	Missed   uint64
	Restarts uint64
}

// Apply folds one record into the state. A gap in event numbers is counted
// as missed events; a number that goes backwards means the daemon restarted
// and the state starts over.
func (s *NowPlaying) Apply(rec model.Record, now time.Time) {
	if s.LastSeq != 0 {
		switch {
		case rec.EventNumber <= s.LastSeq:
			restarts := s.Restarts + 1
			*s = NowPlaying{Restarts: restarts}
		case rec.EventNumber > s.LastSeq+1:
			s.Missed += rec.EventNumber - s.LastSeq - 1
		}
	}
	s.LastSeq = rec.EventNumber
	s.Received++

	if rec.AppName != "" {
		s.App = rec.AppName
	}

	switch rec.EventType {
	case model.KindApplicationChanged:
		s.App = rec.AppName
	case model.KindTrackChanged:
		s.Title, s.Artist, s.Album, s.ArtworkURL, s.DurationMs = "", "", "", "", nil
		if t := rec.TrackInfo; t != nil {
			s.Title = t.Title
			s.Artist = t.Artist
			s.Album = t.Album
			s.ArtworkURL = t.ArtworkURL
			if t.DurationMs != nil {
				d := *t.DurationMs
				s.DurationMs = &d
			}
		}
		s.PositionMs = 0
		s.PositionAt = now
	case model.KindPlaybackStateChanged:
		// Pin the extrapolated position so pausing freezes the clock.
		s.PositionMs = s.Elapsed(now)
		s.PositionAt = now
		if rec.IsPlaying != nil {
			s.Playing = *rec.IsPlaying
		} else {
			s.Playing = rec.PlaybackState == "playing"
		}
	case model.KindPositionChanged:
		if rec.PositionMs != nil {
			s.PositionMs = *rec.PositionMs
		}
		s.PositionAt = now
	}
}

// HasTrack reports whether any track details are known.
func (s NowPlaying) HasTrack() bool {
	return s.Title != "" || s.Artist != "" || s.Album != ""
}

// Elapsed returns the position at now, advancing while playing and
// capped at the track duration.
func (s NowPlaying) Elapsed(now time.Time) int64 {
	pos := s.PositionMs
	if s.Playing && !s.PositionAt.IsZero() && now.After(s.PositionAt) {
		pos += now.Sub(s.PositionAt).Milliseconds()
	}
	if s.DurationMs != nil && *s.DurationMs > 0 && pos > *s.DurationMs {
		pos = *s.DurationMs
	}
	return pos
}

// Progress returns the fraction of the track played, or 0 without a duration.
func (s NowPlaying) Progress(now time.Time) float64 {
	if s.DurationMs == nil || *s.DurationMs <= 0 {
		return 0
	}
	return float64(s.Elapsed(now)) / float64(*s.DurationMs)
}
