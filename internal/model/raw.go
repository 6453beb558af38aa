package model

import "time"

// RawTrack is the track metadata supplied by a single source callback.
// A nil field means the source did not supply the value.
type RawTrack struct {
	Title      *string
	Artist     *string
	Album      *string
	DurationMs *int64
	ArtworkRef *string
}

// HasIdentity reports whether any of title, artist or album was supplied.
func (r RawTrack) HasIdentity() bool {
	return r.Title != nil || r.Artist != nil || r.Album != nil
}

// Info converts the raw metadata into a TrackInfo. Values that were not
// supplied are left empty.
func (r RawTrack) Info() TrackInfo {
	return TrackInfo{
		Title:      deref(r.Title),
		Artist:     deref(r.Artist),
		Album:      deref(r.Album),
		DurationMs: r.DurationMs,
		ArtworkRef: deref(r.ArtworkRef),
	}.clone()
}

// RawUpdate is one provisional payload delivered by a media state source.
// A nil field means the callback carried no information for it.
type RawUpdate struct {
	App        string
	Track      *RawTrack
	Playing    *bool
	PositionMs *int64
	At         time.Time
}

// IsEmpty reports whether the update carries no information at all.
func (r RawUpdate) IsEmpty() bool {
	return r.App == "" && r.Track == nil && r.Playing == nil && r.PositionMs == nil
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
