package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEventType is returned when decoding a record with an unrecognized event_type.
var ErrUnknownEventType = errors.New("unknown event type")

// Record is the wire representation of a PlaybackEvent.
// Each record is written as a single line of JSON terminated by '\n'.
type Record struct {
	EventType     EventKind    `json:"event_type" yaml:"event_type"`
	EventNumber   uint64       `json:"event_number" yaml:"event_number"`
	Timestamp     time.Time    `json:"timestamp" yaml:"timestamp"`
	AppName       string       `json:"app_name,omitempty" yaml:"app_name,omitempty"`
	TrackInfo     *TrackRecord `json:"track_info,omitempty" yaml:"track_info,omitempty"`
	IsPlaying     *bool        `json:"is_playing,omitempty" yaml:"is_playing,omitempty"`
	PlaybackState string       `json:"playback_state,omitempty" yaml:"playback_state,omitempty"`
	PositionMs    *int64       `json:"position_ms,omitempty" yaml:"position_ms,omitempty"`
}

// TrackRecord is the wire representation of TrackInfo.
type TrackRecord struct {
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Artist     string `json:"artist,omitempty" yaml:"artist,omitempty"`
	Album      string `json:"album,omitempty" yaml:"album,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty" yaml:"artwork_url,omitempty"`
}

// NewRecord converts an event to its wire representation.
func NewRecord(e PlaybackEvent) Record {
	r := Record{
		EventType:   e.Kind,
		EventNumber: e.Seq,
		Timestamp:   e.Time.UTC(),
		AppName:     e.App,
	}

	switch e.Kind {
	case KindTrackChanged:
		t := e.Track()
		r.TrackInfo = &TrackRecord{
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			DurationMs: t.DurationMs,
			ArtworkURL: t.ArtworkRef,
		}
	case KindPlaybackStateChanged:
		r.IsPlaying = Bool(e.IsPlaying())
		r.PlaybackState = PlaybackStateName(e.IsPlaying())
	case KindPositionChanged:
		r.PositionMs = Int64(e.PositionMs())
	}

	return r
}

// Event converts a decoded record back into a PlaybackEvent.
func (r Record) Event() (PlaybackEvent, error) {
	switch r.EventType {
	case KindTrackChanged:
		var t TrackInfo
		if r.TrackInfo != nil {
			t = TrackInfo{
				Title:      r.TrackInfo.Title,
				Artist:     r.TrackInfo.Artist,
				Album:      r.TrackInfo.Album,
				DurationMs: r.TrackInfo.DurationMs,
				ArtworkRef: r.TrackInfo.ArtworkURL,
			}
		}
		return NewTrackChanged(r.EventNumber, r.Timestamp, r.AppName, t), nil
	case KindPlaybackStateChanged:
		playing := r.PlaybackState == "playing"
		if r.IsPlaying != nil {
			playing = *r.IsPlaying
		}
		return NewPlaybackStateChanged(r.EventNumber, r.Timestamp, r.AppName, playing), nil
	case KindPositionChanged:
		var pos int64
		if r.PositionMs != nil {
			pos = *r.PositionMs
		}
		return NewPositionChanged(r.EventNumber, r.Timestamp, r.AppName, pos), nil
	case KindApplicationChanged:
		return NewApplicationChanged(r.EventNumber, r.Timestamp, r.AppName), nil
	default:
		return PlaybackEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, r.EventType)
	}
}

// Codec serializes events into wire records.
type Codec interface {
	// Encode returns one complete wire record, including its terminator.
	Encode(e PlaybackEvent) ([]byte, error)
}

// JSONLinesCodec encodes events as newline-delimited JSON.
type JSONLinesCodec struct{}

// Encode implements Codec.
func (JSONLinesCodec) Encode(e PlaybackEvent) ([]byte, error) {
	data, err := json.Marshal(NewRecord(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %d: %w", e.Seq, err)
	}
	return append(data, '\n'), nil
}

// DecodeRecord parses a single wire line.
func DecodeRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse record: %w", err)
	}
	if r.EventType == "" {
		return Record{}, fmt.Errorf("%w: missing event_type", ErrUnknownEventType)
	}
	return r, nil
}
