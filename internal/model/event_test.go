package model

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackInfo_SameIdentity(t *testing.T) {
	base := TrackInfo{Title: "A", Artist: "X", Album: "Y"}

	tests := []struct {
		name  string
		other TrackInfo
		want  bool
	}{
		{"identical", TrackInfo{Title: "A", Artist: "X", Album: "Y"}, true},
		{"duration ignored", TrackInfo{Title: "A", Artist: "X", Album: "Y", DurationMs: Int64(1000)}, true},
		{"artwork ignored", TrackInfo{Title: "A", Artist: "X", Album: "Y", ArtworkRef: "file:///a.png"}, true},
		{"title differs", TrackInfo{Title: "B", Artist: "X", Album: "Y"}, false},
		{"artist differs", TrackInfo{Title: "A", Artist: "Z", Album: "Y"}, false},
		{"album differs", TrackInfo{Title: "A", Artist: "X"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.SameIdentity(tt.other))
		})
	}
}

func TestPlaybackEvent_TrackIsCopied(t *testing.T) {
	d := int64(1000)
	track := TrackInfo{Title: "A", DurationMs: &d}
	ev := NewTrackChanged(1, time.Now(), "spotify", track)

	d = 5000
	got := ev.Track()
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(1000), *got.DurationMs)

	*got.DurationMs = 42
	assert.Equal(t, int64(1000), *ev.Track().DurationMs)
}

func TestPlaybackStateName(t *testing.T) {
	assert.Equal(t, "playing", PlaybackStateName(true))
	assert.Equal(t, "paused", PlaybackStateName(false))
}

func TestRawUpdate_IsEmpty(t *testing.T) {
	assert.True(t, RawUpdate{}.IsEmpty())
	assert.True(t, RawUpdate{At: time.Now()}.IsEmpty())
	assert.False(t, RawUpdate{App: "vlc"}.IsEmpty())
	assert.False(t, RawUpdate{Playing: Bool(false)}.IsEmpty())
	assert.False(t, RawUpdate{PositionMs: Int64(0)}.IsEmpty())
	assert.False(t, RawUpdate{Track: &RawTrack{}}.IsEmpty())
}

func TestJSONLinesCodec_Encode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := JSONLinesCodec{}

	t.Run("track changed", func(t *testing.T) {
		ev := NewTrackChanged(3, at, "spotify", TrackInfo{Title: "A", Artist: "X", DurationMs: Int64(215000)})
		data, err := codec.Encode(ev)
		require.NoError(t, err)
		assert.True(t, bytes.HasSuffix(data, []byte("\n")))
		assert.Equal(t, 1, bytes.Count(data, []byte("\n")))

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, "track_changed", m["event_type"])
		assert.Equal(t, float64(3), m["event_number"])
		assert.Equal(t, "spotify", m["app_name"])

		info := m["track_info"].(map[string]any)
		assert.Equal(t, "A", info["title"])
		assert.Equal(t, "X", info["artist"])
		assert.Equal(t, float64(215000), info["duration_ms"])
		assert.NotContains(t, info, "album")
		assert.NotContains(t, info, "artwork_url")
		assert.NotContains(t, m, "is_playing")
	})

	t.Run("playback state", func(t *testing.T) {
		data, err := codec.Encode(NewPlaybackStateChanged(4, at, "", false))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, false, m["is_playing"])
		assert.Equal(t, "paused", m["playback_state"])
		assert.NotContains(t, m, "app_name")
	})

	t.Run("position", func(t *testing.T) {
		data, err := codec.Encode(NewPositionChanged(5, at, "mpv", 0))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, float64(0), m["position_ms"])
	})
}

func TestDecodeRecord_RoundTripsEvents(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []PlaybackEvent{
		NewApplicationChanged(1, at, "vlc"),
		NewTrackChanged(2, at, "vlc", TrackInfo{Title: "A", Artist: "X", Album: "Y", ArtworkRef: "file:///art.png"}),
		NewPlaybackStateChanged(3, at, "vlc", true),
		NewPositionChanged(4, at, "vlc", 61000),
	}

	for _, ev := range events {
		t.Run(string(ev.Kind), func(t *testing.T) {
			data, err := JSONLinesCodec{}.Encode(ev)
			require.NoError(t, err)

			rec, err := DecodeRecord(bytes.TrimSpace(data))
			require.NoError(t, err)

			got, err := rec.Event()
			require.NoError(t, err)
			assert.Equal(t, ev.Kind, got.Kind)
			assert.Equal(t, ev.Seq, got.Seq)
			assert.True(t, ev.Time.Equal(got.Time))
			assert.Equal(t, ev.App, got.App)
			assert.Equal(t, ev.Track(), got.Track())
			assert.Equal(t, ev.IsPlaying(), got.IsPlaying())
			assert.Equal(t, ev.PositionMs(), got.PositionMs())
		})
	}
}

func TestDecodeRecord_Errors(t *testing.T) {
	_, err := DecodeRecord([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeRecord([]byte(`{"event_number":1}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	rec, err := DecodeRecord([]byte(`{"event_type":"volume_changed"}`))
	require.NoError(t, err)
	_, err = rec.Event()
	assert.ErrorIs(t, err, ErrUnknownEventType)
}
