package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/medialistener/internal/model"
)

func track(title, artist, album string) *model.RawTrack {
	return &model.RawTrack{Title: model.String(title), Artist: model.String(artist), Album: model.String(album)}
}

func kinds(events []model.PlaybackEvent) []model.EventKind {
	out := make([]model.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestNormalizer_TrackChanged(t *testing.T) {
	tests := []struct {
		name  string
		first *model.RawTrack
		next  *model.RawTrack
		want  bool
	}{
		{"same track", track("A", "X", "Y"), track("A", "X", "Y"), false},
		{"title differs", track("A", "X", "Y"), track("B", "X", "Y"), true},
		{"artist differs", track("A", "X", "Y"), track("A", "Z", "Y"), true},
		{"album differs", track("A", "X", "Y"), track("A", "X", "W"), true},
		{
			name:  "duration change only",
			first: &model.RawTrack{Title: model.String("A"), Artist: model.String("X"), DurationMs: model.Int64(1000)},
			next:  &model.RawTrack{Title: model.String("A"), Artist: model.String("X"), DurationMs: model.Int64(2000)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer()
			first := n.Ingest(model.RawUpdate{Track: tt.first})
			require.Equal(t, []model.EventKind{model.KindTrackChanged}, kinds(first))

			next := n.Ingest(model.RawUpdate{Track: tt.next})
			if tt.want {
				require.Equal(t, []model.EventKind{model.KindTrackChanged}, kinds(next))
				assert.Equal(t, tt.next.Info().Title, next[0].Track().Title)
			} else {
				assert.Empty(t, next)
			}
		})
	}
}

func TestNormalizer_ReplayIsIdempotent(t *testing.T) {
	n := NewNormalizer()
	raw := model.RawUpdate{Track: track("A", "X", ""), Playing: model.Bool(true)}

	first := n.Ingest(raw)
	assert.Equal(t, []model.EventKind{model.KindTrackChanged, model.KindPlaybackStateChanged}, kinds(first))

	assert.Empty(t, n.Ingest(raw))
	assert.Empty(t, n.Ingest(raw))
}

func TestNormalizer_EmptyTrackAtStartupIsNotAChange(t *testing.T) {
	n := NewNormalizer()
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{}}))
}

func TestNormalizer_PlaybackState(t *testing.T) {
	n := NewNormalizer()

	// Unknown initial state differs from any value.
	evs := n.Ingest(model.RawUpdate{Playing: model.Bool(false)})
	require.Len(t, evs, 1)
	assert.False(t, evs[0].IsPlaying())

	assert.Empty(t, n.Ingest(model.RawUpdate{Playing: model.Bool(false)}))

	evs = n.Ingest(model.RawUpdate{Playing: model.Bool(true)})
	require.Len(t, evs, 1)
	assert.True(t, evs[0].IsPlaying())

	// Missing flag leaves the state untouched.
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{}}))
	assert.Empty(t, n.Ingest(model.RawUpdate{Playing: model.Bool(true)}))
}

func TestNormalizer_PositionIsNeverDeduplicated(t *testing.T) {
	n := NewNormalizer()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		evs := n.Ingest(model.RawUpdate{PositionMs: model.Int64(5000), At: at})
		require.Len(t, evs, 1)
		assert.Equal(t, model.KindPositionChanged, evs[0].Kind)
		assert.Equal(t, int64(5000), evs[0].PositionMs())
		assert.True(t, at.Equal(evs[0].Time))
	}
}

func TestNormalizer_ApplicationChanged(t *testing.T) {
	n := NewNormalizer()

	evs := n.Ingest(model.RawUpdate{App: "spotify", Track: track("A", "X", "")})
	assert.Equal(t, []model.EventKind{model.KindApplicationChanged, model.KindTrackChanged}, kinds(evs))
	for _, e := range evs {
		assert.Equal(t, "spotify", e.App)
	}

	// Later updates without an app inherit the known one.
	evs = n.Ingest(model.RawUpdate{Playing: model.Bool(true)})
	require.Len(t, evs, 1)
	assert.Equal(t, "spotify", evs[0].App)

	assert.Empty(t, n.Ingest(model.RawUpdate{App: "spotify"}))

	evs = n.Ingest(model.RawUpdate{App: "vlc"})
	assert.Equal(t, []model.EventKind{model.KindApplicationChanged}, kinds(evs))
}

func TestNormalizer_EmissionOrderAndSequence(t *testing.T) {
	n := NewNormalizer()
	evs := n.Ingest(model.RawUpdate{
		App:        "mpv",
		Track:      track("A", "X", "Y"),
		Playing:    model.Bool(true),
		PositionMs: model.Int64(0),
	})

	assert.Equal(t, model.ValidKinds(), kinds(evs))
	for i, e := range evs {
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	evs = n.Ingest(model.RawUpdate{PositionMs: model.Int64(1000)})
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(5), evs[0].Seq)
}

func TestNormalizer_MissingFieldsStayUnknown(t *testing.T) {
	n := NewNormalizer()
	evs := n.Ingest(model.RawUpdate{Track: &model.RawTrack{Title: model.String("A")}})
	require.Len(t, evs, 1)

	tr := evs[0].Track()
	assert.Equal(t, "A", tr.Title)
	assert.Empty(t, tr.Artist)
	assert.Nil(t, tr.DurationMs)
	assert.Empty(t, tr.ArtworkRef)
}

func TestNormalizer_SnapshotUpdatedUnconditionally(t *testing.T) {
	n := NewNormalizer()
	n.Ingest(model.RawUpdate{Track: &model.RawTrack{Title: model.String("A"), DurationMs: model.Int64(1000)}, PositionMs: model.Int64(10)})

	// Same identity: no event, but the snapshot takes the new details.
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{Title: model.String("A"), DurationMs: model.Int64(2000)}}))

	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotNil(t, n.state.track.DurationMs)
	assert.Equal(t, int64(2000), *n.state.track.DurationMs)
	require.NotNil(t, n.state.positionMs)
	assert.Equal(t, int64(10), *n.state.positionMs)
}

func TestNormalizer_PartialTrackUpdates(t *testing.T) {
	n := NewNormalizer()
	require.Len(t, n.Ingest(model.RawUpdate{Track: track("A", "X", "Y"), Playing: model.Bool(true)}), 2)

	// Details without identity refine the current track.
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{ArtworkRef: model.String("file:///a.png")}}))
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{DurationMs: model.Int64(1000)}}))

	n.mu.Lock()
	got := n.state.track
	n.mu.Unlock()
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "X", got.Artist)
	assert.Equal(t, "Y", got.Album)
	assert.Equal(t, "file:///a.png", got.ArtworkRef)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(1000), *got.DurationMs)

	// A new title keeps the known artist and album but drops the old details.
	evs := n.Ingest(model.RawUpdate{Track: &model.RawTrack{Title: model.String("B")}})
	require.Equal(t, []model.EventKind{model.KindTrackChanged}, kinds(evs))
	tr := evs[0].Track()
	assert.Equal(t, "B", tr.Title)
	assert.Equal(t, "X", tr.Artist)
	assert.Equal(t, "Y", tr.Album)
	assert.Nil(t, tr.DurationMs)
	assert.Empty(t, tr.ArtworkRef)

	// Supplied details on the same update are kept.
	evs = n.Ingest(model.RawUpdate{Track: &model.RawTrack{
		Album:      model.String("Z"),
		ArtworkRef: model.String("file:///z.png"),
	}})
	require.Len(t, evs, 1)
	assert.Equal(t, "Z", evs[0].Track().Album)
	assert.Equal(t, "file:///z.png", evs[0].Track().ArtworkRef)

	// Re-supplying the same identity is not a change.
	assert.Empty(t, n.Ingest(model.RawUpdate{Track: &model.RawTrack{Artist: model.String("X")}}))
}

func TestNormalizer_ConcurrentIngest(t *testing.T) {
	n := NewNormalizer()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		total  int
		tracks int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				evs := n.Ingest(model.RawUpdate{Track: track("A", "X", "Y"), PositionMs: model.Int64(int64(j))})
				mu.Lock()
				total += len(evs)
				for _, e := range evs {
					if e.Kind == model.KindTrackChanged {
						tracks++
					}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 800 positions plus exactly one track change.
	assert.Equal(t, 1, tracks)
	assert.Equal(t, 801, total)
	assert.Equal(t, uint64(801), n.seq)
}
