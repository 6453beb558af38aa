package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/medialistener/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecords() []model.Record {
	at := fixedNow.Add(-5 * time.Minute)
	return []model.Record{
		model.NewRecord(model.NewApplicationChanged(1, at, "spotify")),
		model.NewRecord(model.NewTrackChanged(2, at, "spotify", model.TrackInfo{
			Title:      "Song A",
			Artist:     "Artist X",
			Album:      "Album Q",
			DurationMs: model.Int64(185000),
		})),
		model.NewRecord(model.NewPlaybackStateChanged(3, at, "spotify", true)),
		model.NewRecord(model.NewPositionChanged(4, at, "spotify", 61500)),
	}
}

func testOptions() FormatterOptions {
	opts := DefaultFormatterOptions()
	opts.NoColor = true
	opts.TimeNowFunc = func() time.Time { return fixedNow }
	return opts
}

func formatAll(t *testing.T, f Formatter, recs []model.Record) string {
	t.Helper()
	var buf bytes.Buffer
	for _, rec := range recs {
		require.NoError(t, f.Format(&buf, rec))
	}
	return buf.String()
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  FormatType
		want    any
		wantErr bool
	}{
		{FormatPretty, &PrettyFormatter{}, false},
		{"", &PrettyFormatter{}, false},
		{FormatJSON, &JSONFormatter{}, false},
		{FormatYAML, &YAMLFormatter{}, false},
		{FormatPlain, &PlainFormatter{}, false},
		{"xml", nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format, testOptions())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestSummary(t *testing.T) {
	recs := testRecords()
	assert.Equal(t, "spotify", Summary(recs[0]))
	assert.Equal(t, "Song A - Artist X (Album Q)", Summary(recs[1]))
	assert.Equal(t, "playing", Summary(recs[2]))
	assert.Equal(t, "1:01", Summary(recs[3]))

	assert.Equal(t, "(none)", Summary(model.Record{EventType: model.KindApplicationChanged}))
	assert.Equal(t, "(no track)", Summary(model.Record{EventType: model.KindTrackChanged}))
	assert.Equal(t, "paused", Summary(model.Record{
		EventType: model.KindPlaybackStateChanged,
		IsPlaying: model.Bool(false),
	}))
}

func TestTrackLine(t *testing.T) {
	tests := []struct {
		title, artist, album string
		want                 string
	}{
		{"A", "X", "Q", "A - X (Q)"},
		{"A", "", "", "A"},
		{"", "X", "", "X"},
		{"A", "", "Q", "A (Q)"},
		{"", "", "", "(untitled)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrackLine(tt.title, tt.artist, tt.album))
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{61500, "1:01"},
		{3600000, "1:00:00"},
		{3723000, "1:02:03"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatClock(tt.ms))
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	out := formatAll(t, NewJSONFormatter(testOptions()), testRecords())

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	var track map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &track))
	assert.Equal(t, "track_changed", track["event_type"])
	assert.Equal(t, float64(2), track["event_number"])
	info := track["track_info"].(map[string]any)
	assert.Equal(t, "Song A", info["title"])
	assert.Equal(t, float64(185000), info["duration_ms"])

	// The output decodes back through the wire decoder.
	rec, err := model.DecodeRecord([]byte(lines[3]))
	require.NoError(t, err)
	require.NotNil(t, rec.PositionMs)
	assert.Equal(t, int64(61500), *rec.PositionMs)
}

func TestJSONFormatter_Indent(t *testing.T) {
	opts := testOptions()
	opts.Indent = true
	out := formatAll(t, NewJSONFormatter(opts), testRecords()[:1])
	assert.Contains(t, out, "\n  \"event_type\": \"application_changed\"")
}

func TestYAMLFormatter_Format(t *testing.T) {
	out := formatAll(t, NewYAMLFormatter(), testRecords())

	dec := yaml.NewDecoder(strings.NewReader(out))
	var docs []map[string]any
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		docs = append(docs, doc)
	}
	require.Len(t, docs, 4)
	assert.Equal(t, "application_changed", docs[0]["event_type"])
	assert.Equal(t, "playing", docs[2]["playback_state"])
	assert.Equal(t, true, docs[2]["is_playing"])
	assert.Equal(t, 61500, docs[3]["position_ms"])
}

func TestPlainFormatter_Default(t *testing.T) {
	f, err := NewPlainFormatter(testOptions())
	require.NoError(t, err)

	out := formatAll(t, f, testRecords())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2\ttrack_changed\tspotify\tSong A - Artist X (Album Q)", lines[1])
	assert.Equal(t, "4\tposition_changed\tspotify\t1:01", lines[3])
}

func TestPlainFormatter_Template(t *testing.T) {
	opts := testOptions()
	opts.Template = "{{.EventNumber}} {{.EventType}} {{.AppName}} {{.Summary}}"
	f, err := NewPlainFormatter(opts)
	require.NoError(t, err)

	out := formatAll(t, f, testRecords()[1:3])
	assert.Equal(t, "2 track_changed spotify Song A - Artist X (Album Q)\n3 playback_state_changed spotify playing\n", out)
}

func TestPlainFormatter_TemplateFuncs(t *testing.T) {
	opts := testOptions()
	opts.Template = `{{upper .Title}}|{{.Duration}}|{{truncate .Artist 5}}|{{reltime .Timestamp}}`
	f, err := NewPlainFormatter(opts)
	require.NoError(t, err)

	out := formatAll(t, f, testRecords()[1:2])
	assert.Equal(t, "SONG A|3:05|Ar...|5 minutes ago\n", out)
}

func TestPlainFormatter_InvalidTemplate(t *testing.T) {
	opts := testOptions()
	opts.Template = "{{.EventNumber"
	_, err := NewPlainFormatter(opts)
	assert.Error(t, err)
}

func TestPlainFormatter_Truncate(t *testing.T) {
	opts := testOptions()
	opts.SummaryMax = 8
	f, err := NewPlainFormatter(opts)
	require.NoError(t, err)

	out := formatAll(t, f, testRecords()[1:2])
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "\tSong ..."))
}

func TestPrettyFormatter_Format(t *testing.T) {
	out := formatAll(t, NewPrettyFormatter(testOptions()), testRecords())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "#1")
	assert.Contains(t, lines[0], "app")
	assert.Contains(t, lines[1], "track")
	assert.Contains(t, lines[1], "Song A - Artist X (Album Q) [3:05]")
	assert.Contains(t, lines[1], "5 minutes ago")
	assert.Contains(t, lines[2], "playing")
	assert.Contains(t, lines[3], "1:01")
}

func TestPrettyFormatter_LargeSequence(t *testing.T) {
	opts := testOptions()
	opts.ShowTime = false
	rec := model.NewRecord(model.NewPositionChanged(1234567, fixedNow, "mpv", 0))

	out := formatAll(t, NewPrettyFormatter(opts), []model.Record{rec})
	assert.Contains(t, out, "#1,234,567")
	assert.NotContains(t, out, "ago")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 0))
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "he...", truncate("hello world", 5))
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "日本...", truncate("日本語のテキスト", 5))
}
