// Package output provides output formatters for playback records.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmylchreest/medialistener/internal/model"
)

// Formatter writes playback records as they arrive from the daemon.
type Formatter interface {
	// Format writes a single record to the writer.
	Format(w io.Writer, rec model.Record) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPretty FormatType = "pretty"
	FormatJSON   FormatType = "json"
	FormatYAML   FormatType = "yaml"
	FormatPlain  FormatType = "plain"
)

// ValidFormats returns all supported output formats.
func ValidFormats() []FormatType {
	return []FormatType{FormatPretty, FormatJSON, FormatYAML, FormatPlain}
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) (Formatter, error) {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts), nil
	case FormatYAML:
		return NewYAMLFormatter(), nil
	case FormatPlain:
		return NewPlainFormatter(opts)
	case FormatPretty, "":
		return NewPrettyFormatter(opts), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (valid: %v)", format, ValidFormats())
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template    string // Template for plain format
	ShowTime    bool   // Show relative time in pretty format
	Indent      bool   // Indent JSON output
	SummaryMax  int    // Maximum summary length (0 = unlimited)
	NoColor     bool   // Disable styling in pretty format
	TimeNowFunc func() time.Time
}

// DefaultFormatterOptions returns sensible defaults for terminal output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowTime:   true,
		SummaryMax: 0,
	}
}

func (o FormatterOptions) now() time.Time {
	if o.TimeNowFunc != nil {
		return o.TimeNowFunc()
	}
	return time.Now()
}

// Summary returns a one-line description of the record's payload.
func Summary(rec model.Record) string {
	switch rec.EventType {
	case model.KindTrackChanged:
		if rec.TrackInfo == nil {
			return "(no track)"
		}
		return TrackLine(rec.TrackInfo.Title, rec.TrackInfo.Artist, rec.TrackInfo.Album)
	case model.KindPlaybackStateChanged:
		if rec.PlaybackState != "" {
			return rec.PlaybackState
		}
		if rec.IsPlaying != nil {
			return model.PlaybackStateName(*rec.IsPlaying)
		}
		return "unknown"
	case model.KindPositionChanged:
		if rec.PositionMs == nil {
			return FormatClock(0)
		}
		return FormatClock(*rec.PositionMs)
	case model.KindApplicationChanged:
		if rec.AppName == "" {
			return "(none)"
		}
		return rec.AppName
	default:
		return string(rec.EventType)
	}
}

// TrackLine joins the non-empty parts of a track as "title - artist (album)".
func TrackLine(title, artist, album string) string {
	var sb strings.Builder
	sb.WriteString(title)
	if artist != "" {
		if sb.Len() > 0 {
			sb.WriteString(" - ")
		}
		sb.WriteString(artist)
	}
	if album != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("(" + album + ")")
	}
	if sb.Len() == 0 {
		return "(untitled)"
	}
	return sb.String()
}

// FormatClock renders milliseconds as m:ss, or h:mm:ss past the hour.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
