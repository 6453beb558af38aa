package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/medialistener/internal/model"
)

// PrettyFormatter formats records as styled, human-readable lines.
type PrettyFormatter struct {
	opts FormatterOptions

	seqStyle   lipgloss.Style
	kindStyles map[model.EventKind]lipgloss.Style
	appStyle   lipgloss.Style
	dimStyle   lipgloss.Style
}

// NewPrettyFormatter creates a new pretty formatter.
func NewPrettyFormatter(opts FormatterOptions) *PrettyFormatter {
	f := &PrettyFormatter{opts: opts}
	if opts.NoColor {
		plain := lipgloss.NewStyle()
		f.seqStyle, f.appStyle, f.dimStyle = plain, plain, plain
		f.kindStyles = map[model.EventKind]lipgloss.Style{}
		return f
	}

	f.seqStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	f.appStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	f.dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	f.kindStyles = map[model.EventKind]lipgloss.Style{
		model.KindTrackChanged:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		model.KindPlaybackStateChanged: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		model.KindPositionChanged:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		model.KindApplicationChanged:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
	return f
}

// kindLabels are the short labels shown for each event kind.
var kindLabels = map[model.EventKind]string{
	model.KindTrackChanged:         "track",
	model.KindPlaybackStateChanged: "state",
	model.KindPositionChanged:      "position",
	model.KindApplicationChanged:   "app",
}

// Format writes rec as a styled line.
func (f *PrettyFormatter) Format(w io.Writer, rec model.Record) error {
	label, ok := kindLabels[rec.EventType]
	if !ok {
		label = string(rec.EventType)
	}

	var parts []string
	parts = append(parts, f.seqStyle.Render(fmt.Sprintf("#%-6s", humanize.Comma(int64(rec.EventNumber)))))
	parts = append(parts, f.kindStyle(rec.EventType).Render(fmt.Sprintf("%-8s", label)))
	if rec.AppName != "" {
		parts = append(parts, f.appStyle.Render(rec.AppName))
	}
	parts = append(parts, truncate(f.detail(rec), f.opts.SummaryMax))
	if f.opts.ShowTime && !rec.Timestamp.IsZero() {
		parts = append(parts, f.dimStyle.Render(humanize.RelTime(rec.Timestamp, f.opts.now(), "ago", "from now")))
	}

	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

func (f *PrettyFormatter) kindStyle(kind model.EventKind) lipgloss.Style {
	if style, ok := f.kindStyles[kind]; ok {
		return style
	}
	return f.dimStyle
}

// detail extends Summary with the track duration when known.
func (f *PrettyFormatter) detail(rec model.Record) string {
	s := Summary(rec)
	if rec.EventType == model.KindTrackChanged && rec.TrackInfo != nil && rec.TrackInfo.DurationMs != nil {
		s += " [" + FormatClock(*rec.TrackInfo.DurationMs) + "]"
	}
	return s
}
