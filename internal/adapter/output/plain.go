package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/medialistener/internal/model"
)

// PlainFormatter formats records as one line of text each.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter. An empty template
// falls back to a fixed layout.
func NewPlainFormatter(opts FormatterOptions) (*PlainFormatter, error) {
	f := &PlainFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(f.templateFuncs()).Parse(opts.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template: %w", err)
		}
		f.template = tmpl
	}

	return f, nil
}

// templateData provides data for plain templates.
type templateData struct {
	model.Record
	Summary  string
	Title    string
	Artist   string
	Album    string
	Duration string
	Playing  bool
	Position string
	Time     string
}

func newTemplateData(rec model.Record) templateData {
	d := templateData{
		Record:  rec,
		Summary: Summary(rec),
		Time:    rec.Timestamp.Local().Format(time.TimeOnly),
	}
	if rec.TrackInfo != nil {
		d.Title = rec.TrackInfo.Title
		d.Artist = rec.TrackInfo.Artist
		d.Album = rec.TrackInfo.Album
		if rec.TrackInfo.DurationMs != nil {
			d.Duration = FormatClock(*rec.TrackInfo.DurationMs)
		}
	}
	if rec.IsPlaying != nil {
		d.Playing = *rec.IsPlaying
	}
	if rec.PositionMs != nil {
		d.Position = FormatClock(*rec.PositionMs)
	}
	return d
}

// Format writes rec as plain text.
func (f *PlainFormatter) Format(w io.Writer, rec model.Record) error {
	if f.template != nil {
		var sb strings.Builder
		if err := f.template.Execute(&sb, newTemplateData(rec)); err != nil {
			return fmt.Errorf("failed to render template: %w", err)
		}
		line := strings.TrimRight(sb.String(), "\n")
		_, err := fmt.Fprintln(w, line)
		return err
	}

	app := rec.AppName
	if app == "" {
		app = "-"
	}
	summary := truncate(Summary(rec), f.opts.SummaryMax)
	_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rec.EventNumber, rec.EventType, app, summary)
	return err
}

// templateFuncs returns template helper functions.
func (f *PlainFormatter) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": func(s string, maxLen int) string {
			return truncate(s, maxLen)
		},
		"clock": func(ms int64) string {
			return FormatClock(ms)
		},
		"reltime": func(t time.Time) string {
			return humanize.RelTime(t, f.opts.now(), "ago", "from now")
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
}
