package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/medialistener/internal/model"
)

// JSONFormatter formats records as newline-delimited JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Format writes rec as one JSON document.
func (f *JSONFormatter) Format(w io.Writer, rec model.Record) error {
	encoder := json.NewEncoder(w)
	if f.opts.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(rec)
}
