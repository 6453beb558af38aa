// Package input provides media state sources that feed the daemon.
package input

import (
	"log/slog"
	"os"
	"time"

	"github.com/jmylchreest/medialistener/internal/dbus"
	"github.com/jmylchreest/medialistener/internal/model"
)

// Source kinds accepted by NewSource.
const (
	KindMPRIS = "mpris"
	KindStdin = "stdin"
	KindFile  = "file"
)

// ValidKinds returns all source kinds.
func ValidKinds() []string {
	return []string{KindMPRIS, KindStdin, KindFile}
}

// Source delivers raw media state updates through a registered callback.
// Callbacks are delivered from a single goroutine, in the order the
// platform produced them.
type Source interface {
	// Name returns the source identifier (e.g., "mpris", "stdin").
	Name() string

	// Register installs cb and starts delivery. It must be called at most once.
	Register(cb func(model.RawUpdate)) error

	// Unregister stops delivery. No callback runs after it returns.
	Unregister() error
}

// Options configures NewSource.
type Options struct {
	Kind             string
	Path             string
	Player           string
	PositionInterval time.Duration
	Logger           *slog.Logger
}

// NewSource creates the Source for the given options.
// If Kind is empty, the MPRIS source is used.
func NewSource(opts Options) (Source, error) {
	switch opts.Kind {
	case "", KindMPRIS:
		return dbus.NewMPRISSource(dbus.MPRISOptions{
			Player:           opts.Player,
			PositionInterval: opts.PositionInterval,
		}, opts.Logger), nil
	case KindStdin:
		return NewStdinSource(opts.Logger), nil
	case KindFile:
		if opts.Path == "" {
			return nil, &AdapterError{
				Source:  KindFile,
				Message: "file source requires a path",
			}
		}
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, &AdapterError{
				Source:  KindFile,
				Message: "failed to open " + opts.Path,
				Err:     err,
			}
		}
		return NewReaderSource(KindFile, f, opts.Logger), nil
	default:
		return nil, &AdapterError{
			Source:  opts.Kind,
			Message: "unknown or unavailable source",
		}
	}
}

// AdapterError represents a source-related error.
type AdapterError struct {
	Source  string
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
