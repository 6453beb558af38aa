package input

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/jmylchreest/medialistener/internal/model"
)

// ReaderSource reads raw updates from a stream of JSON lines.
// Each line is one object; keys that are absent stay unknown.
type ReaderSource struct {
	name   string
	reader io.ReadCloser
	logger *slog.Logger

	mu         sync.Mutex
	cb         func(model.RawUpdate)
	registered bool
	stopped    bool
	done       chan struct{}
}

// NewReaderSource creates a ReaderSource that reads from r.
func NewReaderSource(name string, r io.ReadCloser, logger *slog.Logger) *ReaderSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderSource{
		name:   name,
		reader: r,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// NewStdinSource creates a ReaderSource reading from os.Stdin.
func NewStdinSource(logger *slog.Logger) *ReaderSource {
	return NewReaderSource(KindStdin, io.NopCloser(os.Stdin), logger)
}

// Name returns the source identifier.
func (s *ReaderSource) Name() string {
	return s.name
}

// Register starts reading in the background.
func (s *ReaderSource) Register(cb func(model.RawUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered {
		return &AdapterError{Source: s.name, Message: "source already registered"}
	}
	if cb == nil {
		return &AdapterError{Source: s.name, Message: "callback is required"}
	}
	s.registered = true
	s.cb = cb

	go s.read()
	return nil
}

// Unregister stops delivery and closes the underlying reader.
func (s *ReaderSource) Unregister() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if err := s.reader.Close(); err != nil {
		return &AdapterError{Source: s.name, Message: "failed to close input", Err: err}
	}
	return nil
}

// Done is closed when the reader has reached end of input or been unregistered.
func (s *ReaderSource) Done() <-chan struct{} {
	return s.done
}

func (s *ReaderSource) read() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.reader)
	const maxSize = 10 * 1024 * 1024 // 10MB max
	scanner.Buffer(make([]byte, 64*1024), maxSize)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}

		raw, err := ParseLine(data)
		if err != nil {
			s.logger.Warn("skipping malformed input line", "source", s.name, "line", line, "error", err)
			continue
		}
		if raw.IsEmpty() {
			continue
		}

		if !s.deliver(raw) {
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !s.isStopped() {
		s.logger.Warn("failed to read input", "source", s.name, "error", err)
		return
	}
	if !s.isStopped() {
		s.logger.Info("source reached end of input", "source", s.name, "lines", line)
	}
}

// deliver invokes the callback unless the source has been unregistered.
func (s *ReaderSource) deliver(raw model.RawUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.cb(raw)
	return true
}

func (s *ReaderSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// readerEntry is one line of reader input.
type readerEntry struct {
	App        string  `json:"app"`
	Title      *string `json:"title"`
	Artist     *string `json:"artist"`
	Album      *string `json:"album"`
	DurationMs *int64  `json:"duration_ms"`
	Artwork    *string `json:"artwork"`
	Playing    *bool   `json:"playing"`
	PositionMs *int64  `json:"position_ms"`
	Timestamp  int64   `json:"timestamp,omitempty"`
}

// ParseLine converts one JSON line into a RawUpdate.
func ParseLine(data []byte) (model.RawUpdate, error) {
	var entry readerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.RawUpdate{}, err
	}

	raw := model.RawUpdate{
		App:        sanitizeString(entry.App),
		Playing:    entry.Playing,
		PositionMs: entry.PositionMs,
	}
	if entry.Timestamp > 0 {
		raw.At = time.UnixMilli(entry.Timestamp)
	}

	if entry.Title != nil || entry.Artist != nil || entry.Album != nil ||
		entry.DurationMs != nil || entry.Artwork != nil {
		raw.Track = &model.RawTrack{
			Title:      sanitizeField(entry.Title, sanitizeString),
			Artist:     sanitizeField(entry.Artist, sanitizeString),
			Album:      sanitizeField(entry.Album, sanitizeString),
			DurationMs: entry.DurationMs,
			ArtworkRef: sanitizeField(entry.Artwork, strings.TrimSpace),
		}
	}

	return raw, nil
}

// sanitizeField cleans a supplied value and keeps an absent one absent.
func sanitizeField(s *string, clean func(string) string) *string {
	if s == nil {
		return nil
	}
	return model.String(clean(*s))
}

// sanitizeString trims whitespace and drops control characters.
func sanitizeString(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
