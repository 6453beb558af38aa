package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/medialistener/internal/adapter/output"
	"github.com/jmylchreest/medialistener/internal/client"
	"github.com/jmylchreest/medialistener/internal/model"
	"github.com/jmylchreest/medialistener/internal/tui"
)

var statusOpts struct {
	maxLen    int
	positions bool
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Tooltip    string `json:"tooltip,omitempty"`
	Class      string `json:"class,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Stream Waybar-compatible JSON status",
	Long: `Stream now-playing status in Waybar's custom module JSON format.

One JSON line is written whenever the playback state changes. This is
designed to be used with Waybar's continuous custom module:

  "custom/media": {
    "exec": "medialistener status",
    "return-type": "json",
    "on-click": "medialistener tui"
  }

The output includes:
  - text: "title - artist", truncated to --max-length
  - alt: playing, paused or stopped
  - tooltip: application, album and position
  - class: same as alt, for CSS styling
  - percentage: track progress when the duration is known`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusOpts.maxLen, "max-length", 40,
		"Maximum text length (0=unlimited)")
	statusCmd.Flags().BoolVar(&statusOpts.positions, "positions", false,
		"Also emit a line for every position update")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := getConfig()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if err := writeStatus(out, buildStatus(tui.NowPlaying{}, time.Now(), statusOpts.maxLen)); err != nil {
		return err
	}

	var state tui.NowPlaying
	return client.WatchWithStatus(ctx, c.SocketPath(), true,
		func(rec model.Record) error {
			state.Apply(rec, time.Now())
			if rec.EventType == model.KindPositionChanged && !statusOpts.positions {
				return nil
			}
			return writeStatus(out, buildStatus(state, time.Now(), statusOpts.maxLen))
		},
		func(connected bool, err error) {
			if !connected {
				state = tui.NowPlaying{}
				_ = writeStatus(out, buildStatus(state, time.Now(), statusOpts.maxLen))
			}
		},
		logger)
}

// buildStatus renders the playback state as a Waybar status.
func buildStatus(state tui.NowPlaying, now time.Time, maxLen int) WaybarStatus {
	if !state.HasTrack() && state.App == "" {
		return WaybarStatus{Text: "", Alt: "stopped", Class: "stopped", Tooltip: "Nothing playing"}
	}

	class := "paused"
	if state.Playing {
		class = "playing"
	}

	text := output.TrackLine(state.Title, state.Artist, "")
	if !state.HasTrack() {
		text = state.App
	}
	if maxLen > 0 {
		if r := []rune(text); len(r) > maxLen {
			text = string(r[:max(0, maxLen-1)]) + "…"
		}
	}

	tooltip := fmt.Sprintf("%s\n%s", state.App, output.TrackLine(state.Title, state.Artist, state.Album))
	position := output.FormatClock(state.Elapsed(now))
	if state.DurationMs != nil {
		position += " / " + output.FormatClock(*state.DurationMs)
	}
	tooltip += "\n" + position

	return WaybarStatus{
		Text:       text,
		Alt:        class,
		Tooltip:    tooltip,
		Class:      class,
		Percentage: int(state.Progress(now) * 100),
	}
}

func writeStatus(w io.Writer, status WaybarStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
