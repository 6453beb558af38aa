package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/medialistener/internal/tui"
)

var tuiOpts struct {
	noReconnect bool
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive now-playing view",
	Long: `Launch the interactive terminal user interface showing what is playing.

The TUI provides:
  - Current application, track and playback state
  - Progress bar advancing between position updates
  - Recent event history
  - Copy to clipboard support
  - Automatic reconnection when the daemon restarts

Key bindings:
  h           Toggle event history
  x           Clear event history
  c           Copy "title - artist (album)" to clipboard
  C           Copy history as JSON
  alt+c       Copy history as YAML
  ?           Show help
  q           Quit`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().BoolVar(&tuiOpts.noReconnect, "no-reconnect", false,
		"Exit the stream instead of reconnecting when the daemon goes away")
}

func runTUI(cmd *cobra.Command, args []string) error {
	c := getConfig()

	// The TUI owns the terminal, so logs are only kept when verbose.
	tuiLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if globalOpts.verbose {
		tuiLogger = logger
	}

	return tui.Run(tui.RunOptions{
		Config:    c,
		Socket:    c.SocketPath(),
		Reconnect: c.Reconnect && !tuiOpts.noReconnect,
		Logger:    tuiLogger,
	})
}
