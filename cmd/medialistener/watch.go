package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/medialistener/internal/adapter/output"
	"github.com/jmylchreest/medialistener/internal/client"
	"github.com/jmylchreest/medialistener/internal/core"
	"github.com/jmylchreest/medialistener/internal/model"
)

var watchOpts struct {
	format    string
	template  string
	count     int
	kinds     []string
	filter    string
	reconnect bool
	noTime    bool
}

// errCountReached stops the stream once --count records were printed.
var errCountReached = errors.New("count reached")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print playback events as they arrive",
	Long: `Connect to the daemon and print every playback event it broadcasts.

Events are only sent while connected; there is no replay of earlier state.

Examples:
  # Human-readable stream
  medialistener watch

  # Raw NDJSON for scripting
  medialistener watch --format json | jq .

  # Only track changes, as plain text
  medialistener watch --kind track_changed --format plain \
    --template '{{.Title}} by {{.Artist}}'

  # Only Spotify track changes by artists starting with "The"
  medialistener watch --filter 'type=track,app=spotify,artist~=^The'

  # Exit after the next 5 events
  medialistener watch --count 5`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOpts.format, "format", "f", "",
		"Output format (pretty, json, yaml, plain; default from config)")
	watchCmd.Flags().StringVar(&watchOpts.template, "template", "",
		"Go template or named template for plain output")
	watchCmd.Flags().IntVarP(&watchOpts.count, "count", "n", 0,
		"Exit after this many events (0=unlimited)")
	watchCmd.Flags().StringSliceVarP(&watchOpts.kinds, "kind", "k", nil,
		"Only print these event types (track, state, position, app or full names)")
	watchCmd.Flags().StringVar(&watchOpts.filter, "filter", "",
		"Filter expression (e.g., 'app=spotify,playing=true', 'position>=1m')")
	watchCmd.Flags().BoolVar(&watchOpts.reconnect, "reconnect", true,
		"Reconnect when the daemon goes away")
	watchCmd.Flags().BoolVar(&watchOpts.noTime, "no-time", false,
		"Hide relative timestamps in pretty output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := getConfig()

	format := watchOpts.format
	if format == "" {
		format = c.Format
	}

	opts := output.DefaultFormatterOptions()
	opts.ShowTime = !watchOpts.noTime
	if output.FormatType(format) == output.FormatPlain {
		opts.Template = c.GetTemplate(watchOpts.template)
	}

	formatter, err := output.NewFormatter(output.FormatType(format), opts)
	if err != nil {
		return err
	}

	filter, err := kindFilter(watchOpts.kinds)
	if err != nil {
		return err
	}
	expr, err := core.ParseFilter(watchOpts.filter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printed := 0
	reconnect := watchOpts.reconnect && c.Reconnect

	err = client.Watch(ctx, c.SocketPath(), reconnect, func(rec model.Record) error {
		if !filter(rec.EventType) || !expr.Match(rec) {
			return nil
		}
		if err := formatter.Format(out, rec); err != nil {
			return err
		}
		printed++
		if watchOpts.count > 0 && printed >= watchOpts.count {
			return errCountReached
		}
		return nil
	}, logger)
	if errors.Is(err, errCountReached) {
		return nil
	}
	return err
}

// kindFilter returns a predicate accepting the named event types, or all
// types when none are given.
func kindFilter(kinds []string) (func(model.EventKind) bool, error) {
	if len(kinds) == 0 {
		return func(model.EventKind) bool { return true }, nil
	}

	want := make(map[model.EventKind]bool, len(kinds))
	for _, k := range kinds {
		kind, err := core.ParseEventKind(k)
		if err != nil {
			return nil, err
		}
		want[kind] = true
	}
	return func(kind model.EventKind) bool { return want[kind] }, nil
}
