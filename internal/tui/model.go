// Package tui provides the BubbleTea-based now-playing view.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/medialistener/internal/adapter/output"
	"github.com/jmylchreest/medialistener/internal/client"
	"github.com/jmylchreest/medialistener/internal/config"
	"github.com/jmylchreest/medialistener/internal/model"
)

const tickInterval = 500 * time.Millisecond

// Model is the main TUI model.
type Model struct {
	// Configuration
	cfg    *config.Config
	socket string

	// Components
	progress progress.Model
	help     help.Model
	keys     KeyMap

	// State
	state       NowPlaying
	history     []model.Record
	showHistory bool
	connected   bool
	connErr     error
	width       int
	height      int
	ready       bool

	// Status message
	statusMsg string
	statusErr bool

	// Stream messages from the daemon connection.
	msgs <-chan tea.Msg
	now  func() time.Time
}

type recordMsg struct {
	rec model.Record
}

type connMsg struct {
	connected bool
	err       error
}

type streamEndedMsg struct {
	err error
}

type tickMsg time.Time

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	err error
}

// New creates a new TUI model reading stream messages from msgs.
func New(cfg *config.Config, socket string, msgs <-chan tea.Msg) Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	p := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	h := help.New()
	h.ShowAll = false

	return Model{
		cfg:         cfg,
		socket:      socket,
		progress:    p,
		help:        h,
		keys:        DefaultKeyMap(),
		showHistory: cfg.TUI.HistoryLines > 0,
		msgs:        msgs,
		now:         time.Now,
	}
}

// Init starts listening for stream messages and the clock tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForMsg, tick())
}

// waitForMsg blocks until the connection goroutine has something to report.
func (m Model) waitForMsg() tea.Msg {
	if m.msgs == nil {
		return nil
	}
	msg, ok := <-m.msgs
	if !ok {
		return streamEndedMsg{}
	}
	return msg
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.progress.Width = max(10, msg.Width-4)
		m.help.Width = msg.Width
		return m, nil

	case recordMsg:
		m.state.Apply(msg.rec, m.now())
		m.addHistory(msg.rec)
		return m, m.waitForMsg

	case connMsg:
		m.connected = msg.connected
		if msg.connected {
			m.connErr = nil
		} else {
			m.connErr = msg.err
		}
		return m, m.waitForMsg

	case streamEndedMsg:
		m.connected = false
		if msg.err != nil {
			m.connErr = msg.err
			m.statusMsg = "Stream ended: " + msg.err.Error()
			m.statusErr = true
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Copy failed: " + msg.err.Error(), isErr: true}
			}
		}
		return m, func() tea.Msg {
			return statusMsg{text: "Copied to clipboard", isErr: false}
		}
	}

	return m, nil
}

// addHistory appends rec, keeping at most HistoryLines records.
func (m *Model) addHistory(rec model.Record) {
	limit := m.cfg.TUI.HistoryLines
	if limit <= 0 {
		return
	}
	m.history = append(m.history, rec)
	if len(m.history) > limit {
		m.history = append([]model.Record(nil), m.history[len(m.history)-limit:]...)
	}
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.ToggleHistory):
		m.showHistory = !m.showHistory
		return m, nil

	case key.Matches(msg, m.keys.ClearHistory):
		m.history = nil
		return m, nil

	case key.Matches(msg, m.keys.CopyTrack):
		if !m.state.HasTrack() {
			return m, func() tea.Msg {
				return statusMsg{text: "Nothing playing", isErr: true}
			}
		}
		return m, m.copyToClipboard(output.TrackLine(m.state.Title, m.state.Artist, m.state.Album))

	case key.Matches(msg, m.keys.CopyAllJSON):
		data, err := json.MarshalIndent(m.history, "", "  ")
		if err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Failed to marshal JSON: " + err.Error(), isErr: true}
			}
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.CopyAllYAML):
		data, err := yaml.Marshal(m.history)
		if err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Failed to marshal YAML: " + err.Error(), isErr: true}
			}
		}
		return m, m.copyToClipboard(string(data))
	}

	return m, nil
}

// copyToClipboard copies text to the system clipboard.
func (m Model) copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		err := copyText(text, m.cfg)
		return copyResultMsg{err: err}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.viewHeader())
	sections = append(sections, m.viewNowPlaying())
	if m.showHistory && len(m.history) > 0 {
		sections = append(sections, m.viewHistory())
	}
	sections = append(sections, m.viewFooter())

	return strings.Join(sections, "\n\n")
}

func (m Model) viewHeader() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))
	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("● connected")
	if !m.connected {
		text := "○ disconnected"
		if m.connErr != nil {
			text += ": " + m.connErr.Error()
		}
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(text)
	}

	header := titleStyle.Render("media-listener") + "  " + status + "  " + dimStyle.Render(m.socket)
	if m.state.Missed > 0 {
		header += "  " + dimStyle.Render(fmt.Sprintf("(%d missed)", m.state.Missed))
	}
	return header
}

func (m Model) viewNowPlaying() string {
	appStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("13"))
	trackStyle := lipgloss.NewStyle().
		Bold(true)
	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	if m.state.App == "" && !m.state.HasTrack() {
		return labelStyle.Render("Nothing playing")
	}

	var lines []string
	if m.state.App != "" {
		lines = append(lines, appStyle.Render(m.state.App))
	}

	title := m.state.Title
	if title == "" {
		title = "(untitled)"
	}
	lines = append(lines, trackStyle.Render(title))

	var sub []string
	if m.state.Artist != "" {
		sub = append(sub, m.state.Artist)
	}
	if m.state.Album != "" {
		sub = append(sub, m.state.Album)
	}
	if len(sub) > 0 {
		lines = append(lines, strings.Join(sub, " · "))
	}

	now := m.now()
	icon := "⏸ paused"
	if m.state.Playing {
		icon = "▶ playing"
	}
	clock := output.FormatClock(m.state.Elapsed(now))
	if m.state.DurationMs != nil {
		clock += " / " + output.FormatClock(*m.state.DurationMs)
	}
	lines = append(lines, icon+"   "+labelStyle.Render(clock))

	if m.cfg.TUI.ShowProgress && m.state.DurationMs != nil {
		lines = append(lines, m.progress.ViewAs(m.state.Progress(now)))
	}

	return strings.Join(lines, "\n")
}

func (m Model) viewHistory() string {
	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	var sb strings.Builder
	sb.WriteString(sectionStyle.Render("History"))

	opts := output.DefaultFormatterOptions()
	opts.ShowTime = false
	opts.SummaryMax = max(20, m.width-30)
	f := output.NewPrettyFormatter(opts)
	for _, rec := range m.history {
		sb.WriteString("\n")
		var line strings.Builder
		if err := f.Format(&line, rec); err != nil {
			continue
		}
		sb.WriteString(strings.TrimRight(line.String(), "\n"))
	}
	return sb.String()
}

func (m Model) viewFooter() string {
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		return statusStyle.Render(m.statusMsg)
	}
	if !m.cfg.TUI.ShowHelp {
		return ""
	}
	return m.help.View(m.keys)
}

// RunOptions configures the TUI.
type RunOptions struct {
	Config    *config.Config
	Socket    string
	Reconnect bool
	Logger    *slog.Logger
}

// Run connects to the daemon and starts the TUI.
func Run(opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	socket := opts.Socket
	if socket == "" {
		socket = cfg.SocketPath()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan tea.Msg, 64)
	go stream(ctx, socket, opts.Reconnect, msgs, opts.Logger)

	p := tea.NewProgram(New(cfg, socket, msgs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// stream forwards records and connection changes from the daemon to msgs
// until ctx is cancelled.
func stream(ctx context.Context, socket string, reconnect bool, msgs chan<- tea.Msg, logger *slog.Logger) {
	send := func(msg tea.Msg) bool {
		select {
		case msgs <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := client.WatchWithStatus(ctx, socket, reconnect,
		func(rec model.Record) error {
			if !send(recordMsg{rec: rec}) {
				return ctx.Err()
			}
			return nil
		},
		func(connected bool, err error) {
			send(connMsg{connected: connected, err: err})
		},
		logger)
	send(streamEndedMsg{err: err})
}
