package tui

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jmylchreest/medialistener/internal/config"
)

// copyText copies text to the system clipboard.
func copyText(text string, cfg *config.Config) error {
	cmd := detectClipboardCommand(cfg, exec.LookPath)
	if cmd == "" {
		return fmt.Errorf("no clipboard command available")
	}

	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return fmt.Errorf("invalid clipboard command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := exec.CommandContext(ctx, parts[0], parts[1:]...)
	c.Stdin = strings.NewReader(text)

	return c.Run()
}

// detectClipboardCommand returns the clipboard command to use.
func detectClipboardCommand(cfg *config.Config, lookPath func(string) (string, error)) string {
	if cfg != nil && cfg.Clipboard.Command != "" {
		return cfg.Clipboard.Command
	}

	candidates := []struct {
		bin string
		cmd string
	}{
		{"wl-copy", "wl-copy"},                  // Wayland
		{"xclip", "xclip -selection clipboard"}, // X11
		{"xsel", "xsel --clipboard --input"},    // X11
	}
	for _, c := range candidates {
		if _, err := lookPath(c.bin); err == nil {
			return c.cmd
		}
	}

	return ""
}
