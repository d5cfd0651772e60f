package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// controller is the part of the coordinator driven by stdin.
type controller interface {
	HotkeyDown()
	HotkeyUp()
	StartButton()
	Cancel()
}

// readCommands feeds one-letter commands from r to c until "q", EOF or ctx
// cancellation. Unknown input is logged and ignored.
func readCommands(ctx context.Context, r io.Reader, c controller) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		switch cmd := strings.ToLower(strings.TrimSpace(sc.Text())); cmd {
		case "d", "down":
			c.HotkeyDown()
		case "u", "up":
			c.HotkeyUp()
		case "s", "start":
			c.StartButton()
		case "c", "cancel":
			c.Cancel()
		case "q", "quit":
			return nil
		case "":
		default:
			slog.Warn("unknown command", "input", cmd)
		}
	}
	return sc.Err()
}
