package inject

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal is a [Surface] that renders injections to a writer: backspaces as
// "\b \b", pasted text verbatim and Enter as a newline. It mirrors the text it
// has produced since the last Enter so callers can inspect it.
type Terminal struct {
	mu        sync.Mutex
	w         io.Writer
	clipboard Clipboard
	name      Target
	focused   Target
	line      []rune
}

// TerminalOption configures a [Terminal].
type TerminalOption func(*Terminal)

// WithClipboard replaces the default in-memory clipboard, e.g. with
// [SystemClipboard].
func WithClipboard(c Clipboard) TerminalOption {
	return func(t *Terminal) { t.clipboard = c }
}

// WithTargetName sets the target reported by Foreground. Default: "terminal".
func WithTargetName(name string) TerminalOption {
	return func(t *Terminal) { t.name = Target(name) }
}

// NewTerminal returns a terminal surface writing to w.
func NewTerminal(w io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		w:         w,
		clipboard: &MemoryClipboard{},
		name:      "terminal",
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Foreground implements [Surface].
func (t *Terminal) Foreground() (Target, error) { return t.name, nil }

// Focus implements [Surface]. Only the terminal's own target can be focused.
func (t *Terminal) Focus(target Target) error {
	if target != t.name {
		return fmt.Errorf("inject: focus %q: unknown target", target)
	}
	t.mu.Lock()
	t.focused = target
	t.mu.Unlock()
	return nil
}

// DeleteBackward implements [Surface].
func (t *Terminal) DeleteBackward(n int) error {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.line = t.line[:max(0, len(t.line)-n)]
	_, err := io.WriteString(t.w, strings.Repeat("\b \b", n))
	return err
}

// Paste implements [Surface].
func (t *Terminal) Paste() error {
	text, err := t.clipboard.Read()
	if err != nil {
		return fmt.Errorf("inject: paste: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.line = append(t.line, []rune(text)...)
	_, err = io.WriteString(t.w, text)
	return err
}

// PressEnter implements [Surface].
func (t *Terminal) PressEnter() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.line = t.line[:0]
	_, err := io.WriteString(t.w, "\n")
	return err
}

// ReadClipboard implements [Surface].
func (t *Terminal) ReadClipboard() (string, error) { return t.clipboard.Read() }

// WriteClipboard implements [Surface].
func (t *Terminal) WriteClipboard(text string) error { return t.clipboard.Write(text) }

// Line returns the text typed since the last Enter.
func (t *Terminal) Line() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.line)
}

var _ Surface = (*Terminal)(nil)
