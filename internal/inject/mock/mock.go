// Package mock provides a recording [inject.Surface] for tests.
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/hotmic/internal/inject"
)

// Op is one recorded surface operation.
type Op struct {
	Kind string // "focus", "delete", "paste", "enter"
	Arg  string
}

// String implements fmt.Stringer.
func (o Op) String() string { return o.Kind + "(" + o.Arg + ")" }

// Surface records every operation and keeps a per-target text buffer so tests
// can assert on the visible result.
type Surface struct {
	mu sync.Mutex

	// Target is returned by Foreground. Defaults to "window-1".
	Target inject.Target

	// ForegroundErr, FocusErr and PasteErr are returned by the matching calls.
	ForegroundErr error
	FocusErr      error
	PasteErr      error

	// Ops records every focus, delete, paste and enter in call order.
	Ops []Op

	clipboard string
	focused   inject.Target
	texts     map[inject.Target][]rune
}

// Foreground implements [inject.Surface].
func (s *Surface) Foreground() (inject.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForegroundErr != nil {
		return "", s.ForegroundErr
	}
	if s.Target == "" {
		return "window-1", nil
	}
	return s.Target, nil
}

// Focus implements [inject.Surface].
func (s *Surface) Focus(t inject.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FocusErr != nil {
		return s.FocusErr
	}
	s.focused = t
	s.Ops = append(s.Ops, Op{Kind: "focus", Arg: string(t)})
	return nil
}

// DeleteBackward implements [inject.Surface].
func (s *Surface) DeleteBackward(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, Op{Kind: "delete", Arg: fmt.Sprint(n)})
	cur := s.text(s.focused)
	s.texts[s.focused] = cur[:max(0, len(cur)-n)]
	return nil
}

// Paste implements [inject.Surface].
func (s *Surface) Paste() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PasteErr != nil {
		return s.PasteErr
	}
	s.Ops = append(s.Ops, Op{Kind: "paste", Arg: s.clipboard})
	s.texts[s.focused] = append(s.text(s.focused), []rune(s.clipboard)...)
	return nil
}

// PressEnter implements [inject.Surface].
func (s *Surface) PressEnter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, Op{Kind: "enter"})
	s.texts[s.focused] = append(s.text(s.focused), '\n')
	return nil
}

// ReadClipboard implements [inject.Surface].
func (s *Surface) ReadClipboard() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard, nil
}

// WriteClipboard implements [inject.Surface].
func (s *Surface) WriteClipboard(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboard = text
	return nil
}

// SetClipboard seeds the clipboard contents.
func (s *Surface) SetClipboard(text string) { _ = s.WriteClipboard(text) }

// Clipboard returns the current clipboard contents.
func (s *Surface) Clipboard() string {
	text, _ := s.ReadClipboard()
	return text
}

// Text returns everything typed into t.
func (s *Surface) Text(t inject.Target) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text(t))
}

// Recorded returns a copy of the operations recorded so far.
func (s *Surface) Recorded() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.Ops...)
}

func (s *Surface) text(t inject.Target) []rune {
	if s.texts == nil {
		s.texts = make(map[inject.Target][]rune)
	}
	return s.texts[t]
}

var _ inject.Surface = (*Surface)(nil)
