package inject

import (
	"fmt"
	"log/slog"
	"sync"
)

// Injector applies transcript text to a [Surface].
//
// For streaming sessions it keeps two strings: the text currently visible in
// the target and the committed prefix made of finalised segments. Every
// increment is turned into a prefix diff against the visible text so only the
// changed suffix is retyped. The committed prefix is never deleted.
//
// One mutex spans the whole injection (focus, clipboard swap, keystrokes,
// clipboard restore), so overlapping calls are applied strictly in call order
// and only one injection is ever in flight.
type Injector struct {
	mu      sync.Mutex
	surface Surface

	target    Target
	last      string
	committed string

	lastFinal   string
	lastFinalID string
}

// New returns an injector driving surface.
func New(surface Surface) *Injector {
	return &Injector{surface: surface}
}

// Foreground returns the surface's focused target. The coordinator captures it
// when a recording session starts.
func (i *Injector) Foreground() (Target, error) {
	return i.surface.Foreground()
}

// ResetStreamingState clears the visible and committed text and binds
// subsequent increments to target. Called at the start of every streaming
// session.
func (i *Injector) ResetStreamingState(target Target) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.target = target
	i.last = ""
	i.committed = ""
	i.lastFinal = ""
	i.lastFinalID = ""
}

// ApplyIncrement shows committed+segment in the target. When isFinal is set
// the segment becomes part of the committed prefix. State only advances when
// the surface accepted the edit.
//
// A final that repeats the previous final with no interim in between is a
// redelivery and a no-op. When the vendor identifies segments, id must also
// match, so a user saying the same sentence again is still typed. Without an
// id a repeated identical final is indistinguishable from a redelivery and is
// dropped.
func (i *Injector) ApplyIncrement(id, segment string, isFinal bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if isFinal && segment != "" && segment == i.lastFinal && id == i.lastFinalID && i.last == i.committed {
		return nil
	}

	full := i.committed + segment
	if full != i.last {
		if err := i.edit(Diff(i.last, full)); err != nil {
			return err
		}
		i.last = full
	}

	if isFinal {
		i.committed = full
		i.lastFinal = segment
		i.lastFinalID = id
	} else {
		i.lastFinal = ""
		i.lastFinalID = ""
	}
	return nil
}

// CommitCurrentText folds the visible text into the committed prefix. Used
// when a session ends without a final message for its last segment.
func (i *Injector) CommitCurrentText() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.committed = i.last
	i.lastFinal = ""
	i.lastFinalID = ""
}

// Submit presses Enter in the streaming target.
func (i *Injector) Submit() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.surface.Focus(i.target); err != nil {
		return fmt.Errorf("inject: submit: %w", err)
	}
	if err := i.surface.PressEnter(); err != nil {
		return fmt.Errorf("inject: submit: %w", err)
	}
	return nil
}

// InjectText pastes a complete transcript into target, optionally followed by
// Enter. It does not touch the streaming state.
func (i *Injector) InjectText(target Target, text string, pressEnter bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.surface.Focus(target); err != nil {
		return fmt.Errorf("inject: focus: %w", err)
	}
	if err := i.paste(text); err != nil {
		return err
	}
	if pressEnter {
		if err := i.surface.PressEnter(); err != nil {
			return fmt.Errorf("inject: enter: %w", err)
		}
	}
	return nil
}

// Text returns the visible streaming text.
func (i *Injector) Text() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

// Committed returns the committed streaming prefix.
func (i *Injector) Committed() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.committed
}

// edit applies d to the streaming target. Caller holds i.mu.
func (i *Injector) edit(d Delta) error {
	if d.Empty() {
		return nil
	}
	if err := i.surface.Focus(i.target); err != nil {
		return fmt.Errorf("inject: focus: %w", err)
	}
	if d.Delete > 0 {
		if err := i.surface.DeleteBackward(d.Delete); err != nil {
			return fmt.Errorf("inject: delete: %w", err)
		}
	}
	if d.Insert != "" {
		return i.paste(d.Insert)
	}
	return nil
}

// paste swaps text into the clipboard, pastes it and restores the previous
// clipboard contents. Caller holds i.mu.
func (i *Injector) paste(text string) error {
	if text == "" {
		return nil
	}
	backup, backupErr := i.surface.ReadClipboard()
	if backupErr != nil {
		slog.Debug("inject: clipboard backup failed", "err", backupErr)
	}

	if err := i.surface.WriteClipboard(text); err != nil {
		return fmt.Errorf("inject: paste: %w", err)
	}
	pasteErr := i.surface.Paste()

	if backupErr == nil {
		if err := i.surface.WriteClipboard(backup); err != nil {
			slog.Warn("inject: clipboard restore failed", "err", err)
		}
	}
	if pasteErr != nil {
		return fmt.Errorf("inject: paste: %w", pasteErr)
	}
	return nil
}
