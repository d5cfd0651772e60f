// Package inject types transcripts into whichever application had focus when
// a recording started.
//
// The [Injector] owns the streaming injection state and turns every interim
// or final segment into the smallest edit of the visible text. The actual
// focus switching, clipboard access and keystrokes are delegated to a
// [Surface].
package inject

// Target identifies the window or field text is injected into. It is opaque
// to everything except the [Surface] that produced it.
type Target string

// Surface performs the platform side of injection.
//
// Text is inserted by pasting: the injector writes it to the clipboard and
// calls Paste, restoring the user's clipboard afterwards.
type Surface interface {
	// Foreground returns the currently focused target.
	Foreground() (Target, error)

	// Focus brings t back to the foreground.
	Focus(t Target) error

	// DeleteBackward sends n backspaces.
	DeleteBackward(n int) error

	// Paste pastes the current clipboard contents.
	Paste() error

	// PressEnter sends a single Enter key.
	PressEnter() error

	ReadClipboard() (string, error)
	WriteClipboard(text string) error
}
