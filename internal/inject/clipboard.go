package inject

import (
	"sync"

	"github.com/atotto/clipboard"
)

// Clipboard is a text clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// SystemClipboard is the operating system clipboard. On Linux it needs one of
// xclip, xsel or wl-clipboard on PATH.
type SystemClipboard struct{}

// Read implements [Clipboard].
func (SystemClipboard) Read() (string, error) { return clipboard.ReadAll() }

// Write implements [Clipboard].
func (SystemClipboard) Write(text string) error { return clipboard.WriteAll(text) }

// MemoryClipboard is a process-local clipboard.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

// Read implements [Clipboard].
func (c *MemoryClipboard) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

// Write implements [Clipboard].
func (c *MemoryClipboard) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

var (
	_ Clipboard = SystemClipboard{}
	_ Clipboard = (*MemoryClipboard)(nil)
)
