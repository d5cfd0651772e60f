package stt

import (
	"context"
	"fmt"
)

// Unsupported is the streaming adapter of a batch-only vendor. Start always
// fails with [ErrStreamingNotSupported] without touching the network; every
// other method is inert.
type Unsupported struct {
	// Provider names the vendor in the Start error.
	Provider string
}

// Start implements [StreamingTranscriber].
func (u Unsupported) Start(context.Context, string) (<-chan Event, error) {
	return nil, fmt.Errorf("%s: %w", u.Provider, ErrStreamingNotSupported)
}

// SendAudio implements [StreamingTranscriber].
func (Unsupported) SendAudio([]byte) {}

// Stop implements [StreamingTranscriber].
func (Unsupported) Stop(context.Context) error { return nil }

// Cancel implements [StreamingTranscriber].
func (Unsupported) Cancel() {}

// UpdateSettings implements [StreamingTranscriber].
func (Unsupported) UpdateSettings(string, string) {}

var _ StreamingTranscriber = Unsupported{}
