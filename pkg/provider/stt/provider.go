// Package stt defines the two capability interfaces every speech-to-text
// vendor adapter implements: BatchTranscriber for one-shot transcription of a
// finished recording and StreamingTranscriber for live sessions that emit
// interim and final results while audio is still flowing.
//
// Adapters are long-lived: one instance per vendor is registered at startup
// and reused for every recording session. Credentials and model are pushed in
// between sessions via UpdateSettings, never mid-session.
//
// Vendors without a streaming API register [Unsupported] as their streaming
// adapter so callers can treat every provider uniformly.
package stt

import (
	"context"

	"github.com/MrWong99/hotmic/pkg/audio"
)

// BatchTranscriber transcribes a complete recording in one job.
//
// Implementations must be safe for concurrent use; a fan-out run may call
// Transcribe on the same adapter while an earlier batch is still in flight.
type BatchTranscriber interface {
	// Transcribe returns the plain-text transcript of rec. language is a
	// BCP-47 code; an empty string lets the vendor auto-detect.
	//
	// Non-2xx vendor responses are returned as *job.StatusError. Transport
	// failures wrap [ErrTransport].
	Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error)

	// UpdateSettings replaces the API key and model used by subsequent calls.
	UpdateSettings(apiKey, model string)
}

// StreamingTranscriber runs at most one live transcription session at a time.
//
// Lifecycle: Start → SendAudio* → Stop, or Cancel from any point. After Stop
// or Cancel returns the adapter may be started again.
type StreamingTranscriber interface {
	// Start connects to the vendor and returns the session's event channel.
	// The channel is closed once the session is torn down. Connect failures
	// are returned and leave the adapter idle.
	Start(ctx context.Context, language string) (<-chan Event, error)

	// SendAudio queues a PCM16 chunk in [audio.DictationFormat]. It is
	// best-effort: failures are logged and swallowed, and chunks sent
	// outside an active session are dropped.
	SendAudio(chunk []byte)

	// Stop signals end of audio, waits up to the adapter's finalize timeout
	// (or ctx) for remaining results and tears the session down.
	Stop(ctx context.Context) error

	// Cancel tears the session down without waiting for results. It never
	// blocks on I/O and is a no-op when no session is active.
	Cancel()

	// UpdateSettings replaces the API key and model used by the next Start.
	UpdateSettings(apiKey, model string)
}

// EventType discriminates [Event] values.
type EventType int

const (
	// EventTranscript carries an interim or final transcript segment.
	EventTranscript EventType = iota

	// EventUtteranceEnd signals that the vendor detected the end of an
	// utterance without (or after) a final transcript.
	EventUtteranceEnd

	// EventError carries a failure reported by the vendor or the transport.
	// Transport failures are followed by teardown and channel close.
	EventError
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventTranscript:
		return "transcript"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Transcript is one normalised streaming result.
type Transcript struct {
	// Text is the segment's current text. Interim results for the same
	// segment supersede each other; a final result fixes it.
	Text string

	// IsFinal marks the segment as stable.
	IsFinal bool

	// SpeechFinal marks the end of a spoken phrase (endpointing).
	SpeechFinal bool

	// SegmentID identifies the segment within the session when the vendor
	// reports it (Deepgram's start offset, AssemblyAI's turn order). Empty
	// when unknown.
	SegmentID string
}

// Event is delivered on the channel returned by [StreamingTranscriber.Start].
type Event struct {
	Type       EventType
	Transcript Transcript
	Err        error
}
