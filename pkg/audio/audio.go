// Package audio defines the PCM data types exchanged between a capture source
// and the dictation pipeline, plus helpers for WAV framing and format
// conversion.
//
// All PCM in this package is little-endian signed 16-bit. The dictation
// pipeline runs at [DictationFormat] (16 kHz mono); sources that capture in a
// different format convert before handing frames over.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrNoDevice is returned by [Source.Start] when no capture device is
// available. It blocks a recording session from starting.
var ErrNoDevice = errors.New("audio: no capture device")

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DictationFormat is the format every speech provider receives.
var DictationFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM16 byte rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Valid reports whether f describes a usable stream.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Frame is one chunk of captured audio, produced roughly every 50ms.
// Frames are transient and never persisted.
type Frame struct {
	// Data is PCM16 audio in [DictationFormat].
	Data []byte

	// SampleCount is the number of samples per channel in Data.
	SampleCount int

	// Voiced is the source's voice-activity verdict for this frame.
	Voiced bool
}

// Recording is the complete audio captured during one session.
type Recording struct {
	PCM    []byte
	Format Format
}

// Duration returns the playback length of the recording.
func (r Recording) Duration() time.Duration {
	bps := r.Format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(r.PCM)) * time.Second / time.Duration(bps)
}

// Sink receives capture events. Implementations must be safe to call from the
// capture goroutine and must not block for long.
type Sink interface {
	// FrameAvailable delivers the next captured frame.
	FrameAvailable(f Frame)

	// LevelUpdated reports the peak level of the most recent frame in [0, 1].
	LevelUpdated(peak float64)
}

// Source is a microphone-like capture device.
//
// Start begins delivering frames to sink from a goroutine owned by the
// source. Stop ends capture and returns everything recorded since Start; when
// discard is true the recording is dropped and an empty Recording is returned.
// A Source records one session at a time.
type Source interface {
	Start(ctx context.Context, sink Sink) error
	Stop(discard bool) (Recording, error)
}
