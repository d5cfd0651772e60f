// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock records every Start/Stop call and lets the test push frames into
// the registered sink as if they came from a capture device:
//
//	src := &mock.Source{StopResult: audio.Recording{PCM: pcm, Format: audio.DictationFormat}}
//	_ = src.Start(ctx, sink)
//	src.Emit(audio.Frame{Data: chunk, SampleCount: len(chunk) / 2})
//	rec, _ := src.Stop(false)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hotmic/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Safe for concurrent use.
type Source struct {
	mu   sync.Mutex
	sink audio.Sink

	// StartErr is returned by [Source.Start].
	StartErr error

	// StopResult is returned by [Source.Stop] when discard is false.
	StopResult audio.Recording

	// StopErr is returned by [Source.Stop].
	StopErr error

	// StartCalls counts calls to Start.
	StartCalls int

	// StopCalls records the discard argument of every Stop call.
	StopCalls []bool
}

// Start implements [audio.Source].
func (s *Source) Start(_ context.Context, sink audio.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.sink = sink
	return nil
}

// Stop implements [audio.Source].
func (s *Source) Stop(discard bool) (audio.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls = append(s.StopCalls, discard)
	s.sink = nil
	if s.StopErr != nil {
		return audio.Recording{}, s.StopErr
	}
	if discard {
		return audio.Recording{Format: audio.DictationFormat}, nil
	}
	return s.StopResult, nil
}

// Emit delivers f to the sink registered by the last Start. It is a no-op
// while the source is stopped.
func (s *Source) Emit(f audio.Frame) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.FrameAvailable(f)
		sink.LevelUpdated(audio.Peak(f.Data))
	}
}

// Capturing reports whether Start has been called without a matching Stop.
func (s *Source) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

// Stops returns a copy of the recorded Stop arguments.
func (s *Source) Stops() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.StopCalls...)
}

var _ audio.Source = (*Source)(nil)
