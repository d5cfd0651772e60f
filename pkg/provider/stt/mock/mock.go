// Package mock provides test doubles for the stt package interfaces.
//
// Batch returns a canned transcript and records every call. Streaming hands
// out an event channel the test feeds through Push, and records the audio it
// was sent:
//
//	s := &mock.Streaming{}
//	events, _ := s.Start(ctx, "en")
//	s.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "hi"}})
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Batch.Transcribe.
type TranscribeCall struct {
	Recording audio.Recording
	Language  string
}

// Settings records a single UpdateSettings invocation.
type Settings struct {
	APIKey string
	Model  string
}

// Batch is a mock implementation of [stt.BatchTranscriber].
type Batch struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Delay makes Transcribe wait before returning (honouring ctx).
	Delay time.Duration

	// Calls records every Transcribe invocation.
	Calls []TranscribeCall

	// SettingsCalls records every UpdateSettings invocation.
	SettingsCalls []Settings
}

// Transcribe implements [stt.BatchTranscriber].
func (b *Batch) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, TranscribeCall{Recording: rec, Language: language})
	delay, text, err := b.Delay, b.Text, b.Err
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

// UpdateSettings implements [stt.BatchTranscriber].
func (b *Batch) UpdateSettings(apiKey, model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SettingsCalls = append(b.SettingsCalls, Settings{APIKey: apiKey, Model: model})
}

// CallCount returns the number of Transcribe calls so far.
func (b *Batch) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// LastSettings returns the arguments of the most recent UpdateSettings call.
func (b *Batch) LastSettings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.SettingsCalls) == 0 {
		return Settings{}
	}
	return b.SettingsCalls[len(b.SettingsCalls)-1]
}

// Streaming is a mock implementation of [stt.StreamingTranscriber].
type Streaming struct {
	mu     sync.Mutex
	events chan stt.Event

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StopDelay makes Stop keep the session open for that long (honouring
	// ctx) before closing it, like a vendor flushing its last finals.
	StopDelay time.Duration

	// StartCalls records the language of every Start invocation.
	StartCalls []string

	// Audio records every chunk passed to SendAudio while a session was active.
	Audio [][]byte

	// StopCalls and CancelCalls count the respective invocations.
	StopCalls   int
	CancelCalls int

	// SettingsCalls records every UpdateSettings invocation.
	SettingsCalls []Settings
}

// Start implements [stt.StreamingTranscriber]. Like the real adapters it
// refuses to start while a session is still open.
func (s *Streaming) Start(_ context.Context, language string) (<-chan stt.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls = append(s.StartCalls, language)
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.events != nil {
		return nil, errors.New("mock: start: session already active")
	}
	s.events = make(chan stt.Event, 64)
	return s.events, nil
}

// SendAudio implements [stt.StreamingTranscriber].
func (s *Streaming) SendAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return
	}
	s.Audio = append(s.Audio, append([]byte(nil), chunk...))
}

// Stop implements [stt.StreamingTranscriber]. It closes the event channel
// after StopDelay.
func (s *Streaming) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.StopCalls++
	delay := s.StopDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.StopErr
}

// Cancel implements [stt.StreamingTranscriber]. It closes the event channel.
func (s *Streaming) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCalls++
	s.closeLocked()
}

func (s *Streaming) closeLocked() {
	if s.events != nil {
		close(s.events)
		s.events = nil
	}
}

// UpdateSettings implements [stt.StreamingTranscriber].
func (s *Streaming) UpdateSettings(apiKey, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SettingsCalls = append(s.SettingsCalls, Settings{APIKey: apiKey, Model: model})
}

// Push delivers ev on the active session's channel. It reports false when no
// session is active.
func (s *Streaming) Push(ev stt.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return false
	}
	s.events <- ev
	return true
}

// Active reports whether a session is running.
func (s *Streaming) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events != nil
}

// StartCount returns the number of Start calls so far.
func (s *Streaming) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.StartCalls)
}

// AudioChunks returns a copy of the audio received so far.
func (s *Streaming) AudioChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.Audio...)
}

// LastSettings returns the arguments of the most recent UpdateSettings call.
func (s *Streaming) LastSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SettingsCalls) == 0 {
		return Settings{}
	}
	return s.SettingsCalls[len(s.SettingsCalls)-1]
}

var (
	_ stt.BatchTranscriber     = (*Batch)(nil)
	_ stt.StreamingTranscriber = (*Streaming)(nil)
)
