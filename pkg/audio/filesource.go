package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	defaultFrameInterval  = 50 * time.Millisecond
	defaultVoiceThreshold = 0.01
)

// FileSource is a [Source] that replays a WAV file in real time, looping at
// the end. It stands in for a microphone in headless deployments and tests.
type FileSource struct {
	pcm      []byte
	interval time.Duration
	voiceRMS float64

	mu       sync.Mutex
	recorded []byte
	cancel   context.CancelFunc
	done     chan struct{}
}

// FileSourceOption configures a [FileSource].
type FileSourceOption func(*FileSource)

// WithFrameInterval sets the frame cadence. Default: 50ms.
func WithFrameInterval(d time.Duration) FileSourceOption {
	return func(s *FileSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithVoiceThreshold sets the normalised RMS above which a frame is flagged
// as voiced. Default: 0.01.
func WithVoiceThreshold(rms float64) FileSourceOption {
	return func(s *FileSource) { s.voiceRMS = rms }
}

// OpenFileSource reads the WAV file at path and converts it to
// [DictationFormat]. A missing file is reported as [ErrNoDevice].
func OpenFileSource(path string, opts ...FileSourceOption) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("audio: open %q: %w", path, ErrNoDevice)
		}
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	rec, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	return NewFileSource(Convert(rec.PCM, rec.Format, DictationFormat), opts...), nil
}

// NewFileSource creates a source replaying pcm, which must already be in
// [DictationFormat].
func NewFileSource(pcm []byte, opts ...FileSourceOption) *FileSource {
	s := &FileSource{
		pcm:      pcm,
		interval: defaultFrameInterval,
		voiceRMS: defaultVoiceThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start implements [Source].
func (s *FileSource) Start(ctx context.Context, sink Sink) error {
	if len(s.pcm) < 2 {
		return fmt.Errorf("audio: start: %w", ErrNoDevice)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("audio: start: already capturing")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.recorded = nil
	go s.run(ctx, sink, s.done)
	return nil
}

func (s *FileSource) run(ctx context.Context, sink Sink, done chan struct{}) {
	defer close(done)

	frameBytes := DictationFormat.BytesPerSecond() * int(s.interval/time.Millisecond) / 1000
	frameBytes &^= 1
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		end := min(pos+frameBytes, len(s.pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, s.pcm[pos:end])
		pos = end
		if pos >= len(s.pcm) {
			pos = 0
		}

		s.mu.Lock()
		s.recorded = append(s.recorded, chunk...)
		s.mu.Unlock()

		sink.FrameAvailable(Frame{
			Data:        chunk,
			SampleCount: len(chunk) / 2,
			Voiced:      RMS(chunk) >= s.voiceRMS,
		})
		sink.LevelUpdated(Peak(chunk))
	}
}

// Stop implements [Source]. It waits for the replay goroutine to exit so no
// frame is delivered after Stop returns.
func (s *FileSource) Stop(discard bool) (Recording, error) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return Recording{Format: DictationFormat}, nil
	}
	cancel()
	<-done

	s.mu.Lock()
	pcm := s.recorded
	s.recorded = nil
	s.mu.Unlock()

	if discard {
		return Recording{Format: DictationFormat}, nil
	}
	slog.Debug("audio: file source stopped", "bytes", len(pcm))
	return Recording{PCM: pcm, Format: DictationFormat}, nil
}

var _ Source = (*FileSource)(nil)
