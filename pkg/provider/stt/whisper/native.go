// This file contains the Native adapter backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.BatchTranscriber.
var _ stt.BatchTranscriber = (*Native)(nil)

// Native implements stt.BatchTranscriber using the whisper.cpp Go bindings,
// eliminating HTTP overhead entirely. The model is loaded once and shared;
// each Transcribe call creates its own context, so calls may overlap.
type Native struct {
	model whisperlib.Model

	mu        sync.Mutex
	modelPath string
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the adapter is no longer needed.
func NewNative(modelPath string) (*Native, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: %w: model path must not be empty", stt.ErrConfiguration)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Native{model: model, modelPath: modelPath}, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// UpdateSettings implements stt.BatchTranscriber. Swapping models requires
// a restart; a differing model is logged and ignored.
func (n *Native) UpdateSettings(_, model string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if model != "" && model != n.modelPath {
		slog.Warn("whisper: model change requires restart", "loaded", n.modelPath, "requested", model)
	}
}

// Transcribe implements stt.BatchTranscriber.
func (n *Native) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pcm := audio.Convert(rec.PCM, rec.Format, audio.DictationFormat)
	samples := audio.Float32(pcm)

	// Contexts are not thread-safe; the model is.
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
