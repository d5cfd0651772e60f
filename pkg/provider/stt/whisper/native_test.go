package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("")
	if !errors.Is(err, stt.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNative_SilenceYieldsNoText(t *testing.T) {
	n, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer n.Close()

	rec := audio.Recording{PCM: make([]byte, 32000), Format: audio.DictationFormat}
	if _, err := n.Transcribe(context.Background(), rec, "en"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestNative_CancelledContext(t *testing.T) {
	n, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.Transcribe(ctx, audio.Recording{Format: audio.DictationFormat}, "en"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
