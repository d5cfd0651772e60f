package stt_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

func TestUnsupported_StartAlwaysFails(t *testing.T) {
	t.Parallel()
	u := stt.Unsupported{Provider: "openai"}

	for range 3 {
		ch, err := u.Start(context.Background(), "en")
		if !errors.Is(err, stt.ErrStreamingNotSupported) {
			t.Fatalf("Start err = %v, want ErrStreamingNotSupported", err)
		}
		if ch != nil {
			t.Error("Start returned a non-nil event channel")
		}
		if !strings.Contains(err.Error(), "openai") {
			t.Errorf("error %q does not name the provider", err)
		}
	}

	// Everything else is inert.
	u.SendAudio([]byte{1, 2})
	u.UpdateSettings("key", "model")
	u.Cancel()
	if err := u.Stop(context.Background()); err != nil {
		t.Errorf("Stop = %v, want nil", err)
	}
}

func TestEventTypeString(t *testing.T) {
	t.Parallel()
	cases := map[stt.EventType]string{
		stt.EventTranscript:   "transcript",
		stt.EventUtteranceEnd: "utterance_end",
		stt.EventError:        "error",
		stt.EventType(99):     "unknown",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(typ), got, want)
		}
	}
}
