package coordinator

import "log/slog"

// Events receives the coordinator's UI notifications. Except for
// AudioLevelChanged, which comes from the capture goroutine, every method is
// called from the coordinator's own goroutine. Implementations must not
// block.
type Events interface {
	// StateChanged reports every state transition.
	StateChanged(from, to State)

	// StatusChanged carries a short human-readable status line.
	StatusChanged(status string)

	// TranscriptChanged carries the primary provider's transcript for the
	// current session: the visible streaming text or a batch result.
	TranscriptChanged(text string, isFinal bool)

	// ProviderTranscriptChanged carries each provider's own text, which
	// differs from TranscriptChanged only in test mode.
	ProviderTranscriptChanged(provider, text string)

	// RecordingStateChanged reports capture starting and stopping.
	RecordingStateChanged(recording bool)

	// SendingStateChanged reports whether batch requests are in flight.
	SendingStateChanged(sending bool)

	// AudioLevelChanged carries the input peak level in [0,1].
	AudioLevelChanged(peak float64)
}

// NopEvents discards every notification.
type NopEvents struct{}

func (NopEvents) StateChanged(State, State)                {}
func (NopEvents) StatusChanged(string)                     {}
func (NopEvents) TranscriptChanged(string, bool)           {}
func (NopEvents) ProviderTranscriptChanged(string, string) {}
func (NopEvents) RecordingStateChanged(bool)               {}
func (NopEvents) SendingStateChanged(bool)                 {}
func (NopEvents) AudioLevelChanged(float64)                {}

// LogEvents writes notifications to a structured logger. Audio levels are
// logged at Debug.
type LogEvents struct {
	Logger *slog.Logger
}

func (e LogEvents) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e LogEvents) StateChanged(from, to State) {
	e.log().Debug("state changed", "from", from, "to", to)
}

func (e LogEvents) StatusChanged(status string) {
	e.log().Info("status", "status", status)
}

func (e LogEvents) TranscriptChanged(text string, isFinal bool) {
	e.log().Info("transcript", "text", text, "final", isFinal)
}

func (e LogEvents) ProviderTranscriptChanged(provider, text string) {
	e.log().Debug("provider transcript", "provider", provider, "text", text)
}

func (e LogEvents) RecordingStateChanged(recording bool) {
	e.log().Debug("recording state", "recording", recording)
}

func (e LogEvents) SendingStateChanged(sending bool) {
	e.log().Debug("sending state", "sending", sending)
}

func (e LogEvents) AudioLevelChanged(peak float64) {
	e.log().Debug("audio level", "peak", peak)
}

var (
	_ Events = NopEvents{}
	_ Events = LogEvents{}
)
