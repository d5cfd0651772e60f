package coordinator

// State is the coordinator's recording mode.
type State int

const (
	// Idle means no recording is active.
	Idle State = iota

	// HybridPending is the decision window after hotkey-down: audio is
	// captured and buffered until either hotkey-up (batch) or the hybrid
	// timer (streaming) wins.
	HybridPending

	// BatchRecording captures the whole utterance for one batch request.
	BatchRecording

	// Streaming forwards live audio to the streaming provider(s).
	Streaming

	// Processing waits for a batch transcription. A new session may start
	// from here without waiting.
	Processing

	// Failed is entered on any unhandled error. The next hotkey-down or
	// start-button press is handled as if the coordinator were Idle.
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HybridPending:
		return "hybrid_pending"
	case BatchRecording:
		return "batch_recording"
	case Streaming:
		return "streaming"
	case Processing:
		return "processing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input is a user or timer event fed to [Transition].
type Input int

const (
	InputHotkeyDown Input = iota
	InputHotkeyUp
	InputStartButton
	InputHybridTimeout
	InputCancel
)

// String implements fmt.Stringer.
func (in Input) String() string {
	switch in {
	case InputHotkeyDown:
		return "hotkey_down"
	case InputHotkeyUp:
		return "hotkey_up"
	case InputStartButton:
		return "start_button"
	case InputHybridTimeout:
		return "hybrid_timeout"
	case InputCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Action is the side effect the coordinator runs for a transition.
type Action int

const (
	// ActionNone ignores the input.
	ActionNone Action = iota

	// ActionStartHybrid opens a session, starts capture, buffers audio and
	// arms the hybrid timer.
	ActionStartHybrid

	// ActionStartManual opens a start-button session: capture without a
	// timer, never auto-sent.
	ActionStartManual

	// ActionCommitBatch disarms the timer and keeps recording for batch.
	ActionCommitBatch

	// ActionCommitStreaming connects the streaming provider(s) and replays
	// the buffered audio into them.
	ActionCommitStreaming

	// ActionFinishBatch stops capture, runs the silence check and launches
	// the batch job.
	ActionFinishBatch

	// ActionFinishStreaming stops capture and finalizes the streaming
	// session(s) in the background.
	ActionFinishStreaming

	// ActionDiscard stops capture and drops the audio without any provider
	// call, canceling live streams.
	ActionDiscard

	// ActionCancelBatch aborts the in-flight batch job.
	ActionCancelBatch
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStartHybrid:
		return "start_hybrid"
	case ActionStartManual:
		return "start_manual"
	case ActionCommitBatch:
		return "commit_batch"
	case ActionCommitStreaming:
		return "commit_streaming"
	case ActionFinishBatch:
		return "finish_batch"
	case ActionFinishStreaming:
		return "finish_streaming"
	case ActionDiscard:
		return "discard"
	case ActionCancelBatch:
		return "cancel_batch"
	default:
		return "unknown"
	}
}

// Transition is the coordinator's state table. It is pure: the returned
// action is executed by the caller, which may still divert to [Failed] when
// the action errors. Inputs a state does not handle return (s, ActionNone).
func Transition(s State, in Input) (State, Action) {
	switch s {
	case Idle, Failed:
		switch in {
		case InputHotkeyDown:
			return HybridPending, ActionStartHybrid
		case InputStartButton:
			return BatchRecording, ActionStartManual
		case InputCancel:
			return Idle, ActionNone
		}

	case HybridPending:
		switch in {
		case InputHotkeyUp:
			return BatchRecording, ActionCommitBatch
		case InputHybridTimeout:
			return Streaming, ActionCommitStreaming
		case InputHotkeyDown, InputCancel:
			return Idle, ActionDiscard
		}

	case BatchRecording:
		switch in {
		case InputHotkeyDown, InputStartButton:
			return Processing, ActionFinishBatch
		case InputCancel:
			return Idle, ActionDiscard
		}

	case Streaming:
		switch in {
		case InputHotkeyUp:
			return Idle, ActionFinishStreaming
		case InputCancel:
			return Idle, ActionDiscard
		}

	case Processing:
		switch in {
		case InputHotkeyDown:
			return HybridPending, ActionStartHybrid
		case InputStartButton:
			return BatchRecording, ActionStartManual
		case InputCancel:
			return Idle, ActionCancelBatch
		}
	}
	return s, ActionNone
}
