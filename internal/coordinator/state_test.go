package coordinator

import "testing"

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from State
		in   Input
		to   State
		act  Action
	}{
		{Idle, InputHotkeyDown, HybridPending, ActionStartHybrid},
		{Idle, InputStartButton, BatchRecording, ActionStartManual},
		{Idle, InputHotkeyUp, Idle, ActionNone},
		{Idle, InputHybridTimeout, Idle, ActionNone},
		{Idle, InputCancel, Idle, ActionNone},

		{HybridPending, InputHotkeyUp, BatchRecording, ActionCommitBatch},
		{HybridPending, InputHybridTimeout, Streaming, ActionCommitStreaming},
		{HybridPending, InputHotkeyDown, Idle, ActionDiscard},
		{HybridPending, InputCancel, Idle, ActionDiscard},
		{HybridPending, InputStartButton, HybridPending, ActionNone},

		{BatchRecording, InputHotkeyDown, Processing, ActionFinishBatch},
		{BatchRecording, InputStartButton, Processing, ActionFinishBatch},
		{BatchRecording, InputHotkeyUp, BatchRecording, ActionNone},
		{BatchRecording, InputHybridTimeout, BatchRecording, ActionNone},
		{BatchRecording, InputCancel, Idle, ActionDiscard},

		{Streaming, InputHotkeyUp, Idle, ActionFinishStreaming},
		{Streaming, InputCancel, Idle, ActionDiscard},
		{Streaming, InputHotkeyDown, Streaming, ActionNone},
		{Streaming, InputHybridTimeout, Streaming, ActionNone},

		{Processing, InputHotkeyDown, HybridPending, ActionStartHybrid},
		{Processing, InputStartButton, BatchRecording, ActionStartManual},
		{Processing, InputHotkeyUp, Processing, ActionNone},
		{Processing, InputCancel, Idle, ActionCancelBatch},

		{Failed, InputHotkeyDown, HybridPending, ActionStartHybrid},
		{Failed, InputStartButton, BatchRecording, ActionStartManual},
		{Failed, InputHotkeyUp, Failed, ActionNone},
		{Failed, InputCancel, Idle, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.in.String(), func(t *testing.T) {
			t.Parallel()
			to, act := Transition(tt.from, tt.in)
			if to != tt.to || act != tt.act {
				t.Errorf("Transition(%s, %s) = (%s, %s), want (%s, %s)", tt.from, tt.in, to, act, tt.to, tt.act)
			}
		})
	}
}

func TestTransition_TimerAndReleaseAreExclusive(t *testing.T) {
	t.Parallel()
	// Whichever of hotkey-up and the hybrid timer arrives second is ignored.
	s, _ := Transition(HybridPending, InputHotkeyUp)
	if _, act := Transition(s, InputHybridTimeout); act != ActionNone {
		t.Errorf("timeout after release: action = %s, want none", act)
	}
	s, _ = Transition(HybridPending, InputHybridTimeout)
	if next, act := Transition(s, InputHybridTimeout); act != ActionNone || next != Streaming {
		t.Errorf("second timeout: (%s, %s)", next, act)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()
	for s := Idle; s <= Failed; s++ {
		if s.String() == "unknown" {
			t.Errorf("State(%d) has no name", s)
		}
	}
	if State(99).String() != "unknown" || Input(99).String() != "unknown" || Action(99).String() != "unknown" {
		t.Error("out-of-range values should print unknown")
	}
}
