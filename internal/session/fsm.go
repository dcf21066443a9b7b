package session

// ActivityState describes what the assistant side of the session is doing.
type ActivityState string

const (
	StateIdle      ActivityState = "idle"
	StateListening ActivityState = "listening"
	StateThinking  ActivityState = "thinking"
	StateSpeaking  ActivityState = "speaking"
)

// Trigger is an input to the activity state machine.
type Trigger int

const (
	TriggerSubmit Trigger = iota
	TriggerCaptureStart
	TriggerCaptureText
	TriggerCaptureEmpty
	TriggerCaptureFailed
	TriggerReplyReady
	TriggerReplyFailed
	TriggerPlaybackDone
	TriggerAck
)

func (t Trigger) String() string {
	switch t {
	case TriggerSubmit:
		return "submit"
	case TriggerCaptureStart:
		return "capture_start"
	case TriggerCaptureText:
		return "capture_text"
	case TriggerCaptureEmpty:
		return "capture_empty"
	case TriggerCaptureFailed:
		return "capture_failed"
	case TriggerReplyReady:
		return "reply_ready"
	case TriggerReplyFailed:
		return "reply_failed"
	case TriggerPlaybackDone:
		return "playback_done"
	case TriggerAck:
		return "ack"
	}
	return "unknown"
}

// Effect is a side effect the session must perform after a transition.
type Effect int

const (
	EffectStartCapture Effect = iota
	EffectAppendUser
	EffectRequestReply
	EffectAppendSystem
	EffectAppendAssistant
	EffectStopSpeech
	EffectSpeak
)

// Transition is the pure activity state machine. It returns the next state,
// the effects to run in order, and whether the trigger is legal in state.
// Illegal triggers leave the state unchanged.
func Transition(state ActivityState, trigger Trigger) (ActivityState, []Effect, bool) {
	switch state {
	case StateIdle:
		switch trigger {
		case TriggerSubmit:
			return StateThinking, []Effect{EffectAppendUser, EffectRequestReply}, true
		case TriggerCaptureStart:
			return StateListening, []Effect{EffectStartCapture}, true
		case TriggerAck:
			return StateSpeaking, ackEffects(), true
		}
	case StateListening:
		switch trigger {
		case TriggerCaptureText:
			return StateThinking, []Effect{EffectAppendUser, EffectRequestReply}, true
		case TriggerCaptureEmpty, TriggerCaptureFailed:
			return StateIdle, nil, true
		case TriggerAck:
			// capture keeps the microphone; the acknowledgement is still spoken
			return StateListening, ackEffects(), true
		}
	case StateThinking:
		switch trigger {
		case TriggerReplyReady:
			return StateSpeaking, []Effect{EffectAppendAssistant, EffectSpeak}, true
		case TriggerReplyFailed:
			return StateIdle, nil, true
		case TriggerAck:
			return StateSpeaking, ackEffects(), true
		}
	case StateSpeaking:
		switch trigger {
		case TriggerPlaybackDone:
			return StateIdle, nil, true
		case TriggerAck:
			return StateSpeaking, ackEffects(), true
		}
	}
	return state, nil, false
}

func ackEffects() []Effect {
	return []Effect{EffectStopSpeech, EffectAppendSystem, EffectAppendAssistant, EffectSpeak}
}
