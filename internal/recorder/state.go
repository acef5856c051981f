package recorder

// State is the lifecycle position of a RecordingSession.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StatePaused
	StateStopping
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Active reports whether the encoder is running, paused or not.
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}
