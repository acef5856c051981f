package dto

import (
	"encoding/json"
	"fmt"
)

// Notification actions relayed to observers.
const (
	ActionBufferSizeUpdate  = "bufferSizeUpdate"
	ActionRecordingStarted  = "recordingStarted"
	ActionRecordingPaused   = "recordingPaused"
	ActionRecordingResumed  = "recordingResumed"
	ActionRecordingComplete = "recordingComplete"
	ActionRecordingError    = "recordingError"
	ActionRecordingWarning  = "recordingWarning"
	ActionAudioData         = "audioData"
)

// AudioBars is the number of visualizer bands in audioData.
const AudioBars = 32

// Notification is a fire-and-forget status message.
type Notification interface {
	Name() string
}

type BufferSizeUpdate struct {
	Action    string `json:"action"`
	Size      int64  `json:"size"`
	Formatted string `json:"formatted"`
	Warning   bool   `json:"warning"`
}

func NewBufferSizeUpdate(size int64, formatted string, warning bool) BufferSizeUpdate {
	return BufferSizeUpdate{Action: ActionBufferSizeUpdate, Size: size, Formatted: formatted, Warning: warning}
}

func (n BufferSizeUpdate) Name() string { return n.Action }

// RecordingStarted carries the start time in Unix milliseconds.
type RecordingStarted struct {
	Action    string `json:"action"`
	StartTime int64  `json:"startTime"`
}

func NewRecordingStarted(startTime int64) RecordingStarted {
	return RecordingStarted{Action: ActionRecordingStarted, StartTime: startTime}
}

func (n RecordingStarted) Name() string { return n.Action }

type RecordingPaused struct {
	Action    string `json:"action"`
	PauseTime int64  `json:"pauseTime"`
}

func NewRecordingPaused(pauseTime int64) RecordingPaused {
	return RecordingPaused{Action: ActionRecordingPaused, PauseTime: pauseTime}
}

func (n RecordingPaused) Name() string { return n.Action }

type RecordingResumed struct {
	Action     string `json:"action"`
	ResumeTime int64  `json:"resumeTime"`
}

func NewRecordingResumed(resumeTime int64) RecordingResumed {
	return RecordingResumed{Action: ActionRecordingResumed, ResumeTime: resumeTime}
}

func (n RecordingResumed) Name() string { return n.Action }

// RecordingComplete is emitted exactly once per session.
type RecordingComplete struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Chunked bool   `json:"chunked,omitempty"`
	Chunks  *int   `json:"chunks,omitempty"`
	Error   string `json:"error,omitempty"`
	Empty   bool   `json:"empty,omitempty"`
}

func NewRecordingComplete(err error) RecordingComplete {
	n := RecordingComplete{Action: ActionRecordingComplete, Success: err == nil}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}

// NewChunkedRecordingComplete reports a chunked session with the number of
// parts written.
func NewChunkedRecordingComplete(chunks int, err error) RecordingComplete {
	n := NewRecordingComplete(err)
	n.Chunked = true
	n.Chunks = &chunks
	return n
}

func NewEmptyRecordingComplete() RecordingComplete {
	return RecordingComplete{Action: ActionRecordingComplete, Success: true, Empty: true}
}

func (n RecordingComplete) Name() string { return n.Action }

type RecordingError struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

func NewRecordingError(message string) RecordingError {
	return RecordingError{Action: ActionRecordingError, Error: message}
}

func (n RecordingError) Name() string { return n.Action }

type RecordingWarning struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func NewRecordingWarning(message string) RecordingWarning {
	return RecordingWarning{Action: ActionRecordingWarning, Message: message}
}

func (n RecordingWarning) Name() string { return n.Action }

// AudioData carries visualizer levels in [0,255].
type AudioData struct {
	Action string `json:"action"`
	Bars   []int  `json:"bars"`
}

func NewAudioData(levels []uint8) AudioData {
	bars := make([]int, AudioBars)
	for i := 0; i < AudioBars && i < len(levels); i++ {
		bars[i] = int(levels[i])
	}
	return AudioData{Action: ActionAudioData, Bars: bars}
}

func (n AudioData) Name() string { return n.Action }

// RawNotification is a notification posted by a client and relayed as is.
type RawNotification struct {
	Action string
	Body   json.RawMessage
}

func (n RawNotification) Name() string { return n.Action }

func (n RawNotification) MarshalJSON() ([]byte, error) {
	if len(n.Body) == 0 {
		return json.Marshal(map[string]string{"action": n.Action})
	}
	return n.Body, nil
}

// IsNotificationAction reports whether action names a relayable notification.
func IsNotificationAction(action string) bool {
	switch action {
	case ActionBufferSizeUpdate, ActionRecordingStarted, ActionRecordingPaused,
		ActionRecordingResumed, ActionRecordingComplete, ActionRecordingError,
		ActionRecordingWarning, ActionAudioData:
		return true
	}
	return false
}

// EncodeNotification renders n in its wire form.
func EncodeNotification(n Notification) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notification: %w", n.Name(), err)
	}
	return b, nil
}
