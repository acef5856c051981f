package dto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command actions accepted by the recorder.
const (
	ActionStartCapture             = "startCapture"
	ActionStartCaptureWithStreamID = "startCaptureWithStreamId"
	ActionStopCapture              = "stopCapture"
	ActionPauseCapture             = "pauseCapture"
	ActionResumeCapture            = "resumeCapture"
	ActionGetStatus                = "getStatus"
	ActionSaveRecording            = "saveRecording"
)

var ErrMissingAction = errors.New("message has no action")

// Envelope is the first decoding pass of an incoming message.
type Envelope struct {
	Action string          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// DecodeEnvelope reads the action of a message and keeps its body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid message: %w", err)
	}
	if env.Action == "" {
		return Envelope{}, ErrMissingAction
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return env, nil
}

// Decode unmarshals the full message body into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("invalid %s message: %w", e.Action, err)
	}
	return nil
}

type ChunkOptions struct {
	Enabled bool   `json:"enabled"`
	SizeMB  int    `json:"sizeMB"`
	Folder  string `json:"folder"`
}

// StartCaptureRequest covers startCapture and startCaptureWithStreamId.
// Omitted fields fall back to the persisted defaults.
type StartCaptureRequest struct {
	Action             string        `json:"action"`
	CaptureMode        string        `json:"captureMode"`
	TabID              *int          `json:"tabId,omitempty"`
	TargetTabID        *int          `json:"targetTabId,omitempty"`
	StreamID           string        `json:"streamId,omitempty"`
	FPS                int           `json:"fps,omitempty"`
	IncludeAudio       *bool         `json:"includeAudio,omitempty"`
	VideoBitsPerSecond int           `json:"videoBitsPerSecond,omitempty"`
	Chunk              *ChunkOptions `json:"chunk,omitempty"`
}

// Tab returns the tab to capture, preferring targetTabId.
func (r StartCaptureRequest) Tab() (int, bool) {
	if r.TargetTabID != nil {
		return *r.TargetTabID, true
	}
	if r.TabID != nil {
		return *r.TabID, true
	}
	return 0, false
}

type SaveRecordingRequest struct {
	Action         string `json:"action,omitempty"`
	URL            string `json:"url"`
	Filename       string `json:"filename"`
	SaveAs         bool   `json:"saveAs"`
	ConflictAction string `json:"conflictAction,omitempty"`
}

// ActionResponse is the reply to every command except getStatus.
type ActionResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DownloadID *int   `json:"downloadId,omitempty"`
}

func OK() ActionResponse {
	return ActionResponse{Success: true}
}

func Failed(err error) ActionResponse {
	return ActionResponse{Success: false, Error: err.Error()}
}

// StatusResponse answers getStatus. StartTime is Unix milliseconds, zero
// when idle.
type StatusResponse struct {
	IsRecording bool   `json:"isRecording"`
	IsPaused    bool   `json:"isPaused"`
	State       string `json:"state"`
	StartTime   int64  `json:"startTime"`
	BufferSize  int64  `json:"bufferSize"`
}
