package models

import "time"

// Recording is the history entry of one session
type Recording struct {
	ID              string
	Mode            CaptureMode
	StreamID        string
	Status          string
	MimeType        string
	AudioEnabled    bool
	Chunked         bool
	Chunks          int
	Files           []string
	Bytes           int64
	DurationSeconds *float64
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Recording statuses
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
)
