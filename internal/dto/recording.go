package dto

import "time"

// RecordingDTO represents a history entry for transfer
type RecordingDTO struct {
	ID              string     `json:"id"`
	Mode            string     `json:"mode"`
	Status          string     `json:"status"`
	MimeType        string     `json:"mime_type,omitempty"`
	AudioEnabled    bool       `json:"audio_enabled"`
	Chunked         bool       `json:"chunked"`
	Chunks          int        `json:"chunks"`
	Files           []string   `json:"files"`
	Bytes           int64      `json:"bytes"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ListRecordingsResponse represents a page of history entries
type ListRecordingsResponse struct {
	Recordings []RecordingDTO `json:"recordings"`
	Count      int            `json:"count"`
}

// PairRequest exchanges the pairing code for a control token
type PairRequest struct {
	Code     string `json:"code"`
	ClientID string `json:"client_id"`
}

// PairResponse carries the issued token
type PairResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
