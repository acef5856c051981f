package recorder

import (
	"errors"
	"strings"
)

var (
	ErrAlreadyRecording = errors.New("Recording already in progress")
	ErrNotRecording     = errors.New("No active recording")
	ErrNotPaused        = errors.New("Recording is not paused")
	ErrSessionClosed    = errors.New("recording session already finished")
	ErrStartCancelled   = errors.New("recording start cancelled")
)

// ErrorKind groups encoder failures for user-facing messages.
type ErrorKind int

const (
	ErrorGeneric ErrorKind = iota
	ErrorAudio
	ErrorPermission
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorAudio:
		return "audio"
	case ErrorPermission:
		return "permission"
	default:
		return "generic"
	}
}

const (
	audioErrorMessage      = "Audio capture failed. Try recording without audio."
	permissionErrorMessage = "Screen capture permission was revoked. Please allow capture and try again."
	genericErrorMessage    = "Recording error"
)

// ClassifyEncoderError picks an ErrorKind from the error text and returns the
// message shown to the user.
func ClassifyEncoderError(err error) (ErrorKind, string) {
	if err == nil {
		return ErrorGeneric, genericErrorMessage
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "audio"):
		return ErrorAudio, audioErrorMessage
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "notallowed"),
		strings.Contains(msg, "not allowed"),
		strings.Contains(msg, "denied"):
		return ErrorPermission, permissionErrorMessage
	}
	if strings.TrimSpace(err.Error()) == "" {
		return ErrorGeneric, genericErrorMessage
	}
	return ErrorGeneric, err.Error()
}
