package acquirer

import (
	"errors"
	"fmt"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// Reason classifies why a stream could not be acquired.
type Reason string

const (
	ReasonPermissionDenied      Reason = "PermissionDenied"
	ReasonDeviceNotFound        Reason = "DeviceNotFound"
	ReasonConstraintRejected    Reason = "ConstraintRejected"
	ReasonTransientInvalidState Reason = "TransientInvalidState"
	ReasonCancelled             Reason = "Cancelled"
	ReasonNoVideoTrack          Reason = "NoVideoTrack"
)

// ErrPickerCancelled is returned by pickers when the user closes the dialog.
var ErrPickerCancelled = errors.New("user cancelled desktop capture")

// Error is an acquisition failure. Err holds the last backend error.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stream acquisition failed: %s", e.Reason)
	}
	return fmt.Sprintf("stream acquisition failed (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the acquisition reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}

// Classify maps a backend failure to an acquisition reason.
func Classify(err error) Reason {
	if errors.Is(err, ErrPickerCancelled) {
		return ReasonCancelled
	}
	switch media.ErrorName(err) {
	case media.ErrNameNotAllowed, media.ErrNameSecurity:
		return ReasonPermissionDenied
	case media.ErrNameNotFound:
		return ReasonDeviceNotFound
	case media.ErrNameInvalidState, media.ErrNameNotReadable:
		return ReasonTransientInvalidState
	case media.ErrNameAbort:
		return ReasonCancelled
	default:
		return ReasonConstraintRejected
	}
}
