package media

import (
	"errors"
	"fmt"
)

// DOM exception names reported by capture backends.
const (
	ErrNameNotAllowed      = "NotAllowedError"
	ErrNameSecurity        = "SecurityError"
	ErrNameNotFound        = "NotFoundError"
	ErrNameInvalidState    = "InvalidStateError"
	ErrNameNotReadable     = "NotReadableError"
	ErrNameOverconstrained = "OverconstrainedError"
	ErrNameAbort           = "AbortError"
	ErrNameType            = "TypeError"
	ErrNameNotSupported    = "NotSupportedError"
	ErrNameUnknown         = "UnknownError"
)

// DeviceError is the failure returned by Devices.GetUserMedia.
type DeviceError struct {
	Name    string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// NewDeviceError builds a DeviceError with a formatted message.
func NewDeviceError(name, format string, args ...any) *DeviceError {
	return &DeviceError{Name: name, Message: fmt.Sprintf(format, args...)}
}

// ErrorName extracts the DOM exception name from err, or ErrNameUnknown.
func ErrorName(err error) string {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Name
	}
	return ErrNameUnknown
}
