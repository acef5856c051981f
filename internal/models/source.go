package models

import (
	"fmt"
	"strings"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// CaptureMode selects what is being recorded
type CaptureMode string

const (
	ModeTab     CaptureMode = "tab"
	ModeDesktop CaptureMode = "desktop"
)

// ParseCaptureMode accepts the extension's captureMode values. "browser" is the
// popup's name for the desktop picker.
func ParseCaptureMode(value string) (CaptureMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "tab":
		return ModeTab, nil
	case "browser", "desktop", "screen", "window":
		return ModeDesktop, nil
	default:
		return "", fmt.Errorf("unknown capture mode %q", value)
	}
}

// SourceDescriptor identifies the capture source of one session attempt.
type SourceDescriptor struct {
	Mode               CaptureMode
	StreamID           string
	WantAudio          bool
	FPS                int
	VideoBitsPerSecond int
}

// MediaSource maps the capture mode to the backend's chromeMediaSource value.
func (d SourceDescriptor) MediaSource() media.Source {
	if d.Mode == ModeDesktop {
		return media.SourceDesktop
	}
	return media.SourceTab
}
