package acquirer

import (
	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
)

// Outcome is the next step of the acquisition ladder after a failed attempt.
type Outcome int

const (
	// OutcomeRetrySame waits the transient delay and repeats the attempt.
	OutcomeRetrySame Outcome = iota
	// OutcomeRetryWithoutAudio repeats the attempt with the audio key removed.
	OutcomeRetryWithoutAudio
	// OutcomeNextVariant moves on to the next constraint shape.
	OutcomeNextVariant
	// OutcomeRetryFreshID restarts the ladder with a new picker selection.
	OutcomeRetryFreshID
	// OutcomeFatal aborts acquisition.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetrySame:
		return "retry-same"
	case OutcomeRetryWithoutAudio:
		return "retry-without-audio"
	case OutcomeNextVariant:
		return "next-variant"
	case OutcomeRetryFreshID:
		return "retry-fresh-id"
	default:
		return "fatal"
	}
}

// Attempt is the ladder state visible to Decide.
type Attempt struct {
	AudioRequested    bool
	TriedWithoutAudio bool
	TransientRetried  bool
}

// Decide picks the next step for a single failed attempt.
func Decide(reason Reason, a Attempt) Outcome {
	switch reason {
	case ReasonPermissionDenied, ReasonCancelled, ReasonNoVideoTrack:
		return OutcomeFatal
	case ReasonTransientInvalidState:
		if !a.TransientRetried {
			return OutcomeRetrySame
		}
		if a.AudioRequested && !a.TriedWithoutAudio {
			return OutcomeRetryWithoutAudio
		}
		return OutcomeNextVariant
	case ReasonDeviceNotFound:
		if a.AudioRequested && !a.TriedWithoutAudio {
			return OutcomeRetryWithoutAudio
		}
		return OutcomeNextVariant
	default:
		return OutcomeNextVariant
	}
}

// DecideExhausted is consulted once every variant has failed.
func DecideExhausted(mode models.CaptureMode, allNotFound, canRefresh, refreshed bool) Outcome {
	if mode == models.ModeDesktop && allNotFound && canRefresh && !refreshed {
		return OutcomeRetryFreshID
	}
	return OutcomeFatal
}

// Variants returns constraint shapes in the order the backend should try them.
// Desktop capture backends accept the legacy shape first; tab capture the modern.
func Variants(mode models.CaptureMode) []media.Shape {
	if mode == models.ModeDesktop {
		return []media.Shape{media.ShapeLegacy, media.ShapeModern}
	}
	return []media.Shape{media.ShapeModern, media.ShapeLegacy}
}

// BuildConstraints renders one variant for a descriptor.
func BuildConstraints(shape media.Shape, d models.SourceDescriptor, streamID string, withAudio bool) media.Constraints {
	src := d.MediaSource()
	c := media.Constraints{
		Shape: shape,
		Video: media.SourceConstraint{Source: src, SourceID: streamID, FrameRate: d.FPS},
	}
	if withAudio {
		audio := media.SourceConstraint{Source: src, SourceID: streamID}
		if src == media.SourceTab {
			keepPlayback := false
			audio.SuppressLocalAudioPlayback = &keepPlayback
		}
		c.Audio = &audio
	}
	return c
}
