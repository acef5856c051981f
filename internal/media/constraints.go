package media

import "encoding/json"

// Source is the chromeMediaSource value of a capture.
type Source string

const (
	SourceTab     Source = "tab"
	SourceDesktop Source = "desktop"
)

// Shape selects how constraints are laid out for the capture backend.
type Shape string

const (
	// ShapeLegacy nests the source under a "mandatory" object.
	ShapeLegacy Shape = "legacy"
	// ShapeModern puts the source keys directly on the track constraint.
	ShapeModern Shape = "modern"
)

// SourceConstraint describes one track request.
type SourceConstraint struct {
	Source    Source
	SourceID  string
	FrameRate int
	// SuppressLocalAudioPlayback is only sent for tab audio.
	SuppressLocalAudioPlayback *bool
}

// Constraints is a getUserMedia request. A nil Audio removes the audio key
// entirely, which some backends treat differently from audio:false.
type Constraints struct {
	Shape Shape
	Video SourceConstraint
	Audio *SourceConstraint
}

// WantsAudio reports whether the request carries an audio key.
func (c Constraints) WantsAudio() bool {
	return c.Audio != nil
}

// WithoutAudio returns a copy with the audio key removed.
func (c Constraints) WithoutAudio() Constraints {
	c.Audio = nil
	return c
}

// MarshalJSON renders the constraints in the layout the capture backend expects.
func (c Constraints) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"video": c.Video.render(c.Shape, true),
	}
	if c.Audio != nil {
		out["audio"] = c.Audio.render(c.Shape, false)
	}
	return json.Marshal(out)
}

func (sc SourceConstraint) render(shape Shape, video bool) map[string]any {
	keys := map[string]any{
		"chromeMediaSource":   string(sc.Source),
		"chromeMediaSourceId": sc.SourceID,
	}
	if !video && sc.SuppressLocalAudioPlayback != nil {
		keys["suppressLocalAudioPlayback"] = *sc.SuppressLocalAudioPlayback
	}

	if shape == ShapeLegacy {
		if video && sc.FrameRate > 0 {
			keys["maxFrameRate"] = sc.FrameRate
		}
		return map[string]any{"mandatory": keys}
	}

	if video && sc.FrameRate > 0 {
		keys["frameRate"] = map[string]int{"ideal": sc.FrameRate, "max": sc.FrameRate}
	}
	return keys
}
