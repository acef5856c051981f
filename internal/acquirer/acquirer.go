package acquirer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
)

// TransientRetryDelay is the pause before repeating an attempt that failed
// with an invalid-state error.
const TransientRetryDelay = 150 * time.Millisecond

// Picker re-opens the desktop picker to replace a stale source id.
type Picker interface {
	Refresh(ctx context.Context, staleID string) (string, error)
}

// Result is a successfully acquired stream.
type Result struct {
	Stream       *media.Stream
	StreamID     string
	AudioEnabled bool
	// AudioDropped is set when audio was requested but the stream has none.
	AudioDropped bool
}

// Acquirer resolves a SourceDescriptor to a live stream, walking the
// constraint-variant ladder.
type Acquirer struct {
	devices    media.Devices
	picker     Picker
	retryDelay time.Duration
}

// New creates an acquirer. picker may be nil, which disables fresh-id retries.
func New(devices media.Devices, picker Picker) *Acquirer {
	return &Acquirer{
		devices:    devices,
		picker:     picker,
		retryDelay: TransientRetryDelay,
	}
}

// SetRetryDelay overrides the transient retry delay.
func (a *Acquirer) SetRetryDelay(d time.Duration) {
	a.retryDelay = d
}

// Acquire obtains a stream for d or returns an *Error.
func (a *Acquirer) Acquire(ctx context.Context, d models.SourceDescriptor) (*Result, error) {
	streamID := d.StreamID
	refreshed := false

	for {
		res, lastErr, allNotFound := a.ladder(ctx, d, streamID)
		if res != nil {
			return res, nil
		}
		if DecideExhausted(d.Mode, allNotFound, a.picker != nil, refreshed) != OutcomeRetryFreshID {
			return nil, lastErr
		}

		log.Info().Msgf("All constraint variants failed for stale source %s, requesting a fresh picker selection", streamID)
		fresh, err := a.picker.Refresh(ctx, streamID)
		if err != nil {
			if Classify(err) == ReasonCancelled {
				return nil, &Error{Reason: ReasonCancelled, Err: err}
			}
			log.Warn().Err(err).Msg("Picker refresh failed")
			return nil, lastErr
		}
		streamID = fresh
		refreshed = true
	}
}

// ladder tries every variant once for streamID. On failure it returns the last
// error and whether every variant ended in DeviceNotFound.
func (a *Acquirer) ladder(ctx context.Context, d models.SourceDescriptor, streamID string) (*Result, *Error, bool) {
	audio := d.WantAudio
	triedWithoutAudio := false
	allNotFound := true
	var last *Error

	for _, shape := range Variants(d.Mode) {
		transientRetried := false

		for {
			if err := ctx.Err(); err != nil {
				return nil, &Error{Reason: ReasonCancelled, Err: err}, false
			}

			stream, err := a.devices.GetUserMedia(ctx, BuildConstraints(shape, d, streamID, audio))
			if err == nil {
				res, verr := a.verify(stream, d, streamID, audio)
				if verr != nil {
					return nil, verr, false
				}
				return res, nil, false
			}

			reason := Classify(err)
			if ctx.Err() != nil {
				reason = ReasonCancelled
			}
			last = &Error{Reason: reason, Err: err}

			outcome := Decide(reason, Attempt{
				AudioRequested:    audio,
				TriedWithoutAudio: triedWithoutAudio,
				TransientRetried:  transientRetried,
			})
			log.Debug().Msgf("getUserMedia %s variant failed (%s): %v -> %s", shape, reason, err, outcome)

			switch outcome {
			case OutcomeFatal:
				return nil, last, false
			case OutcomeRetrySame:
				transientRetried = true
				if err := sleep(ctx, a.retryDelay); err != nil {
					return nil, &Error{Reason: ReasonCancelled, Err: err}, false
				}
				continue
			case OutcomeRetryWithoutAudio:
				audio = false
				triedWithoutAudio = true
				continue
			}

			if reason != ReasonDeviceNotFound {
				allNotFound = false
			}
			break
		}
	}

	if last == nil {
		last = &Error{Reason: ReasonConstraintRejected}
	}
	return nil, last, allNotFound
}

func (a *Acquirer) verify(stream *media.Stream, d models.SourceDescriptor, streamID string, audioRequested bool) (*Result, *Error) {
	if len(stream.VideoTracks()) == 0 {
		stream.Release()
		return nil, &Error{Reason: ReasonNoVideoTrack}
	}
	if n := stream.TrimVideo(); n > 0 {
		log.Warn().Msgf("Capture returned %d extra video track(s), keeping the first", n)
	}

	audioEnabled := audioRequested && len(stream.AudioTracks()) > 0
	if !audioEnabled && len(stream.AudioTracks()) > 0 {
		stream.DropAudio()
	}

	return &Result{
		Stream:       stream,
		StreamID:     streamID,
		AudioEnabled: audioEnabled,
		AudioDropped: d.WantAudio && !audioEnabled,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
