package acquirer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
)

type stubTrack struct {
	id      string
	kind    media.Kind
	stopped bool
}

func (t *stubTrack) ID() string       { return t.id }
func (t *stubTrack) Kind() media.Kind { return t.kind }
func (t *stubTrack) Stop()            { t.stopped = true }

type scriptedDevices struct {
	calls   []media.Constraints
	respond func(c media.Constraints, n int) (*media.Stream, error)
}

func (d *scriptedDevices) GetUserMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	d.calls = append(d.calls, c)
	return d.respond(c, len(d.calls))
}

type stubPicker struct {
	calls int
	fresh string
	err   error
}

func (p *stubPicker) Refresh(_ context.Context, _ string) (string, error) {
	p.calls++
	return p.fresh, p.err
}

func streamFor(c media.Constraints) *media.Stream {
	tracks := []media.Track{&stubTrack{id: "video", kind: media.KindVideo}}
	if c.WantsAudio() {
		tracks = append(tracks, &stubTrack{id: "audio", kind: media.KindAudio})
	}
	return media.NewStream(c.Video.SourceID, tracks...)
}

func newTestAcquirer(d media.Devices, p Picker) *Acquirer {
	a := New(d, p)
	a.SetRetryDelay(0)
	return a
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		reason  Reason
		attempt Attempt
		want    Outcome
	}{
		{"permission is fatal", ReasonPermissionDenied, Attempt{AudioRequested: true}, OutcomeFatal},
		{"cancel is fatal", ReasonCancelled, Attempt{}, OutcomeFatal},
		{"first transient retries same", ReasonTransientInvalidState, Attempt{AudioRequested: true}, OutcomeRetrySame},
		{"second transient drops audio", ReasonTransientInvalidState, Attempt{AudioRequested: true, TransientRetried: true}, OutcomeRetryWithoutAudio},
		{"second transient without audio moves on", ReasonTransientInvalidState, Attempt{TransientRetried: true}, OutcomeNextVariant},
		{"not found drops audio", ReasonDeviceNotFound, Attempt{AudioRequested: true}, OutcomeRetryWithoutAudio},
		{"not found after drop moves on", ReasonDeviceNotFound, Attempt{AudioRequested: false, TriedWithoutAudio: true}, OutcomeNextVariant},
		{"constraint rejected moves on", ReasonConstraintRejected, Attempt{AudioRequested: true}, OutcomeNextVariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.reason, tt.attempt))
		})
	}
}

func TestVariantOrder(t *testing.T) {
	assert.Equal(t, []media.Shape{media.ShapeLegacy, media.ShapeModern}, Variants(models.ModeDesktop))
	assert.Equal(t, []media.Shape{media.ShapeModern, media.ShapeLegacy}, Variants(models.ModeTab))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReasonPermissionDenied, Classify(media.NewDeviceError(media.ErrNameNotAllowed, "denied")))
	assert.Equal(t, ReasonDeviceNotFound, Classify(media.NewDeviceError(media.ErrNameNotFound, "gone")))
	assert.Equal(t, ReasonTransientInvalidState, Classify(media.NewDeviceError(media.ErrNameInvalidState, "busy")))
	assert.Equal(t, ReasonConstraintRejected, Classify(media.NewDeviceError(media.ErrNameOverconstrained, "fps")))
	assert.Equal(t, ReasonCancelled, Classify(ErrPickerCancelled))
	assert.Equal(t, ReasonConstraintRejected, Classify(errors.New("weird")))
}

func TestAcquirePermissionDeniedAbortsImmediately(t *testing.T) {
	devices := &scriptedDevices{respond: func(media.Constraints, int) (*media.Stream, error) {
		return nil, media.NewDeviceError(media.ErrNameNotAllowed, "Permission denied")
	}}

	_, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s", WantAudio: true})

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonPermissionDenied, reason)
	assert.Len(t, devices.calls, 1)
}

func TestAcquireTransientRetriesSameVariantOnce(t *testing.T) {
	devices := &scriptedDevices{respond: func(c media.Constraints, n int) (*media.Stream, error) {
		if n == 1 {
			return nil, media.NewDeviceError(media.ErrNameInvalidState, "busy")
		}
		return streamFor(c), nil
	}}

	res, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s", WantAudio: true})
	require.NoError(t, err)

	require.Len(t, devices.calls, 2)
	assert.Equal(t, devices.calls[0].Shape, devices.calls[1].Shape)
	assert.True(t, devices.calls[1].WantsAudio())
	assert.True(t, res.AudioEnabled)
	assert.False(t, res.AudioDropped)
}

func TestAcquireFallsBackToVideoOnly(t *testing.T) {
	devices := &scriptedDevices{respond: func(c media.Constraints, _ int) (*media.Stream, error) {
		if c.WantsAudio() {
			return nil, media.NewDeviceError(media.ErrNameNotFound, "Requested device not found")
		}
		return streamFor(c), nil
	}}

	res, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s", WantAudio: true})
	require.NoError(t, err)

	require.Len(t, devices.calls, 2)
	assert.Equal(t, media.ShapeModern, devices.calls[1].Shape, "audio is dropped on the same variant")
	assert.False(t, devices.calls[1].WantsAudio())
	assert.False(t, res.AudioEnabled)
	assert.True(t, res.AudioDropped)
	assert.Empty(t, res.Stream.AudioTracks())
}

func TestAcquireKeepsSingleVideoTrack(t *testing.T) {
	first := &stubTrack{id: "v1", kind: media.KindVideo}
	second := &stubTrack{id: "v2", kind: media.KindVideo}
	devices := &scriptedDevices{respond: func(media.Constraints, int) (*media.Stream, error) {
		return media.NewStream("s", first, second), nil
	}}

	res, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s"})
	require.NoError(t, err)

	require.Len(t, res.Stream.VideoTracks(), 1)
	assert.Equal(t, "v1", res.Stream.VideoTracks()[0].ID())
	assert.False(t, first.stopped)
	assert.True(t, second.stopped, "extra video track must be stopped")
}

func TestAcquireMovesToNextVariant(t *testing.T) {
	devices := &scriptedDevices{respond: func(c media.Constraints, _ int) (*media.Stream, error) {
		if c.Shape == media.ShapeModern {
			return nil, media.NewDeviceError(media.ErrNameOverconstrained, "shape")
		}
		return streamFor(c), nil
	}}

	res, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s"})
	require.NoError(t, err)
	require.Len(t, devices.calls, 2)
	assert.Equal(t, media.ShapeLegacy, devices.calls[1].Shape)
	assert.Equal(t, "s", res.StreamID)
}

func TestAcquireRefreshesStaleDesktopIDOnce(t *testing.T) {
	devices := &scriptedDevices{respond: func(c media.Constraints, _ int) (*media.Stream, error) {
		if c.Video.SourceID == "stale" {
			return nil, media.NewDeviceError(media.ErrNameNotFound, "stale source")
		}
		return streamFor(c), nil
	}}
	picker := &stubPicker{fresh: "fresh"}

	res, err := newTestAcquirer(devices, picker).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeDesktop, StreamID: "stale", WantAudio: true})
	require.NoError(t, err)

	assert.Equal(t, 1, picker.calls)
	assert.Equal(t, "fresh", res.StreamID)
	assert.True(t, res.AudioEnabled, "audio fallback is reset for the fresh id")

	last := devices.calls[len(devices.calls)-1]
	assert.Equal(t, media.ShapeLegacy, last.Shape)
	assert.True(t, last.WantsAudio())
}

func TestAcquireFreshIDRetryIsBounded(t *testing.T) {
	devices := &scriptedDevices{respond: func(media.Constraints, int) (*media.Stream, error) {
		return nil, media.NewDeviceError(media.ErrNameNotFound, "gone")
	}}
	picker := &stubPicker{fresh: "fresh"}

	_, err := newTestAcquirer(devices, picker).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeDesktop, StreamID: "stale"})

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDeviceNotFound, reason)
	assert.Equal(t, 1, picker.calls)
	assert.Len(t, devices.calls, 4)
}

func TestAcquireTabNeverRefreshes(t *testing.T) {
	devices := &scriptedDevices{respond: func(media.Constraints, int) (*media.Stream, error) {
		return nil, media.NewDeviceError(media.ErrNameNotFound, "gone")
	}}
	picker := &stubPicker{fresh: "fresh"}

	_, err := newTestAcquirer(devices, picker).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "t"})
	require.Error(t, err)
	assert.Zero(t, picker.calls)
}

func TestAcquireRejectsStreamWithoutVideo(t *testing.T) {
	audio := &stubTrack{id: "a", kind: media.KindAudio}
	devices := &scriptedDevices{respond: func(media.Constraints, int) (*media.Stream, error) {
		return media.NewStream("s", audio), nil
	}}

	_, err := newTestAcquirer(devices, nil).Acquire(context.Background(), models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s", WantAudio: true})

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoVideoTrack, reason)
	assert.True(t, audio.stopped, "partial stream must be released")
}

func TestAcquireHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	devices := &scriptedDevices{respond: func(c media.Constraints, _ int) (*media.Stream, error) {
		return streamFor(c), nil
	}}

	_, err := newTestAcquirer(devices, nil).Acquire(ctx, models.SourceDescriptor{Mode: models.ModeTab, StreamID: "s"})

	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonCancelled, reason)
	assert.Empty(t, devices.calls)
}
