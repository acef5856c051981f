package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwnmf/Screen-recoder/internal/acquirer"
	"github.com/dwnmf/Screen-recoder/internal/config"
	"github.com/dwnmf/Screen-recoder/internal/downloads"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
	"github.com/dwnmf/Screen-recoder/internal/recorder"
	"github.com/dwnmf/Screen-recoder/internal/settings"
)

type track struct{ kind media.Kind }

func (t track) ID() string       { return string(t.kind) }
func (t track) Kind() media.Kind { return t.kind }
func (t track) Stop()            {}

type fakeAcquirer struct {
	mu   sync.Mutex
	seen []models.SourceDescriptor
}

func (a *fakeAcquirer) Acquire(_ context.Context, d models.SourceDescriptor) (*acquirer.Result, error) {
	a.mu.Lock()
	a.seen = append(a.seen, d)
	a.mu.Unlock()
	tracks := []media.Track{track{kind: media.KindVideo}}
	if d.WantAudio {
		tracks = append(tracks, track{kind: media.KindAudio})
	}
	return &acquirer.Result{
		Stream:       media.NewStream(d.StreamID, tracks...),
		StreamID:     d.StreamID,
		AudioEnabled: d.WantAudio,
	}, nil
}

func (a *fakeAcquirer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

func (a *fakeAcquirer) last() models.SourceDescriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen[len(a.seen)-1]
}

type fakeEncoder struct {
	mu        sync.Mutex
	state     media.RecorderState
	onChunk   func(media.Chunk)
	onStopped func()
}

func (e *fakeEncoder) Start(time.Duration) error   { e.set(media.StateRecording); return nil }
func (e *fakeEncoder) Pause() error                { e.set(media.StatePaused); return nil }
func (e *fakeEncoder) Resume() error               { e.set(media.StateRecording); return nil }
func (e *fakeEncoder) MimeType() string            { return "video/webm" }
func (e *fakeEncoder) OnChunk(f func(media.Chunk)) { e.onChunk = f }
func (e *fakeEncoder) OnStopped(f func())          { e.onStopped = f }
func (e *fakeEncoder) OnError(func(error))         {}

func (e *fakeEncoder) Stop() error {
	e.set(media.StateInactive)
	e.onStopped()
	return nil
}

func (e *fakeEncoder) State() media.RecorderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEncoder) set(s media.RecorderState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

type fakeFactory struct {
	mu  sync.Mutex
	enc *fakeEncoder
}

func (f *fakeFactory) IsTypeSupported(string) bool { return false }

func (f *fakeFactory) NewEncoder(*media.Stream, media.EncoderOptions) (media.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enc = &fakeEncoder{}
	return f.enc, nil
}

func (f *fakeFactory) current() *fakeEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc
}

type fakeTabs struct{ ids map[int]string }

func (t fakeTabs) GetMediaStreamID(_ context.Context, tabID int) (string, error) {
	id, ok := t.ids[tabID]
	if !ok {
		return "", errors.New("no such tab")
	}
	return id, nil
}

type fakePicker struct {
	sel Selection
	err error
}

func (p fakePicker) Choose(context.Context, bool) (Selection, error) { return p.sel, p.err }

// gatedPicker holds Choose open until release is closed.
type gatedPicker struct {
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPicker) Choose(context.Context, bool) (Selection, error) {
	close(p.entered)
	<-p.release
	return Selection{StreamID: "desk-late", CanRequestAudio: true}, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	created   []models.Recording
	completed []models.Recording
}

func (h *fakeHistory) CreateRecording(_ context.Context, rec *models.Recording) error {
	h.mu.Lock()
	h.created = append(h.created, *rec)
	h.mu.Unlock()
	return nil
}

func (h *fakeHistory) CompleteRecording(_ context.Context, rec *models.Recording) error {
	h.mu.Lock()
	h.completed = append(h.completed, *rec)
	h.mu.Unlock()
	return nil
}

func (h *fakeHistory) done() []models.Recording {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Recording(nil), h.completed...)
}

type fakeDurations struct{ seconds float64 }

func (p fakeDurations) Duration(_ context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return p.seconds, nil
}

type events struct {
	mu    sync.Mutex
	items []dto.Notification
}

func (e *events) Emit(n dto.Notification) {
	e.mu.Lock()
	e.items = append(e.items, n)
	e.mu.Unlock()
}

func (e *events) named(action string) []dto.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []dto.Notification
	for _, n := range e.items {
		if n.Name() == action {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	root    string
	cfg     *config.Config
	acq     *fakeAcquirer
	factory *fakeFactory
	store   *settings.MemoryStore
	history *fakeHistory
	events  *events
	manager *downloads.Manager
	ctrl    *Controller
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newFixture(t *testing.T, picker DesktopPicker) *fixture {
	t.Helper()
	root := t.TempDir()
	blobs := downloads.NewBlobRegistry()
	f := &fixture{
		root: root,
		cfg: &config.Config{
			DownloadsDir:              root,
			DefaultFPS:                30,
			DefaultVideoBitsPerSecond: 2500000,
			DefaultChunkSizeMB:        100,
			CleanupWindow:             time.Hour,
		},
		acq:     &fakeAcquirer{},
		factory: &fakeFactory{},
		store:   settings.NewMemoryStore(),
		history: &fakeHistory{},
		events:  &events{},
	}
	f.manager = downloads.NewManager(root, blobs, downloads.AcceptPrompter)
	f.ctrl = NewController(f.cfg, ControllerDeps{
		Acquirer:  f.acq,
		Encoders:  f.factory,
		Saver:     downloads.NewBlobSaver(blobs, f.manager, nil),
		Emitter:   f.events,
		Settings:  f.store,
		Tabs:      fakeTabs{ids: map[int]string{7: "tab-stream-7"}},
		Picker:    picker,
		History:   f.history,
		Durations: fakeDurations{seconds: 4.5},
		Now:       func() time.Time { return fixedNow },
	})
	return f
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestControllerTabRecording(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.Update(ctx, func(s *settings.Settings) { s.FPS = 24 })
	require.NoError(t, err)

	err = f.ctrl.Start(ctx, dto.StartCaptureRequest{Action: dto.ActionStartCapture, CaptureMode: "tab", TabID: intPtr(7)})
	require.NoError(t, err)

	src := f.acq.last()
	assert.Equal(t, "tab-stream-7", src.StreamID)
	assert.Equal(t, 24, src.FPS)
	assert.Equal(t, 2500000, src.VideoBitsPerSecond)
	assert.True(t, src.WantAudio)

	st, _ := f.store.Load(ctx)
	assert.True(t, st.IsRecording)
	assert.Equal(t, fixedNow.UnixMilli(), st.StartTime)

	status := f.ctrl.Status()
	assert.True(t, status.IsRecording)
	assert.Equal(t, "recording", status.State)
	assert.Equal(t, fixedNow.UnixMilli(), status.StartTime)

	assert.ErrorIs(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "tab", TabID: intPtr(7)}), recorder.ErrAlreadyRecording)

	f.factory.current().onChunk(media.NewChunk([]byte("webm-bytes")))
	require.NoError(t, f.ctrl.Stop(ctx))

	data, err := os.ReadFile(filepath.Join(f.root, "recording_2024-05-06T07-08-09.webm"))
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))

	st, _ = f.store.Load(ctx)
	assert.False(t, st.IsRecording)
	assert.Zero(t, st.StartTime)

	require.Eventually(t, func() bool { return len(f.history.done()) == 1 }, time.Second, 5*time.Millisecond)
	rec := f.history.done()[0]
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, []string{"recording_2024-05-06T07-08-09.webm"}, rec.Files)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 4.5, *rec.DurationSeconds)
	assert.Equal(t, "idle", f.ctrl.Status().State)
}

func TestControllerDesktopWithoutAudio(t *testing.T) {
	f := newFixture(t, fakePicker{sel: Selection{StreamID: "desk-1", CanRequestAudio: false}})
	ctx := context.Background()

	err := f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "browser", IncludeAudio: boolPtr(true)})
	require.NoError(t, err)

	src := f.acq.last()
	assert.Equal(t, models.ModeDesktop, src.Mode)
	assert.Equal(t, "desk-1", src.StreamID)
	assert.False(t, src.WantAudio)
	assert.Len(t, f.events.named(dto.ActionRecordingWarning), 1)

	require.NoError(t, f.ctrl.Stop(ctx))
	done := f.events.named(dto.ActionRecordingComplete)
	require.Len(t, done, 1)
	assert.True(t, done[0].(dto.RecordingComplete).Empty)

	require.Eventually(t, func() bool { return len(f.history.done()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StatusEmpty, f.history.done()[0].Status)
	assert.Len(t, f.events.named(dto.ActionRecordingWarning), 1)
}

func TestControllerPickerCancelled(t *testing.T) {
	f := newFixture(t, fakePicker{err: acquirer.ErrPickerCancelled})
	err := f.ctrl.Start(context.Background(), dto.StartCaptureRequest{CaptureMode: "desktop"})
	assert.ErrorIs(t, err, acquirer.ErrPickerCancelled)
	assert.Equal(t, "idle", f.ctrl.Status().State)
}

func TestControllerStreamIDRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.ctrl.Start(ctx, dto.StartCaptureRequest{Action: dto.ActionStartCaptureWithStreamID, CaptureMode: "desktop"})
	assert.ErrorIs(t, err, ErrNoStreamID)

	err = f.ctrl.Start(ctx, dto.StartCaptureRequest{
		Action:      dto.ActionStartCaptureWithStreamID,
		CaptureMode: "desktop",
		StreamID:    "picked-elsewhere",
		Chunk:       &dto.ChunkOptions{Enabled: true, SizeMB: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "picked-elsewhere", f.acq.last().StreamID)
	require.NoError(t, f.ctrl.Stop(ctx))

	done := f.events.named(dto.ActionRecordingComplete)
	require.Len(t, done, 1)
	assert.True(t, done[0].(dto.RecordingComplete).Chunked)
}

func TestControllerWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.NoError(t, f.ctrl.Stop(ctx))
	assert.ErrorIs(t, f.ctrl.Pause(), recorder.ErrNotRecording)
	assert.ErrorIs(t, f.ctrl.Resume(), recorder.ErrNotPaused)
	assert.ErrorIs(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "tab"}), ErrNoTab)
	assert.Error(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "hologram"}))

	// failed starts do not block the next one
	require.NoError(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "tab", TargetTabID: intPtr(7)}))
	f.ctrl.Shutdown(ctx)
	assert.Equal(t, "idle", f.ctrl.Status().State)
}

func TestControllerPauseResumePersists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "tab", TabID: intPtr(7)}))
	require.NoError(t, f.ctrl.Pause())

	st, _ := f.store.Load(ctx)
	assert.Equal(t, fixedNow.UnixMilli(), st.PauseTime)
	status := f.ctrl.Status()
	assert.True(t, status.IsPaused)
	assert.False(t, status.IsRecording, "a paused session is not recording")
	assert.Equal(t, "paused", status.State)
	assert.Equal(t, media.StatePaused, f.factory.current().State())

	require.NoError(t, f.ctrl.Resume())
	st, _ = f.store.Load(ctx)
	assert.Zero(t, st.PauseTime)
	status = f.ctrl.Status()
	assert.True(t, status.IsRecording)
	assert.False(t, status.IsPaused)
	require.NoError(t, f.ctrl.Stop(ctx))
}

func TestControllerStartRightAfterStop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := dto.StartCaptureRequest{CaptureMode: "tab", TabID: intPtr(7)}

	const rounds = 200
	for i := 0; i < rounds; i++ {
		require.NoError(t, f.ctrl.Start(ctx, req), "start %d", i)
		require.NoError(t, f.ctrl.Stop(ctx), "stop %d", i)
		assert.Equal(t, "idle", f.ctrl.Status().State)
	}

	f.ctrl.Shutdown(ctx)
	assert.Len(t, f.history.done(), rounds)
}

func TestControllerStopWhileChoosingSource(t *testing.T) {
	picker := &gatedPicker{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, picker)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		errc <- f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "desktop"})
	}()
	<-picker.entered

	require.NoError(t, f.ctrl.Stop(ctx))
	close(picker.release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, recorder.ErrStartCancelled)
	case <-time.After(time.Second):
		t.Fatal("start did not return")
	}
	assert.Zero(t, f.acq.calls(), "nothing is captured after a stop")
	assert.Equal(t, "idle", f.ctrl.Status().State)
	assert.Empty(t, f.events.named(dto.ActionRecordingStarted))

	// the cancel does not leak into the next start
	require.NoError(t, f.ctrl.Start(ctx, dto.StartCaptureRequest{CaptureMode: "tab", TabID: intPtr(7)}))
	assert.Equal(t, "recording", f.ctrl.Status().State)
	require.NoError(t, f.ctrl.Stop(ctx))
}
