package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/aggregator"
	"github.com/dwnmf/Screen-recoder/internal/config"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
	"github.com/dwnmf/Screen-recoder/internal/recorder"
	"github.com/dwnmf/Screen-recoder/internal/settings"
)

const (
	settingsTimeout = 2 * time.Second
	durationTimeout    = 10 * time.Second
)

var (
	ErrNoTab      = errors.New("no tab to capture")
	ErrNoStreamID = errors.New("streamId is required")
)

// TabCapturer resolves a tab to a capture stream id.
type TabCapturer interface {
	GetMediaStreamID(ctx context.Context, tabID int) (string, error)
}

// Selection is the result of the desktop picker.
type Selection struct {
	StreamID        string
	CanRequestAudio bool
}

// DesktopPicker asks the user to choose a screen or window.
type DesktopPicker interface {
	Choose(ctx context.Context, wantAudio bool) (Selection, error)
}

// HistoryStore is implemented by *repository.RecordingRepository.
type HistoryStore interface {
	CreateRecording(ctx context.Context, rec *models.Recording) error
	CompleteRecording(ctx context.Context, rec *models.Recording) error
}

// DurationReader is implemented by *ffmpeg.MetadataReader.
type DurationReader interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ControllerDeps are the collaborators of a Controller. History and Durations
// are optional.
type ControllerDeps struct {
	Acquirer  recorder.StreamAcquirer
	Encoders  media.EncoderFactory
	Saver     aggregator.Saver
	Emitter   recorder.Emitter
	Settings  settings.Store
	Tabs      TabCapturer
	Picker    DesktopPicker
	History   HistoryStore
	Durations DurationReader
	Now       func() time.Time
}

// Controller owns at most one recording session at a time and keeps the
// persisted in-progress markers in step with it.
type Controller struct {
	config *config.Config
	deps   ControllerDeps
	limits recorder.BufferLimits

	mu          sync.Mutex
	session     *recorder.Session
	starting    bool
	cancelStart bool
	wg          sync.WaitGroup
}

func NewController(cfg *config.Config, deps ControllerDeps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Controller{
		config: cfg,
		deps:   deps,
	}
}

// SetBufferLimits overrides the session buffer thresholds.
func (c *Controller) SetBufferLimits(l recorder.BufferLimits) {
	c.limits = l
}

// Start handles startCapture and startCaptureWithStreamId.
func (c *Controller) Start(ctx context.Context, req dto.StartCaptureRequest) error {
	c.mu.Lock()
	if c.liveSession() != nil || c.starting {
		c.mu.Unlock()
		return recorder.ErrAlreadyRecording
	}
	c.session = nil
	c.starting = true
	c.cancelStart = false
	c.mu.Unlock()

	sess, rec, err := c.prepare(ctx, req)

	c.mu.Lock()
	cancelled := c.cancelStart
	c.starting = false
	c.cancelStart = false
	if err == nil && !cancelled {
		c.session = sess
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if cancelled {
		log.Info().Msg("Recording stopped while its source was being chosen")
		return recorder.ErrStartCancelled
	}

	if err := sess.Start(ctx); err != nil {
		c.mu.Lock()
		if c.session == sess {
			c.session = nil
		}
		c.mu.Unlock()
		return err
	}

	rec.StartedAt = sess.Status().StartTime
	rec.CreatedAt = rec.StartedAt
	rec.UpdatedAt = rec.StartedAt
	c.createHistory(rec)

	c.wg.Add(1)
	go c.watch(sess, rec)

	c.mu.Lock()
	cancelled = c.cancelStart
	c.cancelStart = false
	c.mu.Unlock()
	if cancelled {
		log.Info().Msg("Recording stopped while it was starting")
		if err := c.Stop(ctx); err != nil {
			return err
		}
		return recorder.ErrStartCancelled
	}
	return nil
}

// prepare resolves the request into a ready-to-start session.
func (c *Controller) prepare(ctx context.Context, req dto.StartCaptureRequest) (*recorder.Session, *models.Recording, error) {
	mode, err := models.ParseCaptureMode(req.CaptureMode)
	if err != nil {
		return nil, nil, err
	}

	st := c.loadSettings(ctx)
	source := models.SourceDescriptor{
		Mode:               mode,
		StreamID:           req.StreamID,
		WantAudio:          st.IncludeAudio,
		FPS:                firstPositive(req.FPS, st.FPS, c.config.DefaultFPS),
		VideoBitsPerSecond: firstPositive(req.VideoBitsPerSecond, st.VideoBitsPerSecond, c.config.DefaultVideoBitsPerSecond),
	}
	if req.IncludeAudio != nil {
		source.WantAudio = *req.IncludeAudio
	}

	chunkOpts := dto.ChunkOptions{Enabled: st.ChunkEnabled, SizeMB: st.ChunkSizeMB, Folder: st.ChunkFolder}
	if req.Chunk != nil {
		chunkOpts = *req.Chunk
	}
	chunk := aggregator.NewChunkConfig(chunkOpts.Enabled, firstPositive(chunkOpts.SizeMB, c.config.DefaultChunkSizeMB), chunkOpts.Folder, "")

	audioNoticeSent := false
	if req.Action != dto.ActionStartCaptureWithStreamID {
		switch mode {
		case models.ModeTab:
			tabID, ok := req.Tab()
			if !ok {
				return nil, nil, ErrNoTab
			}
			id, err := c.deps.Tabs.GetMediaStreamID(ctx, tabID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get tab stream id: %w", err)
			}
			source.StreamID = id
		case models.ModeDesktop:
			sel, err := c.deps.Picker.Choose(ctx, source.WantAudio)
			if err != nil {
				return nil, nil, err
			}
			source.StreamID = sel.StreamID
			if source.WantAudio && !sel.CanRequestAudio {
				source.WantAudio = false
				audioNoticeSent = true
				c.Emit(dto.NewRecordingWarning(recorder.AudioUnavailableMessage))
			}
		}
	}
	if source.StreamID == "" {
		return nil, nil, ErrNoStreamID
	}

	sess := recorder.NewSession(recorder.Deps{
		Acquirer: c.deps.Acquirer,
		Encoders: c.deps.Encoders,
		Saver:    c.deps.Saver,
		Emitter:  c,
		Now:      c.deps.Now,
	}, recorder.Options{
		Source:          source,
		Chunk:           chunk,
		AudioNoticeSent: audioNoticeSent,
		Limits:          c.limits,
	})

	rec := &models.Recording{
		ID:       uuid.New().String(),
		Mode:     mode,
		StreamID: source.StreamID,
		Status:   models.StatusRecording,
	}
	return sess, rec, nil
}

// Stop ends the active session and waits for it to finish. A start still
// resolving its source is abandoned. Without a session it succeeds.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	if c.starting || (sess != nil && !isDone(sess) && sess.Status().State == recorder.StateIdle) {
		c.cancelStart = true
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	err := sess.Stop(ctx)

	c.mu.Lock()
	if c.session == sess && isDone(sess) {
		c.session = nil
	}
	c.mu.Unlock()
	return err
}

func (c *Controller) Pause() error {
	sess := c.current()
	if sess == nil {
		return recorder.ErrNotRecording
	}
	return sess.Pause()
}

func (c *Controller) Resume() error {
	sess := c.current()
	if sess == nil {
		return recorder.ErrNotPaused
	}
	return sess.Resume()
}

// Status answers getStatus.
func (c *Controller) Status() dto.StatusResponse {
	sess := c.current()
	if sess == nil {
		return dto.StatusResponse{State: recorder.StateIdle.String()}
	}
	st := sess.Status()
	resp := dto.StatusResponse{
		IsRecording: st.State == recorder.StateRecording,
		IsPaused:    st.State == recorder.StatePaused,
		State:       st.State.String(),
		BufferSize:  st.BufferSize,
	}
	if !st.StartTime.IsZero() {
		resp.StartTime = st.StartTime.UnixMilli()
	}
	return resp
}

// Shutdown stops the active session and waits for history to be written.
func (c *Controller) Shutdown(ctx context.Context) {
	if err := c.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to stop recording on shutdown")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timed out waiting for recording history")
	}
}

// Emit persists the in-progress markers carried by n and forwards it.
func (c *Controller) Emit(n dto.Notification) {
	switch v := n.(type) {
	case dto.RecordingStarted:
		c.updateSettings(func(s *settings.Settings) {
			s.IsRecording = true
			s.StartTime = v.StartTime
			s.PauseTime = 0
		})
	case dto.RecordingPaused:
		c.updateSettings(func(s *settings.Settings) { s.PauseTime = v.PauseTime })
	case dto.RecordingResumed:
		c.updateSettings(func(s *settings.Settings) { s.PauseTime = 0 })
	case dto.RecordingComplete:
		c.updateSettings(func(s *settings.Settings) {
			s.IsRecording = false
			s.StartTime = 0
			s.PauseTime = 0
		})
	}

	if c.deps.Emitter != nil {
		c.deps.Emitter.Emit(n)
	}
}

func (c *Controller) current() *recorder.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// liveSession returns the session unless it has already finished. Callers
// hold mu.
func (c *Controller) liveSession() *recorder.Session {
	if c.session == nil || isDone(c.session) {
		return nil
	}
	return c.session
}

func isDone(sess *recorder.Session) bool {
	select {
	case <-sess.Done():
		return true
	default:
		return false
	}
}

func (c *Controller) watch(sess *recorder.Session, rec *models.Recording) {
	defer c.wg.Done()
	<-sess.Done()

	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()

	sum := sess.Summary()
	rec.MimeType = sum.MimeType
	rec.AudioEnabled = sum.AudioEnabled
	rec.Chunked = sum.Chunked
	rec.Chunks = sum.Chunks
	rec.Files = sum.Files
	rec.Bytes = sum.Bytes
	completed := sum.EndTime
	rec.CompletedAt = &completed

	switch {
	case sum.Err != nil:
		rec.Status = models.StatusFailed
		rec.Error = sum.Err.Error()
	case sum.Empty:
		rec.Status = models.StatusEmpty
	default:
		rec.Status = models.StatusCompleted
		rec.DurationSeconds = c.measure(sum.Files)
	}

	c.completeHistory(rec)
}

// measure sums the durations of the written files. Nil when any is unknown.
func (c *Controller) measure(files []string) *float64 {
	if c.deps.Durations == nil || len(files) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), durationTimeout)
	defer cancel()

	total := 0.0
	for _, f := range files {
		d, err := c.deps.Durations.Duration(ctx, filepath.Join(c.config.DownloadsDir, filepath.FromSlash(f)))
		if err != nil {
			log.Debug().Err(err).Msgf("Could not read duration of %s", f)
			return nil
		}
		total += d
	}
	return &total
}

func (c *Controller) createHistory(rec *models.Recording) {
	if c.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	defer cancel()
	if err := c.deps.History.CreateRecording(ctx, rec); err != nil {
		log.Error().Err(err).Msgf("Failed to record history for %s", rec.ID)
	}
}

func (c *Controller) completeHistory(rec *models.Recording) {
	if c.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	defer cancel()
	if err := c.deps.History.CompleteRecording(ctx, rec); err != nil {
		log.Error().Err(err).Msgf("Failed to complete history for %s", rec.ID)
		return
	}
	log.Info().Msgf("Recording %s stored as %s", rec.ID, rec.Status)
}

func (c *Controller) loadSettings(ctx context.Context) settings.Settings {
	if c.deps.Settings == nil {
		return settings.Defaults()
	}
	st, err := c.deps.Settings.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		return settings.Defaults()
	}
	return st
}

func (c *Controller) updateSettings(fn func(*settings.Settings)) {
	if c.deps.Settings == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	defer cancel()
	if _, err := c.deps.Settings.Update(ctx, fn); err != nil {
		log.Warn().Err(err).Msg("Failed to persist recording state")
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
