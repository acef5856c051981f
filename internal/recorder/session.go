package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/acquirer"
	"github.com/dwnmf/Screen-recoder/internal/aggregator"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
)

// AudioUnavailableMessage is the warning sent when a session records
// without the audio the user asked for.
const AudioUnavailableMessage = "Recording without audio"

// Emitter receives session notifications. Emit must not block for long.
type Emitter interface {
	Emit(n dto.Notification)
}

// StreamAcquirer is implemented by *acquirer.Acquirer.
type StreamAcquirer interface {
	Acquire(ctx context.Context, d models.SourceDescriptor) (*acquirer.Result, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Acquirer StreamAcquirer
	Encoders media.EncoderFactory
	Saver    aggregator.Saver
	Emitter  Emitter
	Now      func() time.Time
}

// BufferLimits overrides the ledger thresholds. Zero values keep the defaults.
type BufferLimits struct {
	Warn    int64
	HardCap int64
}

// Options configure one session.
type Options struct {
	Source models.SourceDescriptor
	Chunk  aggregator.ChunkConfig
	// AudioNoticeSent is set when the caller already warned that audio is
	// unavailable, so the session does not repeat it.
	AudioNoticeSent bool

	Timeslice          time.Duration
	MonitorInterval    time.Duration
	VisualizerInterval time.Duration
	Limits             BufferLimits
}

// Summary describes a finished session.
type Summary struct {
	StartTime    time.Time
	EndTime      time.Time
	MimeType     string
	AudioEnabled bool
	Bytes        int64
	Chunked      bool
	Chunks       int
	Files        []string
	Empty        bool
	Err          error
}

// Status is a point-in-time view of a session.
type Status struct {
	State      State
	StartTime  time.Time
	PauseTime  time.Time
	BufferSize int64
}

// Session records one capture from acquisition to the saved file. It is
// used once and discarded after finalize.
type Session struct {
	deps Deps
	opts Options

	ledger *aggregator.Ledger

	mu              sync.Mutex
	state           State
	started         bool
	cancelAcquire   context.CancelFunc
	stream          *media.Stream
	encoder         media.Encoder
	mimeType        string
	audioEnabled    bool
	rotator         *aggregator.Rotator
	monitor         *aggregator.Monitor
	visualizer      *Visualizer
	startTime       time.Time
	pauseTime       time.Time
	totalBytes      int64
	audioNoticeSent bool
	summary         Summary

	finalizeOnce sync.Once
	done         chan struct{}
}

func NewSession(deps Deps, opts Options) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = aggregator.MonitorInterval
	}
	if opts.VisualizerInterval <= 0 {
		opts.VisualizerInterval = VisualizerInterval
	}
	if opts.Source.VideoBitsPerSecond <= 0 {
		opts.Source.VideoBitsPerSecond = DefaultVideoBitsPerSecond
	}

	return &Session{
		deps:            deps,
		opts:            opts,
		ledger:          aggregator.NewLedger(),
		audioNoticeSent: opts.AudioNoticeSent,
		done:            make(chan struct{}),
	}
}

// Start acquires the stream and starts encoding. On failure every partial
// resource is released and the session is finished.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.started = true
	s.state = StateAcquiring
	actx, cancel := context.WithCancel(ctx)
	s.cancelAcquire = cancel
	s.mu.Unlock()

	log.Info().Msgf("Acquiring %s stream %s (audio=%v)", s.opts.Source.Mode, s.opts.Source.StreamID, s.opts.Source.WantAudio)

	res, err := s.deps.Acquirer.Acquire(actx, s.opts.Source)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire capture stream")
		s.abort()
		return err
	}

	var notices []dto.Notification

	s.mu.Lock()
	if s.state != StateAcquiring {
		s.mu.Unlock()
		res.Stream.Release()
		s.abort()
		return ErrStartCancelled
	}
	s.stream = res.Stream
	s.audioEnabled = res.AudioEnabled
	if res.AudioDropped && !s.audioNoticeSent {
		s.audioNoticeSent = true
		notices = append(notices, dto.NewRecordingWarning(AudioUnavailableMessage))
	}

	mimeType := SelectMimeType(s.deps.Encoders)
	enc, err := s.deps.Encoders.NewEncoder(res.Stream, media.EncoderOptions{
		MimeType:           mimeType,
		VideoBitsPerSecond: s.opts.Source.VideoBitsPerSecond,
	})
	if err != nil {
		s.mu.Unlock()
		s.abort()
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	enc.OnChunk(s.handleChunk)
	enc.OnError(s.handleEncoderError)
	enc.OnStopped(s.handleStopped)

	now := s.deps.Now()
	chunk := s.opts.Chunk
	if chunk.BaseName == "" {
		chunk.BaseName = BaseName(now)
	}

	s.encoder = enc
	s.mimeType = mimeType
	s.startTime = now
	s.rotator = aggregator.NewRotator(context.Background(), chunk, s.ledger, s.deps.Saver, BlobType, s.handleChunkError)
	s.monitor = aggregator.NewMonitor(s.ledger, s.opts.MonitorInterval, s.handleReport, s.handleHardCap)
	s.monitor.SetLimits(s.opts.Limits.Warn, s.opts.Limits.HardCap)

	if err := enc.Start(s.opts.Timeslice); err != nil {
		s.mu.Unlock()
		s.abort()
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	s.monitor.Start()
	if src := res.Stream.LevelSource(); src != nil {
		s.visualizer = NewVisualizer(src, s.opts.VisualizerInterval, s.handleLevels)
		s.visualizer.Start()
	}
	s.state = StateRecording
	s.mu.Unlock()

	log.Info().Msgf("Recording started with %s at %d bps (chunked=%v)", mimeType, s.opts.Source.VideoBitsPerSecond, chunk.Enabled)

	for _, n := range notices {
		s.emit(n)
	}
	s.emit(dto.NewRecordingStarted(now.UnixMilli()))
	return nil
}

// Pause suspends the encoder. Buffered data is left alone.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	if err := s.encoder.Pause(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to pause encoder: %w", err)
	}
	s.state = StatePaused
	s.pauseTime = s.deps.Now()
	pauseTime := s.pauseTime
	s.mu.Unlock()

	s.emit(dto.NewRecordingPaused(pauseTime.UnixMilli()))
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	if err := s.encoder.Resume(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to resume encoder: %w", err)
	}
	s.state = StateRecording
	s.pauseTime = time.Time{}
	resumeTime := s.deps.Now()
	s.mu.Unlock()

	s.emit(dto.NewRecordingResumed(resumeTime.UnixMilli()))
	return nil
}

// Stop ends the session and blocks until finalize has run. It returns the
// save error, if any. Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return nil
	case StateAcquiring:
		s.state = StateStopping
		cancel := s.cancelAcquire
		s.mu.Unlock()
		cancel()
	case StateRecording, StatePaused:
		s.state = StateStopping
		enc, monitor := s.encoder, s.monitor
		s.mu.Unlock()

		monitor.Stop()
		if err := enc.Stop(); err != nil {
			log.Error().Err(err).Msg("Encoder stop failed, finalizing directly")
			go s.finalize()
		}
	default:
		s.mu.Unlock()
	}
	return s.wait(ctx)
}

// Done is closed once the session is finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Summary is valid after Done is closed.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:      s.state,
		StartTime:  s.startTime,
		PauseTime:  s.pauseTime,
		BufferSize: s.ledger.Size(),
	}
}

func (s *Session) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Summary().Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) emit(n dto.Notification) {
	if s.deps.Emitter != nil {
		s.deps.Emitter.Emit(n)
	}
}

func (s *Session) handleChunk(c media.Chunk) {
	if c.Size() == 0 {
		return
	}

	s.mu.Lock()
	if !s.state.Active() && s.state != StateStopping {
		s.mu.Unlock()
		return
	}
	s.ledger.Add(c)
	s.totalBytes += c.Size()
	rotator := s.rotator
	s.mu.Unlock()

	if rotator != nil {
		rotator.MaybeFlush()
	}
}

func (s *Session) handleEncoderError(err error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateRecording {
		log.Debug().Err(err).Msgf("Ignoring encoder error in state %s", state)
		return
	}

	kind, message := ClassifyEncoderError(err)
	log.Error().Err(err).Msgf("Encoder error (%s), stopping recording", kind)
	s.emit(dto.NewRecordingError(message))

	go func() {
		if err := s.Stop(context.Background()); err != nil {
			log.Error().Err(err).Msg("Stop after encoder error failed")
		}
	}()
}

func (s *Session) handleStopped() {
	go s.finalize()
}

func (s *Session) handleReport(r aggregator.Report) {
	s.emit(dto.NewBufferSizeUpdate(r.Size, r.Formatted, r.Warning))
}

// handleHardCap runs on the monitor goroutine, which Stop waits for.
func (s *Session) handleHardCap(int64) {
	go func() {
		if err := s.Stop(context.Background()); err != nil {
			log.Error().Err(err).Msg("Automatic stop failed")
		}
	}()
}

func (s *Session) handleChunkError(err error) {
	s.emit(dto.NewRecordingWarning(err.Error()))
}

func (s *Session) handleLevels(levels []uint8) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateRecording {
		s.emit(dto.NewAudioData(levels))
	}
}

// abort tears down a session whose start failed. No completion is emitted.
func (s *Session) abort() {
	s.mu.Lock()
	stream, rotator, monitor := s.stream, s.rotator, s.monitor
	s.stream, s.encoder, s.rotator, s.monitor = nil, nil, nil, nil
	s.state = StateIdle
	s.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if rotator != nil {
		rotator.Abort()
	}
	if stream != nil {
		stream.Release()
	}
	s.ledger.Reset()
	s.finalizeOnce.Do(func() { close(s.done) })
}

func (s *Session) finalize() {
	s.finalizeOnce.Do(s.runFinalize)
}

func (s *Session) runFinalize() {
	s.mu.Lock()
	s.state = StateFinalizing
	stream, rotator, monitor, visualizer := s.stream, s.rotator, s.monitor, s.visualizer
	summary := Summary{
		StartTime:    s.startTime,
		MimeType:     s.mimeType,
		AudioEnabled: s.audioEnabled,
		Bytes:        s.totalBytes,
	}
	s.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if visualizer != nil {
		visualizer.Stop()
	}

	ctx := context.Background()
	var complete dto.RecordingComplete

	if rotator != nil && rotator.Enabled() {
		summary.Err = rotator.Finish(ctx)
		summary.Chunked = true
		summary.Chunks = rotator.SavedChunks()
		summary.Files = rotator.Files()
		complete = dto.NewChunkedRecordingComplete(summary.Chunks, summary.Err)
	} else {
		blob := s.ledger.Blob(BlobType)
		if blob.Size() == 0 {
			summary.Empty = true
			complete = dto.NewEmptyRecordingComplete()
		} else {
			res, err := s.deps.Saver.Save(ctx, aggregator.SaveRequest{
				Blob:           blob,
				Filename:       Filename(s.deps.Now()),
				SaveAs:         true,
				ConflictAction: aggregator.ConflictUniquify,
			})
			if err != nil {
				summary.Err = fmt.Errorf("failed to save recording: %w", err)
			} else {
				summary.Files = []string{res.Filename}
			}
			complete = dto.NewRecordingComplete(summary.Err)
		}
	}

	if stream != nil {
		stream.Release()
	}
	s.ledger.Reset()
	summary.EndTime = s.deps.Now()

	s.mu.Lock()
	s.summary = summary
	s.state = StateIdle
	s.stream, s.encoder, s.rotator, s.monitor, s.visualizer = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if summary.Err != nil {
		log.Error().Err(summary.Err).Msg("Recording finished with error")
	} else {
		log.Info().Msgf("Recording finished: %s in %d file(s)", aggregator.FormatBytes(summary.Bytes), len(summary.Files))
	}

	s.emit(complete)
	close(s.done)
}
