package webrtc

import (
	"strings"
	"sync"
	"time"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// supportedTypes are the recorder formats backed by the codecs the media
// engine negotiates.
var supportedTypes = map[string]bool{
	"video/webm;codecs=vp9": true,
	"video/webm;codecs=vp8": true,
	"video/webm":            true,
}

// Encoder collects the RTP payloads of a stream's tracks and emits them as a
// chunk every timeslice. Payloads arriving while paused are dropped.
type Encoder struct {
	feeds     []*feed
	mimeType  string
	onBitrate func(int)
	bitrate   int

	mu        sync.Mutex
	state     media.RecorderState
	buf       []byte
	cancels   []func()
	onChunk   func(media.Chunk)
	onStopped func()
	onError   func(error)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newEncoder(feeds []*feed, opts media.EncoderOptions, onBitrate func(int)) *Encoder {
	return &Encoder{
		feeds:     feeds,
		mimeType:  opts.MimeType,
		bitrate:   opts.VideoBitsPerSecond,
		onBitrate: onBitrate,
		state:     media.StateInactive,
		stopCh:    make(chan struct{}),
	}
}

func (e *Encoder) OnChunk(f func(media.Chunk)) { e.onChunk = f }
func (e *Encoder) OnStopped(f func())          { e.onStopped = f }
func (e *Encoder) OnError(f func(error))       { e.onError = f }
func (e *Encoder) MimeType() string            { return e.mimeType }

func (e *Encoder) State() media.RecorderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Encoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	if e.state != media.StateInactive || e.cancels != nil {
		e.mu.Unlock()
		return media.NewDeviceError(media.ErrNameInvalidState, "encoder already started")
	}
	for _, f := range e.feeds {
		if f.isClosed() {
			e.mu.Unlock()
			return media.NewDeviceError(media.ErrNameInvalidState, "track %s has ended", f.id)
		}
	}
	e.state = media.StateRecording
	for _, f := range e.feeds {
		e.cancels = append(e.cancels, f.subscribe(e.write))
	}
	e.mu.Unlock()

	if e.onBitrate != nil && e.bitrate > 0 {
		e.onBitrate(e.bitrate)
	}

	e.wg.Add(1)
	go e.run(timeslice)
	return nil
}

func (e *Encoder) run(timeslice time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	var ended <-chan struct{}
	if len(e.feeds) > 0 {
		ended = e.feeds[0].ended()
	}

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.flush()
		case <-ended:
			ended = nil
			e.mu.Lock()
			active := e.state != media.StateInactive
			onError := e.onError
			e.mu.Unlock()
			if active && onError != nil {
				onError(media.NewDeviceError(media.ErrNameNotReadable, "capture track %s ended", e.feeds[0].id))
			}
		}
	}
}

func (e *Encoder) write(payload []byte) {
	e.mu.Lock()
	if e.state == media.StateRecording {
		e.buf = append(e.buf, payload...)
	}
	e.mu.Unlock()
}

func (e *Encoder) flush() {
	e.mu.Lock()
	if len(e.buf) == 0 {
		e.mu.Unlock()
		return
	}
	data := e.buf
	e.buf = nil
	onChunk := e.onChunk
	e.mu.Unlock()

	if onChunk != nil {
		onChunk(media.NewChunk(data))
	}
}

func (e *Encoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != media.StateRecording {
		return media.NewDeviceError(media.ErrNameInvalidState, "cannot pause in state %s", e.state)
	}
	e.state = media.StatePaused
	return nil
}

func (e *Encoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != media.StatePaused {
		return media.NewDeviceError(media.ErrNameInvalidState, "cannot resume in state %s", e.state)
	}
	e.state = media.StateRecording
	return nil
}

// Stop delivers the buffered tail as a final chunk, then the stopped event.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if e.state == media.StateInactive {
		e.mu.Unlock()
		return media.NewDeviceError(media.ErrNameInvalidState, "encoder is not running")
	}
	e.state = media.StateInactive
	cancels := e.cancels
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	close(e.stopCh)
	e.wg.Wait()

	e.flush()
	if e.onStopped != nil {
		e.onStopped()
	}
	return nil
}

// EncoderFactory creates encoders for streams acquired from a StreamHandler.
type EncoderFactory struct {
	handler *StreamHandler
}

func (f EncoderFactory) IsTypeSupported(mimeType string) bool {
	return supportedTypes[strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))]
}

func (f EncoderFactory) NewEncoder(stream *media.Stream, opts media.EncoderOptions) (media.Encoder, error) {
	if !f.IsTypeSupported(opts.MimeType) {
		return nil, media.NewDeviceError(media.ErrNameNotSupported, "unsupported mime type %q", opts.MimeType)
	}

	var feeds []*feed
	for _, t := range stream.Tracks() {
		if h, ok := t.(*trackHandle); ok {
			feeds = append(feeds, h.feed)
		}
	}
	if len(feeds) == 0 {
		return nil, media.NewDeviceError(media.ErrNameNotSupported, "stream %s has no remote tracks", stream.ID())
	}

	var onBitrate func(int)
	if f.handler != nil {
		streamID := stream.ID()
		onBitrate = func(bps int) { f.handler.limitBitrate(streamID, bps) }
	}
	return newEncoder(feeds, opts, onBitrate), nil
}
