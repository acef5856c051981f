package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/acquirer"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/media"
	"github.com/dwnmf/Screen-recoder/internal/models"
	"github.com/dwnmf/Screen-recoder/internal/service"
)

const (
	// ControlChannelLabel is the client-created channel carrying commands.
	ControlChannelLabel = "control"
	// EventsChannelLabel is the server-created channel carrying notifications.
	EventsChannelLabel = "events"

	gatherTimeout       = 5 * time.Second
	defaultTrackTimeout = 5 * time.Second
	controlQueueSize    = 32
)

var ErrSessionNotFound = errors.New("peer session not found")

// SessionOffer represents a WebRTC offer from client. The capture mode and
// tab describe what the published tracks show.
type SessionOffer struct {
	SessionID   string `json:"session_id"`
	SDP         string `json:"sdp"`
	Type        string `json:"type"`
	CaptureMode string `json:"capture_mode"`
	TabID       *int   `json:"tab_id,omitempty"`
}

// SessionAnswer represents a WebRTC answer to client
type SessionAnswer struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
}

// ICECandidate represents an ICE candidate
type ICECandidate struct {
	SessionID string                  `json:"session_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ControlFunc answers one control message. A nil reply sends nothing.
type ControlFunc func(ctx context.Context, data []byte) (interface{}, error)

// peer is one published capture source.
type peer struct {
	id          string
	mode        models.CaptureMode
	tabID       *int
	createdAt   time.Time
	expectAudio bool
	pc          *webrtc.PeerConnection

	mu         sync.Mutex
	video      *feed
	audio      *feed
	videoSSRC  uint32
	events     *webrtc.DataChannel
	closed     bool
	videoReady chan struct{}
	audioReady chan struct{}
}

func newPeer(id string, mode models.CaptureMode, tabID *int, expectAudio bool) *peer {
	return &peer{
		id:          id,
		mode:        mode,
		tabID:       tabID,
		createdAt:   time.Now(),
		expectAudio: expectAudio,
		videoReady:  make(chan struct{}),
		audioReady:  make(chan struct{}),
	}
}

// attach installs the feed for a newly received remote track.
func (p *peer) attach(f *feed, ssrc uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch f.kind {
	case media.KindVideo:
		if p.video == nil {
			p.video = f
			p.videoSSRC = ssrc
			close(p.videoReady)
		}
	case media.KindAudio:
		if p.audio == nil {
			p.audio = f
			close(p.audioReady)
		}
	}
}

func (p *peer) feeds() (video, audio *feed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video, p.audio
}

func (p *peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// StreamHandler manages the WebRTC connections that publish capture sources.
// It is the capture backend of the recorder: devices, tab capture, desktop
// picker and encoder factory.
type StreamHandler struct {
	peers  sync.Map // map[sessionID]*peer
	api    *webrtc.API
	config webrtc.Configuration

	mu           sync.RWMutex
	control      ControlFunc
	trackTimeout time.Duration
}

// NewStreamHandler creates a new WebRTC stream handler
func NewStreamHandler(stunServers []string) *StreamHandler {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	// Create MediaEngine
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		log.Error().Err(err).Msg("Failed to register default codecs")
	}

	// Create API with MediaEngine
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	return &StreamHandler{
		api:          api,
		config:       config,
		trackTimeout: defaultTrackTimeout,
	}
}

// SetControlHandler routes control channel messages to fn.
func (h *StreamHandler) SetControlHandler(fn ControlFunc) {
	h.mu.Lock()
	h.control = fn
	h.mu.Unlock()
}

// SetTrackTimeout bounds how long an acquisition waits for remote tracks.
func (h *StreamHandler) SetTrackTimeout(d time.Duration) {
	h.mu.Lock()
	h.trackTimeout = d
	h.mu.Unlock()
}

// Encoders returns the encoder factory for streams acquired here.
func (h *StreamHandler) Encoders() EncoderFactory {
	return EncoderFactory{handler: h}
}

// HandleOffer processes a WebRTC offer and returns an answer with the
// gathered candidates.
func (h *StreamHandler) HandleOffer(ctx context.Context, offer SessionOffer) (SessionAnswer, error) {
	mode, err := models.ParseCaptureMode(offer.CaptureMode)
	if err != nil {
		return SessionAnswer{}, err
	}
	if offer.SessionID == "" {
		return SessionAnswer{}, errors.New("session_id is required")
	}
	if _, exists := h.peers.Load(offer.SessionID); exists {
		return SessionAnswer{}, fmt.Errorf("session %s already exists", offer.SessionID)
	}

	// Create new peer connection
	peerConnection, err := h.api.NewPeerConnection(h.config)
	if err != nil {
		return SessionAnswer{}, fmt.Errorf("failed to create peer connection: %w", err)
	}

	sessionID := offer.SessionID
	p := newPeer(sessionID, mode, offer.TabID, strings.Contains(offer.SDP, "m=audio"))
	p.pc = peerConnection
	h.peers.Store(sessionID, p)

	fail := func(err error) (SessionAnswer, error) {
		h.CloseSession(sessionID)
		return SessionAnswer{}, err
	}

	// Setup connection state handlers
	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Msgf("WebRTC connection state changed: %s (session: %s)", state.String(), sessionID)

		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed ||
			state == webrtc.PeerConnectionStateDisconnected {
			h.CloseSession(sessionID)
		}
	})

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Msgf("ICE connection state changed: %s (session: %s)", state.String(), sessionID)
	})

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Msgf("Received track: kind=%s, id=%s, codec=%s (session: %s)",
			track.Kind(), track.ID(), track.Codec().MimeType, sessionID)

		kind := media.KindVideo
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			kind = media.KindAudio
		}
		f := newFeed(track.ID(), kind)
		p.attach(f, uint32(track.SSRC()))
		go h.readTrack(sessionID, track, f)
	})

	// Server sends notifications through the "events" channel
	eventsChannel, err := peerConnection.CreateDataChannel(EventsChannelLabel, nil)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to create events data channel (session: %s)", sessionID)
	} else {
		h.setupEventsChannel(p, eventsChannel)
	}

	// Client opens the "control" channel for commands
	peerConnection.OnDataChannel(func(dataChannel *webrtc.DataChannel) {
		log.Info().Msgf("Data channel opened by client: label=%s (session: %s)", dataChannel.Label(), sessionID)

		if dataChannel.Label() == ControlChannelLabel {
			h.setupControlChannel(sessionID, dataChannel)
		}
	})

	remote := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}
	if err := peerConnection.SetRemoteDescription(remote); err != nil {
		return fail(fmt.Errorf("failed to set remote description: %w", err))
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create answer: %w", err))
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("failed to set local description: %w", err))
	}

	select {
	case <-gatherComplete:
	case <-time.After(gatherTimeout):
		log.Warn().Msgf("ICE gathering timed out, answering with partial candidates (session: %s)", sessionID)
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	log.Info().Msgf("WebRTC %s source published (session: %s, audio: %v)", mode, sessionID, p.expectAudio)
	return SessionAnswer{
		SessionID: sessionID,
		SDP:       peerConnection.LocalDescription().SDP,
		Type:      webrtc.SDPTypeAnswer.String(),
	}, nil
}

// HandleICECandidate adds an ICE candidate to the peer connection
func (h *StreamHandler) HandleICECandidate(sessionID string, candidate webrtc.ICECandidateInit) error {
	p, ok := h.peer(sessionID)
	if !ok || p.pc == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (h *StreamHandler) readTrack(sessionID string, track *webrtc.TrackRemote, f *feed) {
	defer f.close()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msgf("Track %s stopped reading (session: %s)", track.ID(), sessionID)
			}
			return
		}
		f.publish(pkt.Payload)
	}
}

// limitBitrate asks the sender to keep its video under bps.
func (h *StreamHandler) limitBitrate(sessionID string, bps int) {
	p, ok := h.peer(sessionID)
	if !ok || p.pc == nil {
		return
	}
	p.mu.Lock()
	ssrc := p.videoSSRC
	p.mu.Unlock()
	if ssrc == 0 {
		return
	}

	err := p.pc.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{
		Bitrate: float32(bps),
		SSRCs:   []uint32{ssrc},
	}})
	if err != nil {
		log.Warn().Err(err).Msgf("Failed to send bitrate limit (session: %s)", sessionID)
	}
}

// setupEventsChannel keeps the channel used to relay notifications
func (h *StreamHandler) setupEventsChannel(p *peer, channel *webrtc.DataChannel) {
	channel.OnOpen(func() {
		log.Info().Msgf("Events data channel opened (session: %s)", p.id)
		p.mu.Lock()
		p.events = channel
		p.mu.Unlock()
	})

	channel.OnClose(func() {
		log.Info().Msgf("Events data channel closed (session: %s)", p.id)
		p.mu.Lock()
		p.events = nil
		p.mu.Unlock()
	})
}

// setupControlChannel answers commands in arrival order
func (h *StreamHandler) setupControlChannel(sessionID string, channel *webrtc.DataChannel) {
	queue := make(chan []byte, controlQueueSize)

	channel.OnOpen(func() {
		log.Info().Msgf("Control data channel opened (session: %s)", sessionID)
		go func() {
			for data := range queue {
				reply := h.handleControl(sessionID, data)
				if reply == nil {
					continue
				}
				if err := channel.SendText(string(reply)); err != nil {
					log.Warn().Err(err).Msgf("Failed to send control reply (session: %s)", sessionID)
				}
			}
		}()
	})

	var closeOnce sync.Once
	channel.OnClose(func() {
		log.Info().Msgf("Control data channel closed (session: %s)", sessionID)
		closeOnce.Do(func() { close(queue) })
	})

	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			log.Warn().Msgf("Ignoring binary control message (session: %s)", sessionID)
			return
		}
		select {
		case queue <- msg.Data:
		default:
			log.Warn().Msgf("Control queue full, dropping message (session: %s)", sessionID)
		}
	})
}

// handleControl runs one control message and encodes the reply.
func (h *StreamHandler) handleControl(sessionID string, data []byte) []byte {
	h.mu.RLock()
	control := h.control
	h.mu.RUnlock()

	var resp interface{}
	if control == nil {
		resp = dto.Failed(errors.New("control channel is not available"))
	} else {
		r, err := control(context.Background(), data)
		if err != nil {
			log.Warn().Err(err).Msgf("Rejected control message (session: %s)", sessionID)
			r = dto.Failed(err)
		}
		resp = r
	}
	if resp == nil {
		return nil
	}

	out, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to encode control reply (session: %s)", sessionID)
		return nil
	}
	return out
}

// GetUserMedia opens the published source named by the constraints.
func (h *StreamHandler) GetUserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	sourceID := c.Video.SourceID
	p, ok := h.peer(sourceID)
	if !ok || p.isClosed() {
		return nil, media.NewDeviceError(media.ErrNameNotFound, "no published source %q", sourceID)
	}

	h.mu.RLock()
	timeout := h.trackTimeout
	h.mu.RUnlock()

	if err := waitReady(ctx, p.videoReady, timeout); err != nil {
		return nil, err
	}

	video, audio := p.feeds()
	if video.isClosed() {
		return nil, media.NewDeviceError(media.ErrNameNotFound, "video track of %q has ended", sourceID)
	}
	tracks := []media.Track{&trackHandle{feed: video}}

	var meter *LevelMeter
	if c.WantsAudio() {
		if p.expectAudio && audio == nil {
			if err := waitReady(ctx, p.audioReady, timeout); err == nil {
				_, audio = p.feeds()
			}
		}
		if audio == nil || audio.isClosed() {
			return nil, media.NewDeviceError(media.ErrNameNotFound, "source %q has no audio track", sourceID)
		}
		meter = newLevelMeter(audio)
		tracks = append(tracks, &trackHandle{feed: audio, release: meter.Close})
	}

	stream := media.NewStream(sourceID, tracks...)
	if meter != nil {
		stream.SetLevelSource(meter)
	}
	return stream, nil
}

func waitReady(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return media.NewDeviceError(media.ErrNameInvalidState, "remote track not received yet")
	case <-ctx.Done():
		return media.NewDeviceError(media.ErrNameAbort, "%v", ctx.Err())
	}
}

// GetMediaStreamID returns the newest source published for a tab.
func (h *StreamHandler) GetMediaStreamID(_ context.Context, tabID int) (string, error) {
	p := h.newest(func(p *peer) bool {
		return p.mode == models.ModeTab && p.tabID != nil && *p.tabID == tabID
	})
	if p == nil {
		return "", fmt.Errorf("%w: no capture published for tab %d", ErrSessionNotFound, tabID)
	}
	return p.id, nil
}

// Choose selects the most recently published desktop source.
func (h *StreamHandler) Choose(_ context.Context, _ bool) (service.Selection, error) {
	p := h.newest(func(p *peer) bool { return p.mode == models.ModeDesktop })
	if p == nil {
		return service.Selection{}, fmt.Errorf("%w: no desktop source published", acquirer.ErrPickerCancelled)
	}
	return service.Selection{StreamID: p.id, CanRequestAudio: p.expectAudio}, nil
}

// Refresh replaces a stale desktop source with a newer one.
func (h *StreamHandler) Refresh(_ context.Context, staleID string) (string, error) {
	p := h.newest(func(p *peer) bool { return p.mode == models.ModeDesktop && p.id != staleID })
	if p == nil {
		return "", fmt.Errorf("%w: no desktop source besides %s", acquirer.ErrPickerCancelled, staleID)
	}
	return p.id, nil
}

func (h *StreamHandler) newest(match func(*peer) bool) *peer {
	var best *peer
	h.peers.Range(func(_, value interface{}) bool {
		p := value.(*peer)
		if p.isClosed() || !match(p) {
			return true
		}
		if best == nil || p.createdAt.After(best.createdAt) {
			best = p
		}
		return true
	})
	return best
}

func (h *StreamHandler) peer(sessionID string) (*peer, bool) {
	val, ok := h.peers.Load(sessionID)
	if !ok {
		return nil, false
	}
	return val.(*peer), true
}

func (h *StreamHandler) Name() string { return "webrtc" }

// Publish relays a notification to every open events channel.
func (h *StreamHandler) Publish(_ context.Context, _ dto.Notification, body []byte) error {
	var errs []error
	h.peers.Range(func(key, value interface{}) bool {
		p := value.(*peer)
		p.mu.Lock()
		channel := p.events
		p.mu.Unlock()
		if channel == nil || channel.ReadyState() != webrtc.DataChannelStateOpen {
			return true
		}
		if err := channel.SendText(string(body)); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", key, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// CloseSession closes WebRTC connection for a session
func (h *StreamHandler) CloseSession(sessionID string) error {
	val, ok := h.peers.LoadAndDelete(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	p := val.(*peer)

	p.mu.Lock()
	p.closed = true
	video, audio := p.video, p.audio
	p.events = nil
	p.mu.Unlock()

	for _, f := range []*feed{video, audio} {
		if f != nil {
			f.close()
		}
	}

	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			log.Error().Err(err).Msgf("Error closing peer connection (session: %s)", sessionID)
		}
	}

	log.Info().Msgf("WebRTC session closed: %s", sessionID)
	return nil
}

// Close closes every session.
func (h *StreamHandler) Close() {
	h.peers.Range(func(key, _ interface{}) bool {
		h.CloseSession(key.(string))
		return true
	})
}

// GetSessionStats returns statistics for all WebRTC sessions
func (h *StreamHandler) GetSessionStats() map[string]interface{} {
	stats := make(map[string]interface{})
	activeSessions := 0

	h.peers.Range(func(key, value interface{}) bool {
		activeSessions++
		sessionID := key.(string)
		p := value.(*peer)

		entry := map[string]interface{}{
			"capture_mode": string(p.mode),
			"audio":        p.expectAudio,
		}
		if p.tabID != nil {
			entry["tab_id"] = *p.tabID
		}
		if p.pc != nil {
			entry["connection_state"] = p.pc.ConnectionState().String()
			entry["ice_state"] = p.pc.ICEConnectionState().String()
		}
		if video, _ := p.feeds(); video != nil {
			packets, bytes := video.stats()
			entry["video_packets"] = packets
			entry["video_bytes"] = bytes
		}
		stats[sessionID] = entry
		return true
	})

	stats["total_active_sessions"] = activeSessions
	return stats
}
