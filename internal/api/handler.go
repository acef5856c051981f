package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/config"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/models"
	"github.com/dwnmf/Screen-recoder/internal/repository"
	"github.com/dwnmf/Screen-recoder/internal/settings"
	"github.com/dwnmf/Screen-recoder/internal/utils"
	webrtcHandler "github.com/dwnmf/Screen-recoder/internal/webrtc"
)

const defaultListLimit = 50

// MessageDispatcher is implemented by *service.Dispatcher.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, data []byte) (interface{}, error)
}

// RecordingStore is implemented by *repository.RecordingRepository.
type RecordingStore interface {
	GetRecordingByID(ctx context.Context, id string) (*models.Recording, error)
	ListRecordings(ctx context.Context, limit int) ([]*models.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
}

type Handler struct {
	dispatcher    MessageDispatcher
	settings      settings.Store
	recordings    RecordingStore // nil when history is disabled
	webrtcHandler *webrtcHandler.StreamHandler
	tokens        *utils.TokenIssuer
	config        *config.Config
}

// Constructor for Handler
func NewHandler(cfg *config.Config, dispatcher MessageDispatcher, store settings.Store, recordings RecordingStore, streams *webrtcHandler.StreamHandler, tokens *utils.TokenIssuer) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		settings:      store,
		recordings:    recordings,
		webrtcHandler: streams,
		tokens:        tokens,
		config:        cfg,
	}
}

func (handler *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := dto.HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Version:        "1.0.0",
		HistoryEnabled: handler.recordings != nil,
		AuthRequired:   handler.authRequired(),
	}
	if n, ok := handler.webrtcHandler.GetSessionStats()["total_active_sessions"].(int); ok {
		response.CaptureSources = n
	}
	handler.respondJSON(w, http.StatusOK, response)
}

// HandleMessage godoc
// @Summary      Send a recorder message
// @Description  Routes a command (startCapture, stopCapture, pauseCapture, resumeCapture, getStatus, saveRecording) or relays a notification
// @Tags         Recorder
// @Accept       json
// @Produce      json
// @Param        message  body      object  true  "Message with an action field"
// @Success      200      {object}  dto.ActionResponse
// @Success      204      "Notification relayed"
// @Failure      400      {object}  dto.ErrorResponse
// @Router       /api/recorder/messages [post]
func (handler *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := handler.readBody(w, r)
	if err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read message: %v", err))
		return
	}

	resp, err := handler.dispatcher.Dispatch(r.Context(), body)
	if err != nil {
		handler.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	handler.respondJSON(w, http.StatusOK, resp)
}

// Settings godoc
// @Summary      Read or update recorder settings
// @Description  GET returns the stored settings. PUT merges the given fields; the in-progress markers are owned by the recorder and cannot be changed here
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Success      200  {object}  settings.Settings
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/recorder/settings [get]
// @Router       /api/recorder/settings [put]
func (handler *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := handler.settings.Load(r.Context())
		if err != nil {
			handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load settings: %v", err))
			return
		}
		handler.respondJSON(w, http.StatusOK, s)

	case http.MethodPut:
		body, err := handler.readBody(w, r)
		if err != nil {
			handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read settings: %v", err))
			return
		}
		candidate := settings.Defaults()
		if err := json.Unmarshal(body, &candidate); err != nil {
			handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse settings: %v", err))
			return
		}
		if candidate.FPS < 0 || candidate.ChunkSizeMB < 0 || candidate.VideoBitsPerSecond < 0 {
			handler.respondError(w, http.StatusBadRequest, "numeric settings must not be negative")
			return
		}

		updated, err := handler.settings.Update(r.Context(), func(s *settings.Settings) {
			recording, start, pause := s.IsRecording, s.StartTime, s.PauseTime
			_ = json.Unmarshal(body, s)
			s.IsRecording, s.StartTime, s.PauseTime = recording, start, pause
		})
		if err != nil {
			handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save settings: %v", err))
			return
		}
		handler.respondJSON(w, http.StatusOK, updated)

	default:
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ListRecordings godoc
// @Summary      List recording history
// @Tags         Recordings
// @Produce      json
// @Param        limit  query     int  false  "Maximum entries (default 50)"
// @Success      200    {object}  dto.ListRecordingsResponse
// @Failure      503    {object}  dto.ErrorResponse
// @Router       /api/recorder/recordings [get]
func (handler *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if handler.recordings == nil {
		handler.respondError(w, http.StatusServiceUnavailable, "Recording history is disabled")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handler.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := handler.recordings.ListRecordings(r.Context(), limit)
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list recordings: %v", err))
		return
	}

	resp := dto.ListRecordingsResponse{Recordings: make([]dto.RecordingDTO, 0, len(recs))}
	for _, rec := range recs {
		resp.Recordings = append(resp.Recordings, toRecordingDTO(rec))
	}
	resp.Count = len(resp.Recordings)
	handler.respondJSON(w, http.StatusOK, resp)
}

// Recording godoc
// @Summary      Get or delete one history entry
// @Tags         Recordings
// @Produce      json
// @Param        recording_id  path      string  true  "Recording ID"
// @Success      200           {object}  dto.RecordingDTO
// @Failure      404           {object}  dto.ErrorResponse
// @Router       /api/recorder/recordings/{recording_id} [get]
// @Router       /api/recorder/recordings/{recording_id} [delete]
func (handler *Handler) Recording(w http.ResponseWriter, r *http.Request) {
	if handler.recordings == nil {
		handler.respondError(w, http.StatusServiceUnavailable, "Recording history is disabled")
		return
	}
	id := extractPathParam(r.URL.Path, "recordings")
	if id == "" {
		handler.respondError(w, http.StatusBadRequest, "recording id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := handler.recordings.GetRecordingByID(r.Context(), id)
		if errors.Is(err, repository.ErrRecordingNotFound) {
			handler.respondError(w, http.StatusNotFound, fmt.Sprintf("Recording not found: %s", id))
			return
		}
		if err != nil {
			handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get recording: %v", err))
			return
		}
		handler.respondJSON(w, http.StatusOK, toRecordingDTO(rec))

	case http.MethodDelete:
		err := handler.recordings.DeleteRecording(r.Context(), id)
		if errors.Is(err, repository.ErrRecordingNotFound) {
			handler.respondError(w, http.StatusNotFound, fmt.Sprintf("Recording not found: %s", id))
			return
		}
		if err != nil {
			handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete recording: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Pair godoc
// @Summary      Exchange the pairing code for a control token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        pair  body      dto.PairRequest  true  "Pairing code and client id"
// @Success      200   {object}  dto.PairResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/recorder/auth/pair [post]
func (handler *Handler) Pair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if handler.config.PairingCodeHash == "" || handler.tokens == nil {
		handler.respondError(w, http.StatusNotFound, "Pairing is not configured")
		return
	}

	var req dto.PairRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, handler.config.MaxMessageSize)).Decode(&req); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Code == "" {
		handler.respondError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := utils.CompareSecret(handler.config.PairingCodeHash, req.Code); err != nil {
		log.Warn().Msgf("Rejected pairing attempt from %s", r.RemoteAddr)
		handler.respondError(w, http.StatusUnauthorized, "Invalid pairing code")
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = "extension"
	}
	token, expiresAt, err := handler.tokens.GenerateToken(clientID)
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to issue token: %v", err))
		return
	}

	log.Info().Msgf("Paired client %s", clientID)
	handler.respondJSON(w, http.StatusOK, dto.PairResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// WebRTC Streaming Endpoints

// StartWebRTCStream godoc
// @Summary      Publish a capture source over WebRTC
// @Description  Negotiate a peer connection whose tracks become a recordable tab or desktop source
// @Tags         WebRTC
// @Accept       json
// @Produce      json
// @Param        offer  body      webrtc.SessionOffer  true  "WebRTC offer with session_id, SDP and capture mode"
// @Success      200    {object}  webrtc.SessionAnswer
// @Failure      400    {object}  dto.ErrorResponse
// @Failure      500    {object}  dto.ErrorResponse
// @Router       /api/recorder/webrtc/stream/offer [post]
func (handler *Handler) StartWebRTCStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var offer webrtcHandler.SessionOffer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse offer: %v", err))
		return
	}

	if offer.SessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if offer.SDP == "" {
		handler.respondError(w, http.StatusBadRequest, "sdp is required")
		return
	}

	log.Info().Msgf("Received WebRTC offer from session: %s", offer.SessionID)

	answer, err := handler.webrtcHandler.HandleOffer(r.Context(), offer)
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to handle offer: %v", err))
		return
	}

	log.Info().Msgf("Sending WebRTC answer to session: %s", offer.SessionID)
	handler.respondJSON(w, http.StatusOK, answer)
}

// HandleICECandidate godoc
// @Summary      Add ICE candidate for WebRTC connection
// @Description  Receive and add ICE candidates during WebRTC negotiation
// @Tags         WebRTC
// @Accept       json
// @Produce      json
// @Param        candidate  body      webrtc.ICECandidate  true  "ICE candidate with session_id"
// @Success      200        {object}  dto.SuccessResponse
// @Failure      400        {object}  dto.ErrorResponse
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/recorder/webrtc/stream/candidate [post]
func (handler *Handler) HandleICECandidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req webrtcHandler.ICECandidate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse candidate: %v", err))
		return
	}

	if req.SessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := handler.webrtcHandler.HandleICECandidate(req.SessionID, req.Candidate); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrtcHandler.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		handler.respondError(w, status, fmt.Sprintf("Failed to add ICE candidate: %v", err))
		return
	}

	handler.respondJSON(w, http.StatusOK, dto.SuccessResponse{
		Message: "ICE candidate added successfully",
		Data:    map[string]string{"session_id": req.SessionID},
	})
}

// CloseWebRTCStream godoc
// @Summary      Close WebRTC stream
// @Description  Close the WebRTC connection for a session. Its tracks end, which stops any recording using them
// @Tags         WebRTC
// @Produce      json
// @Param        session_id  path      string  true  "Session ID"
// @Success      200         {object}  dto.SuccessResponse
// @Failure      400         {object}  dto.ErrorResponse
// @Failure      404         {object}  dto.ErrorResponse
// @Router       /api/recorder/webrtc/stream/{session_id}/close [post]
func (handler *Handler) CloseWebRTCStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := extractPathParam(r.URL.Path, "stream")
	if sessionID == "" || sessionID == "close" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := handler.webrtcHandler.CloseSession(sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrtcHandler.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		handler.respondError(w, status, fmt.Sprintf("Failed to close session: %v", err))
		return
	}

	log.Info().Msgf("WebRTC session closed: %s", sessionID)
	handler.respondJSON(w, http.StatusOK, dto.SuccessResponse{
		Message: "WebRTC session closed successfully",
		Data:    map[string]string{"session_id": sessionID},
	})
}

// GetWebRTCStats godoc
// @Summary      Get WebRTC statistics
// @Description  Returns statistics for all published capture sources
// @Tags         WebRTC
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/recorder/webrtc/stats [get]
func (handler *Handler) GetWebRTCStats(w http.ResponseWriter, r *http.Request) {
	stats := handler.webrtcHandler.GetSessionStats()
	handler.respondJSON(w, http.StatusOK, stats)
}

// authRequired reports whether control routes need a paired token.
func (handler *Handler) authRequired() bool {
	return handler.config.AuthEnabled && handler.config.PairingCodeHash != "" && handler.tokens != nil
}

func (handler *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, handler.config.MaxMessageSize))
}

func (handler *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (handler *Handler) respondError(w http.ResponseWriter, status int, message string) {
	handler.respondJSON(w, status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// extractPathParam returns the path segment following name.
func extractPathParam(path, name string) string {
	// /api/recorder/recordings/{id}, /api/recorder/webrtc/stream/{session_id}/close
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == name && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func toRecordingDTO(rec *models.Recording) dto.RecordingDTO {
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	return dto.RecordingDTO{
		ID:              rec.ID,
		Mode:            string(rec.Mode),
		Status:          rec.Status,
		MimeType:        rec.MimeType,
		AudioEnabled:    rec.AudioEnabled,
		Chunked:         rec.Chunked,
		Chunks:          rec.Chunks,
		Files:           files,
		Bytes:           rec.Bytes,
		DurationSeconds: rec.DurationSeconds,
		Error:           rec.Error,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
	}
}
