package api

import (
	"net/http"
	"strings"
)

func SetupRoutes(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	// Control routes require a paired token once a pairing code is configured
	protect := func(fn http.HandlerFunc) http.Handler {
		if handler.authRequired() {
			return AuthMiddleware(fn, handler.tokens)
		}
		return fn
	}

	// Health check and pairing
	mux.HandleFunc("/api/recorder/health", handler.HealthCheck)
	mux.HandleFunc("/api/recorder/auth/pair", handler.Pair)

	// Recorder messages and settings
	mux.Handle("/api/recorder/messages", protect(handler.HandleMessage))
	mux.Handle("/api/recorder/settings", protect(handler.Settings))

	// Recording history
	mux.Handle("/api/recorder/recordings", protect(handler.ListRecordings))
	mux.Handle("/api/recorder/recordings/", protect(handler.Recording))

	// WebRTC capture sources
	mux.Handle("/api/recorder/webrtc/stream/offer", protect(handler.StartWebRTCStream))
	mux.Handle("/api/recorder/webrtc/stream/candidate", protect(handler.HandleICECandidate))
	mux.Handle("/api/recorder/webrtc/stream/", protect(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/close") {
			handler.CloseWebRTCStream(w, r)
		} else {
			http.NotFound(w, r)
		}
	}))
	mux.Handle("/api/recorder/webrtc/stats", protect(handler.GetWebRTCStats))

	// Apply middleware
	limiter := NewRateLimiter(handler.config.RateLimitRPS, handler.config.RateLimitBurst)
	var h http.Handler = limiter.Middleware(mux)
	h = LoggingMiddleware(h)
	h = RecoveryMiddleware(h)
	h = CORSMiddleware(h, handler.config.AllowedOrigins)

	return h
}
