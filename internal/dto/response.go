package dto

// ErrorResponse is the body of every non-2xx API reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse acknowledges an operation that has no other result
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse reports liveness and which optional backends are wired
type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Version        string `json:"version"`
	HistoryEnabled bool   `json:"history_enabled"`
	AuthRequired   bool   `json:"auth_required"`
	CaptureSources int    `json:"capture_sources"`
}
