package model

import "time"

// API error codes. These are stable strings clients switch on.
const (
	ErrCodeValidation          = "validation_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeAlreadyActive       = "already_active"
	ErrCodeNoActiveSession     = "no_active_session"
	ErrCodeInvalidTransition   = "invalid_transition"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternalError       = "internal_error"
)

// ResponseMeta is attached to every API response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Postgres     string `json:"postgres"`
	LiveSessions int    `json:"live_sessions"`
	Broker       string `json:"broker,omitempty"`
	Uptime       int64  `json:"uptime_seconds"`
}
