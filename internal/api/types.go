package api

import (
	"time"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/usecase"
)

// Error codes returned in ErrorResponse.Error
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidAudioData     = "invalid_audio_data"
	CodeEncodingFailure      = "encoding_failure"
	CodeInternalError        = "internal_error"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeRequestTooLarge      = "request_too_large"
)

const detailInternalPrefix = usecase.DetailInternalPrefix

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ExchangesResponse lists recently completed exchanges
type ExchangesResponse struct {
	Exchanges []*entities.Exchange `json:"exchanges"`
	Count     int                  `json:"count"`
}

// PeersResponse lists the peer ids registered on the WebSocket relay
type PeersResponse struct {
	Peers []string `json:"peers"`
	Count int      `json:"count"`
}

// TokenResponse describes a freshly issued device token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}
