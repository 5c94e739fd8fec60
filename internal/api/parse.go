package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/satriahrh/wavebridge/domain"
)

// Supported request media types
const (
	MIMEApplicationJSON    = "application/json"
	MIMEApplicationMsgpack = "application/msgpack"
)

// ParseProcessAudioRequest decodes the body according to its Content-Type.
// A missing Content-Type is read as JSON. Unsupported media types yield a
// 415 *echo.HTTPError; undecodable bodies yield a plain error.
func ParseProcessAudioRequest(r *http.Request) (*domain.ProcessAudioRequest, error) {
	var req domain.ProcessAudioRequest

	switch mediaType(r) {
	case MIMEApplicationJSON:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("malformed json body: %w", err)
		}
	case MIMEApplicationMsgpack, "application/x-msgpack":
		if err := msgpack.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("malformed msgpack body: %w", err)
		}
	default:
		return nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:  CodeUnsupportedMediaType,
			Detail: "Unsupported content type",
		})
	}

	return &req, nil
}

func mediaType(r *http.Request) string {
	contentType := r.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		return MIMEApplicationJSON
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parsed = contentType
	}
	return strings.ToLower(parsed)
}

// wantsMsgpack reports whether the response should mirror a msgpack request
func wantsMsgpack(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get(echo.HeaderAccept))
	if strings.Contains(accept, MIMEApplicationMsgpack) {
		return true
	}
	if accept != "" && !strings.Contains(accept, "*/*") {
		return false
	}
	mt := mediaType(r)
	return mt == MIMEApplicationMsgpack || mt == "application/x-msgpack"
}
