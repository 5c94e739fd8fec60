package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain"
	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/domain/repositories"
	"github.com/satriahrh/wavebridge/internal/websocket"
	"github.com/satriahrh/wavebridge/usecase"
)

// ServiceName is reported by the health check
const ServiceName = "wavebridge"

const (
	defaultExchangeLimit = 20
	maxExchangeLimit     = 200
)

// Handler serves the HTTP surface of the audio service
type Handler struct {
	service   *usecase.AudioService
	exchanges repositories.ExchangeRepository
	logger    *zap.Logger
}

// NewHandler creates a handler. exchanges may be nil when history is disabled.
func NewHandler(service *usecase.AudioService, exchanges repositories.ExchangeRepository, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		exchanges: exchanges,
		logger:    logger,
	}
}

// Health reports liveness
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: ServiceName,
	})
}

// ProcessAudio decodes the tone message in the body, asks the responder for
// a reply and answers with the reply encoded as a tone.
func (h *Handler) ProcessAudio(c echo.Context) error {
	req, err := ParseProcessAudioRequest(c.Request())
	if err != nil {
		return err
	}

	result := h.service.Process(c.Request().Context(), usecase.Request{
		AudioData: req.AudioData,
		DeviceID:  DeviceID(c),
		Transport: entities.TransportHTTP,
	})
	if !result.OK() {
		return resultError(result)
	}

	resp := domain.ProcessAudioResponse{AudioData: result.AudioData}
	if wantsMsgpack(c.Request()) {
		body, err := msgpack.Marshal(resp)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, body)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListExchanges returns the most recent exchanges, newest first
func (h *Handler) ListExchanges(c echo.Context) error {
	if h.exchanges == nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrorResponse{
			Error:  CodeNotFound,
			Detail: "Exchange history is disabled",
		})
	}

	limit := defaultExchangeLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
				Error:  CodeInvalidRequest,
				Detail: "limit must be a positive integer",
			})
		}
		limit = min(n, maxExchangeLimit)
	}

	exchanges, err := h.exchanges.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if exchanges == nil {
		exchanges = []*entities.Exchange{}
	}

	return c.JSON(http.StatusOK, ExchangesResponse{
		Exchanges: exchanges,
		Count:     len(exchanges),
	})
}

// ListPeers returns the ids currently registered for relaying on hub
func ListPeers(hub *websocket.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		peers := hub.Peers()
		return c.JSON(http.StatusOK, PeersResponse{
			Peers: peers,
			Count: len(peers),
		})
	}
}

// resultError maps a failed Result onto the HTTP error contract
func resultError(result usecase.Result) error {
	status := http.StatusInternalServerError
	if result.Outcome.ClientFault() {
		status = http.StatusBadRequest
	}
	return echo.NewHTTPError(status, ErrorResponse{
		Error:  result.Outcome.ErrorCode(),
		Detail: result.Detail(),
	}).SetInternal(result.Err)
}
