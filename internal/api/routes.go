package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/repositories"
	"github.com/satriahrh/wavebridge/internal/websocket"
	"github.com/satriahrh/wavebridge/usecase"
)

// Dependencies are the components the routes are served by. Exchanges and
// Metrics may be nil.
type Dependencies struct {
	Service   *usecase.AudioService
	Hub       *websocket.Hub
	Auth      *Authenticator
	Exchanges repositories.ExchangeRepository
	Metrics   http.Handler
	Logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	handler := NewHandler(deps.Service, deps.Exchanges, deps.Logger)
	authenticated := deps.Auth.Middleware()

	// Health check
	e.GET("/health", handler.Health)

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	// Audio exchange, with and without the trailing slash
	e.POST("/process_audio/", handler.ProcessAudio, authenticated)
	e.POST("/process_audio", handler.ProcessAudio, authenticated)

	// API v1 routes
	v1 := e.Group("/api/v1", authenticated)
	v1.GET("/exchanges", handler.ListExchanges)
	v1.GET("/peers", ListPeers(deps.Hub))

	// WebSocket endpoint
	e.GET("/ws", func(c echo.Context) error {
		deviceID := DeviceID(c)
		deps.Logger.Info("WebSocket connection accepted", zap.String("device_id", deviceID))
		return deps.Hub.HandleWebSocket(c, deviceID)
	}, authenticated)
}
