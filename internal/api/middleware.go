package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/internal/auth"
)

const (
	// HeaderDeviceID names the caller when authentication is disabled
	HeaderDeviceID = "X-Device-ID"

	deviceIDKey = "device_id"
)

// RequestLogger logs every request through zap
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("requestID", v.RequestID),
				zap.String("remoteIP", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		},
	})
}

// Authenticator resolves the calling device for each request
type Authenticator struct {
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator. A nil token manager disables
// token checks and trusts the X-Device-ID header instead.
func NewAuthenticator(tokens *auth.TokenManager, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, logger: logger}
}

// Enabled reports whether bearer tokens are required
func (a *Authenticator) Enabled() bool {
	return a != nil && a.tokens != nil
}

// Middleware stores the device id in the echo context
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.Enabled() {
				deviceID := strings.TrimSpace(c.Request().Header.Get(HeaderDeviceID))
				if deviceID == "" {
					deviceID = entities.AnonymousDevice
				}
				c.Set(deviceIDKey, deviceID)
				return next(c)
			}

			token := bearerToken(c.Request())
			if token == "" {
				a.logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{
					Error:  CodeUnauthorized,
					Detail: "JWT token is required in Authorization header",
				})
			}

			claims, err := a.tokens.ValidateDeviceToken(token)
			if err != nil {
				a.logger.Warn("Request rejected: invalid token", zap.Error(err))
				if errors.Is(err, auth.ErrInvalidRole) {
					return echo.NewHTTPError(http.StatusForbidden, ErrorResponse{
						Error:  CodeForbidden,
						Detail: "Only device tokens are allowed",
					})
				}
				return echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{
					Error:  CodeUnauthorized,
					Detail: "Invalid or expired JWT token",
				})
			}

			c.Set(deviceIDKey, claims.DeviceID)
			return next(c)
		}
	}
}

// DeviceID returns the device resolved by the Authenticator
func DeviceID(c echo.Context) string {
	if id, ok := c.Get(deviceIDKey).(string); ok && id != "" {
		return id
	}
	return entities.AnonymousDevice
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// ErrorHandler renders every error as an ErrorResponse. Errors without an
// HTTP status become 500 with an "Internal Server Error: " detail.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:  CodeInternalError,
			Detail: detailInternalPrefix + err.Error(),
		}
	}

	if body, ok := he.Message.(ErrorResponse); ok {
		return he.Code, body
	}

	detail := http.StatusText(he.Code)
	if msg, ok := he.Message.(string); ok && msg != "" {
		detail = msg
	}
	if he.Code >= http.StatusInternalServerError {
		return he.Code, ErrorResponse{Error: CodeInternalError, Detail: detailInternalPrefix + detail}
	}
	return he.Code, ErrorResponse{Error: codeForStatus(he.Code), Detail: detail}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnsupportedMediaType:
		return CodeUnsupportedMediaType
	case http.StatusRequestEntityTooLarge:
		return CodeRequestTooLarge
	default:
		return CodeInvalidRequest
	}
}
