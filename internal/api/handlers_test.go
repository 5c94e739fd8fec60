package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/adapters"
	"github.com/satriahrh/wavebridge/adapters/modem"
	"github.com/satriahrh/wavebridge/domain"
	"github.com/satriahrh/wavebridge/domain/repositories"
	"github.com/satriahrh/wavebridge/internal/auth"
	"github.com/satriahrh/wavebridge/internal/metrics"
	"github.com/satriahrh/wavebridge/internal/websocket"
	"github.com/satriahrh/wavebridge/usecase"
)

var testProfile = repositories.TransmitProfile{ProtocolID: 2, Volume: 50}

type stubResponder struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubResponder) Respond(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type panicResponder struct{}

func (panicResponder) Respond(ctx context.Context, prompt string) (string, error) {
	panic("responder exploded")
}

type testAPI struct {
	e         *echo.Echo
	modem     *modem.ToneModem
	responder *stubResponder
	exchanges *adapters.MemoryExchangeRepository
	tokens    *auth.TokenManager
}

type apiOptions struct {
	responder repositories.Responder
	secret    string
	noHistory bool
}

func setupAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	toneModem := modem.NewToneModem(logger)
	stub := &stubResponder{reply: "Your appointment is at 3pm."}
	var responder repositories.Responder = stub
	if opts.responder != nil {
		responder = opts.responder
	}

	m := metrics.NewMetrics()
	serviceOpts := []usecase.Option{usecase.WithObserver(m)}

	var (
		store     *adapters.MemoryExchangeRepository
		exchanges repositories.ExchangeRepository
	)
	if !opts.noHistory {
		store = adapters.NewMemoryExchangeRepository(10)
		exchanges = store
		serviceOpts = append(serviceOpts, usecase.WithExchangeRepository(store))
	}

	service := usecase.NewAudioService(toneModem, toneModem, responder, testProfile, logger, serviceOpts...)

	var tokens *auth.TokenManager
	if opts.secret != "" {
		var err error
		tokens, err = auth.NewTokenManager(opts.secret, 0)
		require.NoError(t, err)
	}

	e := NewServer(Dependencies{
		Service:   service,
		Hub:       websocket.NewHub(service, m, logger),
		Auth:      NewAuthenticator(tokens, logger),
		Exchanges: exchanges,
		Metrics:   m.Handler(),
		Logger:    logger,
	}, "1M")

	return &testAPI{e: e, modem: toneModem, responder: stub, exchanges: store, tokens: tokens}
}

func (a *testAPI) encode(t *testing.T, text string) string {
	t.Helper()
	signal, err := a.modem.Encode(context.Background(), text, testProfile)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(signal)
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	rec := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"wavebridge"}`, rec.Body.String())
}

func TestProcessAudio_RoundTrip(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	for _, path := range []string{"/process_audio/", "/process_audio"} {
		t.Run(path, func(t *testing.T) {
			rec := a.do(jsonRequest(t, path, domain.ProcessAudioRequest{AudioData: a.encode(t, "book appointment")}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp domain.ProcessAudioResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

			audio, err := base64.StdEncoding.DecodeString(resp.AudioData)
			require.NoError(t, err)
			reply, err := a.modem.Decode(context.Background(), audio)
			require.NoError(t, err)
			assert.Equal(t, "Your appointment is at 3pm.", string(reply))
		})
	}

	require.NotEmpty(t, a.responder.prompts)
	assert.Contains(t, a.responder.prompts[0], "book appointment")
}

func TestProcessAudio_NoContentTypeIsJSON(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	body := `{"audio_data":"` + a.encode(t, "hi") + `"}`
	req := httptest.NewRequest(http.MethodPost, "/process_audio/", strings.NewReader(body))

	rec := a.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestProcessAudio_Msgpack(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	body, err := msgpack.Marshal(domain.ProcessAudioRequest{AudioData: a.encode(t, "hi")})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/process_audio/", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, MIMEApplicationMsgpack)

	rec := a.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

	var resp domain.ProcessAudioResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AudioData)
}

func TestProcessAudio_Errors(t *testing.T) {
	validAudio := func(t *testing.T, a *testAPI) string {
		return `{"audio_data":"` + a.encode(t, "hi") + `"}`
	}

	tests := []struct {
		name       string
		responder  repositories.Responder
		body       func(t *testing.T, a *testAPI) string
		status     int
		code       string
		detail     string
		detailPart string
	}{
		{
			name:       "missing audio_data",
			body:       func(*testing.T, *testAPI) string { return `{}` },
			status:     http.StatusBadRequest,
			code:       CodeInvalidRequest,
			detailPart: "audio_data",
		},
		{
			name:       "invalid base64",
			body:       func(*testing.T, *testAPI) string { return `{"audio_data":"not base64!"}` },
			status:     http.StatusBadRequest,
			code:       CodeInvalidRequest,
			detailPart: "base64",
		},
		{
			name: "no signal",
			body: func(*testing.T, *testAPI) string {
				return `{"audio_data":"` + base64.StdEncoding.EncodeToString([]byte("just noise")) + `"}`
			},
			status: http.StatusBadRequest,
			code:   CodeInvalidAudioData,
			detail: "Invalid ggwave audio data",
		},
		{
			name:      "reply too long to encode",
			responder: &stubResponder{reply: strings.Repeat("x", modem.MaxPayloadLength+1)},
			body:      validAudio,
			status:    http.StatusInternalServerError,
			code:      CodeEncodingFailure,
			detail:    "Error encoding response with ggwave",
		},
		{
			name:      "responder failure",
			responder: &stubResponder{err: errors.New("quota exceeded")},
			body:      validAudio,
			status:    http.StatusInternalServerError,
			code:      CodeInternalError,
			detail:    "Internal Server Error: quota exceeded",
		},
		{
			name:       "responder panic",
			responder:  panicResponder{},
			body:       validAudio,
			status:     http.StatusInternalServerError,
			code:       CodeInternalError,
			detailPart: "Internal Server Error: ",
		},
		{
			name:       "malformed body",
			body:       func(*testing.T, *testAPI) string { return `{"audio_data":` },
			status:     http.StatusInternalServerError,
			code:       CodeInternalError,
			detailPart: "Internal Server Error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setupAPI(t, apiOptions{responder: tt.responder})

			req := httptest.NewRequest(http.MethodPost, "/process_audio/", strings.NewReader(tt.body(t, a)))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			rec := a.do(req)
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, resp.Detail)
			}
			if tt.detailPart != "" {
				assert.Contains(t, resp.Detail, tt.detailPart)
			}
			assert.Zero(t, a.exchanges.Len())
		})
	}
}

func TestProcessAudio_UnsupportedMediaType(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	req := httptest.NewRequest(http.MethodPost, "/process_audio/", strings.NewReader("audio_data=x"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := a.do(req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, CodeUnsupportedMediaType, decodeError(t, rec).Error)
}

func TestProcessAudio_BodyTooLarge(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	body := `{"audio_data":"` + strings.Repeat("A", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/process_audio/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := a.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodeRequestTooLarge, decodeError(t, rec).Error)
}

func TestProcessAudio_Auth(t *testing.T) {
	a := setupAPI(t, apiOptions{secret: "test-secret"})
	audio := a.encode(t, "hi")

	t.Run("missing token", func(t *testing.T) {
		rec := a.do(jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{AudioData: audio}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{AudioData: audio})
		req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
		rec := a.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := a.tokens.GenerateDeviceToken("doll-42")
		require.NoError(t, err)

		req := jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{AudioData: audio})
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := a.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		recent, err := a.exchanges.ListRecent(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "doll-42", recent[0].DeviceID)
	})

	t.Run("websocket requires token", func(t *testing.T) {
		rec := a.do(httptest.NewRequest(http.MethodGet, "/ws", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)
	})

	t.Run("exchanges require token", func(t *testing.T) {
		rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/exchanges", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)
	})

	t.Run("peers require token", func(t *testing.T) {
		rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("exchanges with token", func(t *testing.T) {
		token, _, err := a.tokens.GenerateDeviceToken("doll-42")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/exchanges", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		assert.Equal(t, http.StatusOK, a.do(req).Code)
	})

	t.Run("health stays public", func(t *testing.T) {
		rec := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestListExchanges(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	for _, text := range []string{"one", "two", "three"} {
		req := jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{AudioData: a.encode(t, text)})
		req.Header.Set(HeaderDeviceID, "clinic-kiosk")
		require.Equal(t, http.StatusOK, a.do(req).Code)
	}

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/exchanges?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExchangesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "three", resp.Exchanges[0].Message)
	assert.Equal(t, "two", resp.Exchanges[1].Message)
	assert.Equal(t, "clinic-kiosk", resp.Exchanges[0].DeviceID)

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/v1/exchanges?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPeers(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PeersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Peers)
}

func TestListExchanges_Disabled(t *testing.T) {
	a := setupAPI(t, apiOptions{noHistory: true})

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/exchanges", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupAPI(t, apiOptions{})

	require.Equal(t, http.StatusOK, a.do(jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{AudioData: a.encode(t, "hi")})).Code)
	require.Equal(t, http.StatusBadRequest, a.do(jsonRequest(t, "/process_audio/", domain.ProcessAudioRequest{})).Code)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `wavebridge_requests_total{outcome="success",transport="http"} 1`)
	assert.Contains(t, body, `wavebridge_requests_total{outcome="invalid_request",transport="http"} 1`)
}

func TestErrorResponse(t *testing.T) {
	status, body := errorResponse(echo.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorResponse{Error: CodeNotFound, Detail: "Not Found"}, body)

	status, body = errorResponse(errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error: db down", body.Detail)

	status, body = errorResponse(echo.NewHTTPError(http.StatusBadGateway, "upstream"))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Internal Server Error: upstream", body.Detail)
}
