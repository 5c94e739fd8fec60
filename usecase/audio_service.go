package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/domain/repositories"
)

const recordTimeout = 5 * time.Second

// Pipeline stages reported to an Observer
const (
	StageDecode  = "decode"
	StageRespond = "respond"
	StageEncode  = "encode"
)

// Observer receives timing and outcome notifications, typically metrics
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveResult(transport, outcome string, inboundBytes, outboundBytes int)
}

// Request is one inbound modulated message
type Request struct {
	AudioData string // base64 encoded
	DeviceID  string
	Transport string
}

// AudioService decodes a tone message, asks the responder for a reply and
// encodes the reply back into a tone.
type AudioService struct {
	decoder   repositories.Decoder
	encoder   repositories.Encoder
	responder repositories.Responder
	profile   repositories.TransmitProfile
	prompt    PromptBuilder
	exchanges repositories.ExchangeRepository
	observer  Observer
	logger    *zap.Logger
}

// Option customizes an AudioService
type Option func(*AudioService)

// WithPromptBuilder replaces the default doctor prompt
func WithPromptBuilder(builder PromptBuilder) Option {
	return func(s *AudioService) {
		if builder != nil {
			s.prompt = builder
		}
	}
}

// WithExchangeRepository records every successful exchange
func WithExchangeRepository(repo repositories.ExchangeRepository) Option {
	return func(s *AudioService) {
		s.exchanges = repo
	}
}

// WithObserver reports stage timings and outcomes
func WithObserver(observer Observer) Option {
	return func(s *AudioService) {
		s.observer = observer
	}
}

// NewAudioService creates a new audio service
func NewAudioService(
	decoder repositories.Decoder,
	encoder repositories.Encoder,
	responder repositories.Responder,
	profile repositories.TransmitProfile,
	logger *zap.Logger,
	opts ...Option,
) *AudioService {
	s := &AudioService{
		decoder:   decoder,
		encoder:   encoder,
		responder: responder,
		profile:   profile,
		prompt:    DoctorPrompt,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the transmit profile used for every reply
func (s *AudioService) Profile() repositories.TransmitProfile {
	return s.profile
}

// Process handles a request whose audio is base64 encoded
func (s *AudioService) Process(ctx context.Context, req Request) Result {
	if req.AudioData == "" {
		return s.finish(req, 0, failure(OutcomeInvalidRequest, fmt.Errorf("%w: audio_data is required", ErrInvalidRequest)))
	}

	signal, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return s.finish(req, 0, failure(OutcomeInvalidRequest, fmt.Errorf("%w: audio_data is not valid base64: %v", ErrInvalidRequest, err)))
	}

	return s.ProcessSignal(ctx, signal, req)
}

// ProcessSignal handles already decoded audio bytes. req.AudioData is ignored.
func (s *AudioService) ProcessSignal(ctx context.Context, signal []byte, req Request) (result Result) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic while processing audio",
				zap.String("deviceID", req.DeviceID),
				zap.Any("panic", r))
			result = s.finish(req, len(signal), failure(OutcomeUnexpected, fmt.Errorf("panic: %v", r)))
		}
	}()

	if len(signal) == 0 {
		return s.finish(req, 0, failure(OutcomeInvalidRequest, fmt.Errorf("%w: audio is empty", ErrInvalidRequest)))
	}

	s.logger.Info("Processing audio message",
		zap.String("deviceID", req.DeviceID),
		zap.String("transport", req.Transport),
		zap.Int("signalBytes", len(signal)))

	// Step 1: tone to bytes
	stageStart := time.Now()
	messageBytes, err := s.decoder.Decode(ctx, signal)
	s.observeStage(StageDecode, stageStart)
	if err != nil {
		if errors.Is(err, repositories.ErrNoSignal) {
			return s.finish(req, len(signal), failure(OutcomeInvalidAudioData, fmt.Errorf("%w: %v", ErrInvalidAudioData, err)))
		}
		return s.finish(req, len(signal), failure(OutcomeUnexpected, fmt.Errorf("decode audio: %w", err)))
	}

	message := DecodeLossy(messageBytes)
	s.logger.Info("Message decoded", zap.String("message", message))

	// Step 2: generate reply
	stageStart = time.Now()
	reply, err := s.responder.Respond(ctx, s.prompt(message))
	s.observeStage(StageRespond, stageStart)
	if err != nil {
		return s.finish(req, len(signal), failure(OutcomeUnexpected, fmt.Errorf("generate reply: %w", err)))
	}

	s.logger.Info("Reply generated", zap.String("reply", reply))

	// Step 3: reply to tone
	stageStart = time.Now()
	audio, err := s.encoder.Encode(ctx, reply, s.profile)
	s.observeStage(StageEncode, stageStart)
	if err == nil && len(audio) == 0 {
		err = errors.New("encoder produced no audio")
	}
	if err != nil {
		res := failure(OutcomeEncodingFailure, fmt.Errorf("%w: %v", ErrEncodingFailure, err))
		res.Message, res.Reply = message, reply
		return s.finish(req, len(signal), res)
	}

	result = Result{
		Outcome:   OutcomeSuccess,
		Audio:     audio,
		AudioData: base64.StdEncoding.EncodeToString(audio),
		Message:   message,
		Reply:     reply,
	}

	s.record(ctx, req, len(signal), result, time.Since(started))

	return s.finish(req, len(signal), result)
}

func (s *AudioService) finish(req Request, inbound int, result Result) Result {
	if s.observer != nil {
		s.observer.ObserveResult(req.Transport, result.Outcome.String(), inbound, len(result.Audio))
	}

	switch {
	case result.OK():
		s.logger.Info("Audio reply ready",
			zap.String("deviceID", req.DeviceID),
			zap.Int("audioBytes", len(result.Audio)))
	case result.Outcome.ClientFault():
		s.logger.Warn("Rejected audio message",
			zap.String("deviceID", req.DeviceID),
			zap.Stringer("outcome", result.Outcome),
			zap.Error(result.Err))
	default:
		s.logger.Error("Failed to process audio message",
			zap.String("deviceID", req.DeviceID),
			zap.Stringer("outcome", result.Outcome),
			zap.Error(result.Err))
	}

	return result
}

func (s *AudioService) record(ctx context.Context, req Request, inbound int, result Result, elapsed time.Duration) {
	if s.exchanges == nil {
		return
	}

	exchange := entities.NewExchange(req.DeviceID, req.Transport)
	exchange.Message = result.Message
	exchange.Reply = result.Reply
	exchange.ProtocolID = s.profile.ProtocolID
	exchange.Volume = s.profile.Volume
	exchange.InboundBytes = inbound
	exchange.OutboundBytes = len(result.Audio)
	exchange.DurationMs = elapsed.Milliseconds()

	// recording outlives cancellation of the request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.exchanges.Create(ctx, exchange); err != nil {
		s.logger.Warn("Failed to record exchange",
			zap.String("exchangeID", exchange.ID),
			zap.Error(err))
	}
}

func (s *AudioService) observeStage(stage string, started time.Time) {
	if s.observer != nil {
		s.observer.ObserveStage(stage, time.Since(started))
	}
}
