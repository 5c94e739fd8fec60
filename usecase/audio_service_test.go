package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/wavebridge/domain/entities"
	"github.com/satriahrh/wavebridge/domain/repositories"
)

type fakeDecoder struct {
	calls   int
	signals [][]byte
	decode  func(signal []byte) ([]byte, error)
}

func (f *fakeDecoder) Decode(ctx context.Context, signal []byte) ([]byte, error) {
	f.calls++
	f.signals = append(f.signals, signal)
	return f.decode(signal)
}

type fakeResponder struct {
	calls   int
	prompts []string
	reply   string
	err     error
}

func (f *fakeResponder) Respond(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type encodeCall struct {
	text    string
	profile repositories.TransmitProfile
}

type fakeEncoder struct {
	calls []encodeCall
	out   []byte
	err   error
}

func (f *fakeEncoder) Encode(ctx context.Context, text string, profile repositories.TransmitProfile) ([]byte, error) {
	f.calls = append(f.calls, encodeCall{text: text, profile: profile})
	return f.out, f.err
}

type fakeExchangeRepo struct {
	mu      sync.Mutex
	created []*entities.Exchange
	err     error
}

func (f *fakeExchangeRepo) Create(ctx context.Context, exchange *entities.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, exchange)
	return f.err
}

func (f *fakeExchangeRepo) ListRecent(ctx context.Context, limit int) ([]*entities.Exchange, error) {
	return nil, nil
}

type fakeObserver struct {
	stages   []string
	outcomes []string
}

func (f *fakeObserver) ObserveStage(stage string, elapsed time.Duration) {
	f.stages = append(f.stages, stage)
}

func (f *fakeObserver) ObserveResult(transport, outcome string, inboundBytes, outboundBytes int) {
	f.outcomes = append(f.outcomes, transport+":"+outcome)
}

var (
	signalB = []byte("RIFF-signal-B")
	signalC = []byte("RIFF-signal-C")
	profile = repositories.TransmitProfile{ProtocolID: 1, Volume: 20}
)

type fixture struct {
	decoder   *fakeDecoder
	responder *fakeResponder
	encoder   *fakeEncoder
	service   *AudioService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	f := &fixture{
		decoder: &fakeDecoder{decode: func(signal []byte) ([]byte, error) {
			if string(signal) == string(signalB) {
				return []byte("book appointment"), nil
			}
			return nil, repositories.ErrNoSignal
		}},
		responder: &fakeResponder{reply: "Your appointment is confirmed for 3pm."},
		encoder:   &fakeEncoder{out: signalC},
	}
	f.service = NewAudioService(f.decoder, f.encoder, f.responder, profile, zaptest.NewLogger(t), opts...)
	return f
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestAudioService_RoundTrip(t *testing.T) {
	f := newFixture(t)

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB), Transport: "http"})

	require.True(t, result.OK(), "unexpected failure: %v", result.Err)
	assert.Equal(t, b64(signalC), result.AudioData)
	assert.Equal(t, signalC, result.Audio)
	assert.Equal(t, "book appointment", result.Message)
	assert.Equal(t, "Your appointment is confirmed for 3pm.", result.Reply)

	require.Equal(t, 1, f.decoder.calls)
	assert.Equal(t, signalB, f.decoder.signals[0])

	require.Equal(t, 1, f.responder.calls)
	assert.Contains(t, f.responder.prompts[0], "book appointment")

	require.Len(t, f.encoder.calls, 1)
	assert.Equal(t, "Your appointment is confirmed for 3pm.", f.encoder.calls[0].text)
	assert.Equal(t, profile, f.encoder.calls[0].profile)
}

func TestAudioService_InvalidBase64CallsNothing(t *testing.T) {
	for _, data := range []string{"", "not base64!!", "abc"} {
		f := newFixture(t)

		result := f.service.Process(context.Background(), Request{AudioData: data})

		assert.Equal(t, OutcomeInvalidRequest, result.Outcome, data)
		assert.ErrorIs(t, result.Err, ErrInvalidRequest)
		assert.True(t, result.Outcome.ClientFault())
		assert.Empty(t, result.AudioData)
		assert.Zero(t, f.decoder.calls)
		assert.Zero(t, f.responder.calls)
		assert.Empty(t, f.encoder.calls)
	}
}

func TestAudioService_UnrecognizedSignal(t *testing.T) {
	f := newFixture(t)

	result := f.service.Process(context.Background(), Request{AudioData: b64([]byte("noise"))})

	assert.Equal(t, OutcomeInvalidAudioData, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidAudioData)
	assert.True(t, result.Outcome.ClientFault())
	assert.Equal(t, 1, f.decoder.calls)
	assert.Zero(t, f.responder.calls)
	assert.Empty(t, f.encoder.calls)
}

func TestAudioService_DecoderFailureIsUnexpected(t *testing.T) {
	f := newFixture(t)
	f.decoder.decode = func([]byte) ([]byte, error) { return nil, errors.New("device unplugged") }

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	assert.Equal(t, OutcomeUnexpected, result.Outcome)
	assert.Contains(t, result.Err.Error(), "device unplugged")
	assert.Zero(t, f.responder.calls)
}

func TestAudioService_EncodingFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.out = nil
	f.encoder.err = errors.New("payload too long")

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	assert.Equal(t, OutcomeEncodingFailure, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrEncodingFailure)
	assert.False(t, result.Outcome.ClientFault())
	assert.Empty(t, result.AudioData)
	assert.Nil(t, result.Audio)
	assert.Len(t, f.encoder.calls, 1)
}

func TestAudioService_EmptyEncoderOutputIsEncodingFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.out = []byte{}

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	assert.Equal(t, OutcomeEncodingFailure, result.Outcome)
	assert.Empty(t, result.AudioData)
}

func TestAudioService_ResponderFailureIsUnexpected(t *testing.T) {
	f := newFixture(t)
	f.responder.err = errors.New("quota exceeded")

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	assert.Equal(t, OutcomeUnexpected, result.Outcome)
	assert.Contains(t, result.Err.Error(), "quota exceeded")
	assert.Empty(t, f.encoder.calls)
}

func TestAudioService_PanicIsUnexpected(t *testing.T) {
	f := newFixture(t)
	f.decoder.decode = func([]byte) ([]byte, error) { panic("modem exploded") }

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	assert.Equal(t, OutcomeUnexpected, result.Outcome)
	assert.Contains(t, result.Err.Error(), "modem exploded")
	assert.Empty(t, result.AudioData)
}

func TestAudioService_InvalidUTF8IsReplaced(t *testing.T) {
	f := newFixture(t)
	f.decoder.decode = func([]byte) ([]byte, error) { return []byte("book\xffappointment\xc3"), nil }

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	require.True(t, result.OK())
	assert.Equal(t, "book�appointment�", result.Message)
	assert.Contains(t, f.responder.prompts[0], "book�appointment�")
}

func TestAudioService_ProcessSignal(t *testing.T) {
	f := newFixture(t)

	result := f.service.ProcessSignal(context.Background(), signalB, Request{Transport: "ws"})
	require.True(t, result.OK())
	assert.Equal(t, signalC, result.Audio)

	result = f.service.ProcessSignal(context.Background(), nil, Request{Transport: "ws"})
	assert.Equal(t, OutcomeInvalidRequest, result.Outcome)
}

func TestAudioService_CustomPrompt(t *testing.T) {
	f := newFixture(t, WithPromptBuilder(func(message string) string {
		return "PROMPT[" + message + "]"
	}))

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	require.True(t, result.OK())
	assert.Equal(t, []string{"PROMPT[book appointment]"}, f.responder.prompts)
}

func TestAudioService_RecordsExchange(t *testing.T) {
	repo := &fakeExchangeRepo{}
	f := newFixture(t, WithExchangeRepository(repo))

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB), DeviceID: "dev-7", Transport: "http"})
	require.True(t, result.OK())

	require.Len(t, repo.created, 1)
	exchange := repo.created[0]
	assert.Equal(t, "dev-7", exchange.DeviceID)
	assert.Equal(t, "http", exchange.Transport)
	assert.Equal(t, "book appointment", exchange.Message)
	assert.Equal(t, "Your appointment is confirmed for 3pm.", exchange.Reply)
	assert.Equal(t, profile.ProtocolID, exchange.ProtocolID)
	assert.Equal(t, profile.Volume, exchange.Volume)
	assert.Equal(t, len(signalB), exchange.InboundBytes)
	assert.Equal(t, len(signalC), exchange.OutboundBytes)

	// failures are not recorded
	f.service.Process(context.Background(), Request{AudioData: b64([]byte("noise"))})
	assert.Len(t, repo.created, 1)
}

func TestAudioService_RecordFailureKeepsResult(t *testing.T) {
	repo := &fakeExchangeRepo{err: errors.New("mongo down")}
	f := newFixture(t, WithExchangeRepository(repo))

	result := f.service.Process(context.Background(), Request{AudioData: b64(signalB)})

	require.True(t, result.OK())
	assert.Equal(t, b64(signalC), result.AudioData)
}

func TestAudioService_Observer(t *testing.T) {
	observer := &fakeObserver{}
	f := newFixture(t, WithObserver(observer))

	f.service.Process(context.Background(), Request{AudioData: b64(signalB), Transport: "http"})
	f.service.Process(context.Background(), Request{AudioData: "%%%", Transport: "http"})

	assert.Equal(t, []string{StageDecode, StageRespond, StageEncode}, observer.stages)
	assert.Equal(t, []string{"http:success", "http:invalid_request"}, observer.outcomes)
}

func TestDecodeLossy(t *testing.T) {
	assert.Equal(t, "hello", DecodeLossy([]byte("hello")))
	assert.Equal(t, "héllo", DecodeLossy([]byte("héllo")))
	assert.Equal(t, "��", DecodeLossy([]byte{0xff, 0xfe}))
	assert.Equal(t, "a�b", DecodeLossy([]byte{'a', 0x80, 'b'}))
	assert.Equal(t, "", DecodeLossy(nil))
}

func TestDoctorPrompt(t *testing.T) {
	prompt := DoctorPrompt("book appointment")
	assert.Contains(t, prompt, "Patient message: book appointment")
	assert.Contains(t, prompt, "a doctor's office")

	named := NewDoctorPrompt("Riverside Family Clinic")("hi")
	assert.True(t, strings.Contains(named, "Riverside Family Clinic"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "invalid_request", OutcomeInvalidRequest.String())
	assert.Equal(t, "invalid_audio_data", OutcomeInvalidAudioData.String())
	assert.Equal(t, "encoding_failure", OutcomeEncodingFailure.String())
	assert.Equal(t, "unexpected", OutcomeUnexpected.String())
}

func TestResultDetail(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   string
		detail string
	}{
		{"success", Result{Outcome: OutcomeSuccess}, "success", ""},
		{"invalid request", failure(OutcomeInvalidRequest, ErrInvalidRequest), "invalid_request", "invalid request"},
		{"invalid audio", failure(OutcomeInvalidAudioData, errors.New("no preamble")), "invalid_audio_data", "Invalid ggwave audio data"},
		{"encoding", failure(OutcomeEncodingFailure, errors.New("too long")), "encoding_failure", "Error encoding response with ggwave"},
		{"unexpected", failure(OutcomeUnexpected, errors.New("boom")), "internal_error", "Internal Server Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.result.Outcome.ErrorCode())
			assert.Equal(t, tt.detail, tt.result.Detail())
		})
	}
}
