package modem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/repositories"
)

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrInvalidVolume   = errors.New("volume must be between 1 and 100")
	ErrEmptyPayload    = errors.New("payload is empty")
	ErrPayloadTooLong  = fmt.Errorf("payload exceeds %d bytes", MaxPayloadLength)
)

const (
	// minPurity is the share of tone energy the strongest tone must hold
	minPurity = 0.6
	// minMagnitude is scaled by the window length; below it a window is silence
	minMagnitude = 0.0005
	// alignDivisions sets the preamble search step to SymbolSamples/alignDivisions
	alignDivisions = 8
)

// ToneModem modulates text into multi-frequency FSK tones carried in a WAV
// file and demodulates such files back to bytes.
type ToneModem struct {
	logger *zap.Logger
}

// Ensure ToneModem implements the Modem interface
var _ repositories.Modem = (*ToneModem)(nil)

// NewToneModem creates a new tone modem
func NewToneModem(logger *zap.Logger) *ToneModem {
	return &ToneModem{logger: logger}
}

// Encode implements repositories.Encoder
func (m *ToneModem) Encode(ctx context.Context, text string, profile repositories.TransmitProfile) ([]byte, error) {
	p, err := LookupProtocol(profile.ProtocolID)
	if err != nil {
		return nil, err
	}
	if profile.Volume < 1 || profile.Volume > 100 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidVolume, profile.Volume)
	}

	payload := []byte(text)
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}

	symbols := frameSymbols(payload)
	n := p.SymbolSamples
	amplitude := float64(profile.Volume) / 100 * fullScale16Bit

	// one symbol of silence on each side
	samples := make([]int, n*(len(symbols)+2))
	for i, tone := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bin := float64(p.toneBin(tone))
		offset := (i + 1) * n
		for j := 0; j < n; j++ {
			phase := 2 * math.Pi * bin * float64(j) / float64(n)
			samples[offset+j] = int(math.Round(amplitude * math.Sin(phase)))
		}
	}

	out, err := encodeWAV(samples, SampleRate)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Encoded tone frame",
		zap.String("protocol", p.Name),
		zap.Int("volume", profile.Volume),
		zap.Int("payload_bytes", len(payload)),
		zap.Int("symbols", len(symbols)),
		zap.Int("wav_bytes", len(out)))

	return out, nil
}

// Decode implements repositories.Decoder. Every protocol is tried in turn.
func (m *ToneModem) Decode(ctx context.Context, signal []byte) ([]byte, error) {
	samples, rate, err := decodeWAV(signal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrNoSignal, err)
	}
	if rate != SampleRate {
		return nil, fmt.Errorf("%w: unsupported sample rate %d", repositories.ErrNoSignal, rate)
	}

	for _, p := range protocols {
		payload, ok, err := p.demodulate(ctx, samples)
		if err != nil {
			return nil, err
		}
		if ok {
			m.logger.Debug("Decoded tone frame",
				zap.String("protocol", p.Name),
				zap.Int("payload_bytes", len(payload)))
			return payload, nil
		}
	}

	return nil, repositories.ErrNoSignal
}

// demodulate scans for a preamble and reads the frame that follows it
func (p Protocol) demodulate(ctx context.Context, samples []float64) ([]byte, bool, error) {
	n := p.SymbolSamples
	step := n / alignDivisions
	minLen := frameLength(1) * n

	for off := 0; off+minLen <= len(samples); off += step {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if _, ok := p.preambleScore(samples, off); !ok {
			continue
		}

		start := p.refineAlignment(samples, off)
		if payload, ok := p.readFrame(samples, start+len(preamble)*n); ok {
			return payload, true, nil
		}

		// not a frame after all, skip past this preamble candidate
		off += n - step
	}

	return nil, false, nil
}

// refineAlignment picks the offset within one symbol of off whose preamble
// windows are the cleanest.
func (p Protocol) refineAlignment(samples []float64, off int) int {
	n := p.SymbolSamples
	step := n / alignDivisions
	best, bestScore := off, -1.0
	for cand := off; cand < off+n; cand += step {
		score, ok := p.preambleScore(samples, cand)
		if ok && score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

func (p Protocol) preambleScore(samples []float64, off int) (float64, bool) {
	n := p.SymbolSamples
	if off+len(preamble)*n > len(samples) {
		return 0, false
	}
	var total float64
	for i, want := range preamble {
		tone, purity := p.classify(samples[off+i*n : off+(i+1)*n])
		if tone != want || purity < minPurity {
			return 0, false
		}
		total += purity
	}
	return total, true
}

func (p Protocol) readFrame(samples []float64, pos int) ([]byte, bool) {
	n := p.SymbolSamples
	symbol := func(i int) int {
		at := pos + i*n
		if at+n > len(samples) {
			return -1
		}
		tone, purity := p.classify(samples[at : at+n])
		if purity < minPurity {
			return -1
		}
		return tone
	}
	readByte := func(i int) (byte, bool) {
		return joinNibbles(symbol(i), symbol(i+1))
	}

	length, ok := readByte(0)
	if !ok || length == 0 || int(length) > MaxPayloadLength {
		return nil, false
	}
	if pos+(frameLength(int(length))-len(preamble))*n > len(samples) {
		return nil, false
	}

	payload := make([]byte, length)
	for i := range payload {
		b, ok := readByte(2 + 2*i)
		if !ok {
			return nil, false
		}
		payload[i] = b
	}

	sum, ok := readByte(2 + 2*int(length))
	if !ok || sum != checksum(payload) {
		return nil, false
	}

	tail := 4 + 2*int(length)
	for i, want := range postamble {
		if symbol(tail+i) != want {
			return nil, false
		}
	}

	return payload, true
}

// classify returns the strongest tone in window and its share of the energy
// across all tone bins. A silent window yields tone -1.
func (p Protocol) classify(window []float64) (int, float64) {
	spectrum := fft.FFTReal(window)

	best, bestMag, total := -1, 0.0, 0.0
	for tone := 0; tone < toneCount; tone++ {
		mag := cmplx.Abs(spectrum[p.toneBin(tone)])
		total += mag * mag
		if mag > bestMag {
			best, bestMag = tone, mag
		}
	}

	if bestMag < minMagnitude*float64(len(window)) || total == 0 {
		return -1, 0
	}
	return best, bestMag * bestMag / total
}
