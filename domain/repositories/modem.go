package repositories

import (
	"context"
	"errors"
)

// ErrNoSignal is returned by a Decoder when the supplied bytes carry no
// recognizable tone transmission.
var ErrNoSignal = errors.New("no signal recognized")

// TransmitProfile selects how a reply is modulated. It is fixed at process
// start and shared read-only by every request.
type TransmitProfile struct {
	ProtocolID int `json:"protocol_id"`
	Volume     int `json:"volume"`
}

// Decoder recovers the bytes embedded in a modulated audio signal
type Decoder interface {
	// Decode returns the embedded message, or ErrNoSignal when nothing was recognized
	Decode(ctx context.Context, signal []byte) ([]byte, error)
}

// Encoder modulates text into an audio signal
type Encoder interface {
	Encode(ctx context.Context, text string, profile TransmitProfile) ([]byte, error)
}

// Modem is a Decoder and Encoder pair, usually backed by one implementation
type Modem interface {
	Decoder
	Encoder
}
