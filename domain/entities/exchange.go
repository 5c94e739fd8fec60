package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AnonymousDevice is recorded when the caller did not identify itself
const AnonymousDevice = "anonymous"

// Transports an exchange can arrive on
const (
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
)

// Exchange is the record of one completed audio round trip
type Exchange struct {
	ID            string    `json:"id" bson:"_id"`
	DeviceID      string    `json:"device_id" bson:"device_id"`
	Transport     string    `json:"transport" bson:"transport"`
	Message       string    `json:"message" bson:"message"`
	Reply         string    `json:"reply" bson:"reply"`
	ProtocolID    int       `json:"protocol_id" bson:"protocol_id"`
	Volume        int       `json:"volume" bson:"volume"`
	InboundBytes  int       `json:"inbound_bytes" bson:"inbound_bytes"`
	OutboundBytes int       `json:"outbound_bytes" bson:"outbound_bytes"`
	DurationMs    int64     `json:"duration_ms" bson:"duration_ms"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// NewExchange creates an exchange for a device with a fresh ID
func NewExchange(deviceID, transport string) *Exchange {
	if deviceID == "" {
		deviceID = AnonymousDevice
	}
	return &Exchange{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Transport: transport,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate validates the exchange data
func (e *Exchange) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if e.Reply == "" {
		return errors.New("reply is required")
	}
	return nil
}
