package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeAudio         MessageType = "audio"
	MessageTypeAudioResponse MessageType = "audio_response"
	MessageTypeError         MessageType = "error"
	MessageTypeRegister      MessageType = "register"
	MessageTypeRegistered    MessageType = "registered"
)

// Error codes that only exist on the socket
const (
	CodeBusy              = "busy"
	CodeTargetUnavailable = "target_unavailable"
)

// BaseMessage defines the common structure for all outbound messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// AudioMessage is one modulated message sent by a device. Type is optional.
type AudioMessage struct {
	Type      MessageType `json:"type,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	AudioData string      `json:"audio_data"` // base64 encoded
}

// ErrMalformedFrame is returned for text frames that are not valid JSON
// for the expected message.
var ErrMalformedFrame = errors.New("malformed json frame")

// Envelope is the routing view of an inbound text frame. Frames with a
// Target are relayed to that peer; Data carries the id of a register frame.
type Envelope struct {
	Type      MessageType     `json:"type,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Target    string          `json:"target,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RegisteredMessage confirms a peer registration
type RegisteredMessage struct {
	BaseMessage
	Data string `json:"data"`
}

// AudioResponseMessage carries the modulated reply
type AudioResponseMessage struct {
	BaseMessage
	AudioData        string `json:"audio_data"` // base64 encoded
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseAudioMessage validates an incoming text frame
func ParseAudioMessage(data []byte) (*AudioMessage, error) {
	var msg AudioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type != "" && msg.Type != MessageTypeAudio {
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return &msg, nil
}

// ParseEnvelope decodes the routing fields of a text frame
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &env, nil
}

// PeekMessageID returns the message_id of a text frame, or "" when the frame
// does not carry one.
func PeekMessageID(data []byte) string {
	var msg struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return ""
	}
	return msg.MessageID
}

// StampSource sets the source field of a relayed frame, keeping every
// other field as sent.
func StampSource(data []byte, source string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	encoded, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	fields["source"] = encoded
	return json.Marshal(fields)
}

// CreateRegisteredMessage confirms that peerID now routes to the sender
func CreateRegisteredMessage(peerID string) *RegisteredMessage {
	return &RegisteredMessage{
		BaseMessage: newBase(MessageTypeRegistered, ""),
		Data:        peerID,
	}
}

// CreateAudioResponseMessage creates a reply message
func CreateAudioResponseMessage(messageID, audioData string, elapsed time.Duration) *AudioResponseMessage {
	return &AudioResponseMessage{
		BaseMessage:      newBase(MessageTypeAudioResponse, messageID),
		AudioData:        audioData,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(messageID, code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError, messageID),
		Code:        code,
		Message:     message,
	}
}

func newBase(t MessageType, messageID string) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: messageID,
	}
}
