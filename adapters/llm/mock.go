package llm

import (
	"context"

	"github.com/satriahrh/wavebridge/domain/repositories"
)

// DefaultMockReply is answered by MockResponder when no reply is configured
const DefaultMockReply = "Your appointment is confirmed for 3pm."

// MockResponder is an offline Responder that always gives the same answer
type MockResponder struct {
	reply string
}

// NewMockResponder creates a new mock responder
func NewMockResponder(reply string) *MockResponder {
	if reply == "" {
		reply = DefaultMockReply
	}
	return &MockResponder{reply: reply}
}

// Respond implements repositories.Responder
func (m *MockResponder) Respond(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply, nil
}

var _ repositories.Responder = (*MockResponder)(nil)
