package repositories

import "context"

// Responder abstracts any chat/LLM provider that answers a single prompt
type Responder interface {
	// Respond takes a fully built prompt and returns the model's reply
	Respond(ctx context.Context, prompt string) (string, error)
}
