package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/wavebridge/domain/repositories"
)

// ErrEmptyReply is returned when a provider answers without any text
var ErrEmptyReply = errors.New("model returned an empty reply")

// GeminiResponder implements the Responder interface using Google's Gemini API
type GeminiResponder struct {
	client *genai.Client
	config Config
	logger *zap.Logger
}

// Ensure GeminiResponder implements the Responder interface
var _ repositories.Responder = (*GeminiResponder)(nil)

// NewGeminiResponder creates a new Gemini responder
func NewGeminiResponder(config Config, logger *zap.Logger) (*GeminiResponder, error) {
	config.Provider = ProviderGemini
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults(defaultGeminiModel)

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info("Gemini responder ready",
		zap.String("model", config.Model),
		zap.Float32("temperature", config.Temperature),
		zap.Int("maxOutputTokens", config.MaxOutputTokens))

	return &GeminiResponder{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Respond implements repositories.Responder
func (g *GeminiResponder) Respond(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	generateConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		MaxOutputTokens: int32(g.config.MaxOutputTokens),
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.config.MaxRetries; attempt++ {
		response, err = g.generate(ctx, contents, generateConfig)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.config.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * g.config.RetryBackoff):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	// Extract text from the response
	var responseText string
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				responseText += part.Text
			}
		}
	}
	if responseText == "" {
		return "", ErrEmptyReply
	}

	g.logger.Debug("Gemini reply generated",
		zap.String("response_preview", preview(responseText)))

	return responseText, nil
}

func (g *GeminiResponder) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	return g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
}

func preview(text string) string {
	const limit = 50
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
