package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/repositories"
)

// OpenAIResponder implements the Responder interface using the OpenAI chat completions API
type OpenAIResponder struct {
	client *openai.Client
	config Config
	logger *zap.Logger
}

var _ repositories.Responder = (*OpenAIResponder)(nil)

// NewOpenAIResponder creates a new OpenAI responder
func NewOpenAIResponder(config Config, logger *zap.Logger) (*OpenAIResponder, error) {
	config.Provider = ProviderOpenAI
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults(defaultOpenAIModel)

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	logger.Info("OpenAI responder ready", zap.String("model", config.Model))

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Respond implements repositories.Responder
func (o *OpenAIResponder) Respond(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.config.MaxOutputTokens,
		Temperature: o.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	reply := resp.Choices[0].Message.Content
	o.logger.Debug("OpenAI reply generated", zap.String("response_preview", preview(reply)))
	return reply, nil
}
