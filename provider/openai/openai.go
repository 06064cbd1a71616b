package openai

import (
	"context"
	"fmt"

	"github.com/docpanel/docpanel/provider"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

// Client implements provider.Client backed by the OpenAI chat completions API.
type Client struct {
	config *Config
	client openai.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a new OpenAI client using the official SDK
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig("")
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Generate implements provider.Client
func (c *Client) Generate(ctx context.Context, req provider.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(req.ModelID),
	}

	if c.config.Temperature > 0 {
		params.Temperature = param.NewOpt(c.config.Temperature)
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(c.config.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
