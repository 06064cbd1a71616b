package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/docpanel/docpanel/provider"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Client implements provider.Client backed by the Anthropic Messages API.
type Client struct {
	config *Config
	client anthropic.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a new Claude client using the official SDK
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig("")
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Generate implements provider.Client
func (c *Client) Generate(ctx context.Context, req provider.Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelID),
		MaxTokens: c.config.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	if c.config.Temperature > 0 {
		params.Temperature = param.NewOpt(c.config.Temperature)
	}

	apiMessage, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var responseText string
	for _, content := range apiMessage.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}
	return responseText, nil
}
