package gemini

import (
	"context"
	"fmt"

	"github.com/docpanel/docpanel/provider"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Client implements provider.Client backed by the Gemini API.
type Client struct {
	config *Config
	client *genai.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a new Gemini client using the official SDK. The context is used
// for client construction only.
func New(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig("")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Client{
		config: config,
		client: client,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate implements provider.Client
func (c *Client) Generate(ctx context.Context, req provider.Request) (string, error) {
	model := c.client.GenerativeModel(req.ModelID)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if c.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(c.config.MaxTokens)
	}
	if c.config.Temperature > 0 {
		model.SetTemperature(c.config.Temperature)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	var responseText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText += string(text)
		}
	}
	return responseText, nil
}
