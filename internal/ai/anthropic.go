package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// ClaudeClient calls the Anthropic Messages API.
type ClaudeClient struct {
	client anthropic.Client
	apiKey string
	model  string
	usageTracker
}

// NewClaudeClient creates a client. model may be empty.
func NewClaudeClient(apiKey, model string) *ClaudeClient {
	key := normalizeAPIKey(apiKey)
	c := &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		apiKey: key,
		model:  model,
	}
	if c.model == "" {
		c.model = defaultAnthropicModel
	}
	c.init(ProviderAnthropic)
	return c
}

// Generate implements AIClient.
func (c *ClaudeClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	start := time.Now()
	model := modelOr(req, c.model)

	params := anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRole("user"),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
		MaxTokens:   int64(maxTokensOr(req, defaultMaxTokens)),
		Temperature: anthropic.Float(float64(temperatureOr(req))),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		c.recordError()
		return nil, errors.New("anthropic returned an empty response")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	usage := &Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	c.record(usage.TotalTokens, time.Since(start))

	return &AIResponse{
		ID:        req.ID,
		Provider:  ProviderAnthropic,
		Model:     model,
		Content:   text.String(),
		Usage:     usage,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}, nil
}

// GetProvider implements AIClient.
func (c *ClaudeClient) GetProvider() AIProvider { return ProviderAnthropic }

// Health reports whether the client is configured. It does not spend tokens.
func (c *ClaudeClient) Health(ctx context.Context) error {
	if c.apiKey == "" {
		return errors.New("anthropic api key not configured")
	}
	return nil
}
