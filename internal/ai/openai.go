package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const defaultOpenAIModel = "gpt-5"

// OpenAIClient calls the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	apiKey string
	model  string
	usageTracker
}

// NewOpenAIClient creates a client. model may be empty.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	key := normalizeAPIKey(apiKey)
	c := &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(key)),
		apiKey: key,
		model:  model,
	}
	if c.model == "" {
		c.model = defaultOpenAIModel
	}
	c.init(ProviderOpenAI)
	return c
}

// Generate implements AIClient. The Responses API takes one input string, so
// the system prompt is prepended as instructions.
func (c *OpenAIClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	start := time.Now()
	model := modelOr(req, c.model)

	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(int64(maxTokensOr(req, defaultMaxTokens))),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Prompt)},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil {
		c.recordError()
		return nil, errors.New("openai returned an empty response")
	}

	usage := &Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	c.record(usage.TotalTokens, time.Since(start))

	return &AIResponse{
		ID:        req.ID,
		Provider:  ProviderOpenAI,
		Model:     model,
		Content:   resp.OutputText(),
		Usage:     usage,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}, nil
}

// GetProvider implements AIClient.
func (c *OpenAIClient) GetProvider() AIProvider { return ProviderOpenAI }

// Health reports whether the client is configured.
func (c *OpenAIClient) Health(ctx context.Context) error {
	if c.apiKey == "" {
		return errors.New("openai api key not configured")
	}
	return nil
}
