package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GeminiClient calls the Gemini API. The underlying client needs a context to
// construct, so it is created on first use.
type GeminiClient struct {
	apiKey string
	model  string

	clientMu sync.Mutex
	client   *genai.Client
	usageTracker
}

// NewGeminiClient creates a client. model may be empty.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	c := &GeminiClient{apiKey: normalizeAPIKey(apiKey), model: model}
	if c.model == "" {
		c.model = defaultGeminiModel
	}
	c.init(ProviderGemini)
	return c
}

func (c *GeminiClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

// Generate implements AIClient.
func (c *GeminiClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	start := time.Now()
	model := modelOr(req, c.model)

	client, err := c.genaiClient(ctx)
	if err != nil {
		c.recordError()
		return nil, err
	}

	temperature := temperatureOr(req)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokensOr(req, defaultMaxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil {
		c.recordError()
		return nil, errors.New("gemini returned an empty response")
	}

	usage := &Usage{}
	if md := result.UsageMetadata; md != nil {
		usage.PromptTokens = int(md.PromptTokenCount)
		usage.CompletionTokens = int(md.CandidatesTokenCount)
		usage.TotalTokens = int(md.TotalTokenCount)
	}
	c.record(usage.TotalTokens, time.Since(start))

	return &AIResponse{
		ID:        req.ID,
		Provider:  ProviderGemini,
		Model:     model,
		Content:   result.Text(),
		Usage:     usage,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}, nil
}

// GetProvider implements AIClient.
func (c *GeminiClient) GetProvider() AIProvider { return ProviderGemini }

// Health reports whether the client is configured.
func (c *GeminiClient) Health(ctx context.Context) error {
	if c.apiKey == "" {
		return errors.New("gemini api key not configured")
	}
	return nil
}
