package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5-coder:14b"
)

// OllamaClient calls a local or self-hosted Ollama server. It is the only
// provider that streams partial output.
type OllamaClient struct {
	client  *api.Client
	hostURL string
	model   string
	usageTracker
}

// NewOllamaClient creates a client for hostURL. Invalid URLs fall back to the
// local default.
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse(defaultOllamaURL)
	}
	c := &OllamaClient{
		client:  api.NewClient(parsed, http.DefaultClient),
		hostURL: parsed.String(),
		model:   model,
	}
	if c.model == "" {
		c.model = defaultOllamaModel
	}
	c.init(ProviderOllama)
	return c
}

func (c *OllamaClient) chatRequest(req *AIRequest, stream bool) *api.ChatRequest {
	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	return &api.ChatRequest{
		Model:    modelOr(req, c.model),
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": temperatureOr(req),
			"num_predict": maxTokensOr(req, defaultMaxTokens),
		},
	}
}

// Generate implements AIClient.
func (c *OllamaClient) Generate(ctx context.Context, req *AIRequest) (*AIResponse, error) {
	return c.GenerateStream(ctx, req, nil)
}

// GenerateStream implements StreamingClient. When onOutput is nil the request
// is made without streaming.
func (c *OllamaClient) GenerateStream(ctx context.Context, req *AIRequest, onOutput func(string)) (*AIResponse, error) {
	start := time.Now()
	chatReq := c.chatRequest(req, onOutput != nil)

	var (
		content strings.Builder
		final   api.ChatResponse
	)
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if onOutput != nil && resp.Message.Content != "" {
			onOutput(content.String())
		}
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	usage := &Usage{
		PromptTokens:     final.PromptEvalCount,
		CompletionTokens: final.EvalCount,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	c.record(usage.TotalTokens, time.Since(start))

	return &AIResponse{
		ID:        req.ID,
		Provider:  ProviderOllama,
		Model:     chatReq.Model,
		Content:   content.String(),
		Usage:     usage,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}, nil
}

// GetProvider implements AIClient.
func (c *OllamaClient) GetProvider() AIProvider { return ProviderOllama }

// Health pings the Ollama server.
func (c *OllamaClient) Health(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama at %s unreachable: %w", c.hostURL, err)
	}
	return nil
}
