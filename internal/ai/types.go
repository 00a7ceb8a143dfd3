// Package ai wraps the upstream LLM providers the agents run on and routes
// each agent role to its configured provider.
package ai

import (
	"context"
	"sync"
	"time"

	"heftcoder/pkg/models"
)

// AIProvider identifies an upstream provider.
type AIProvider string

const (
	ProviderAnthropic AIProvider = "anthropic"
	ProviderOpenAI    AIProvider = "openai"
	ProviderGemini    AIProvider = "gemini"
	ProviderOllama    AIProvider = "ollama"
	ProviderAgentAPI  AIProvider = "agentapi" // hosted agent endpoint addressed by agent id
)

// AIRequest is a single agent call.
type AIRequest struct {
	ID          string           `json:"id"`
	Role        models.AgentRole `json:"role"`
	AgentID     string           `json:"agent_id,omitempty"` // remote agent id, agentapi only
	Model       string           `json:"model,omitempty"`
	System      string           `json:"system,omitempty"`
	Prompt      string           `json:"prompt"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AIResponse is the reply to an AIRequest.
type AIResponse struct {
	ID        string        `json:"id"`
	Provider  AIProvider    `json:"provider"`
	Model     string        `json:"model"`
	Content   string        `json:"content"`
	Usage     *Usage        `json:"usage,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Usage represents token usage for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AIClient is implemented by every provider.
type AIClient interface {
	// Generate runs one non-streaming completion.
	Generate(ctx context.Context, req *AIRequest) (*AIResponse, error)

	// GetProvider returns the provider identifier.
	GetProvider() AIProvider

	// Health checks if the provider is reachable and configured.
	Health(ctx context.Context) error

	// GetUsage returns usage statistics.
	GetUsage() *ProviderUsage
}

// StreamingClient is implemented by providers that can report partial output.
// onOutput receives the cumulative text produced so far.
type StreamingClient interface {
	AIClient
	GenerateStream(ctx context.Context, req *AIRequest, onOutput func(cumulative string)) (*AIResponse, error)
}

// ProviderUsage tracks usage statistics for a provider
type ProviderUsage struct {
	Provider     AIProvider `json:"provider"`
	RequestCount int64      `json:"request_count"`
	TotalTokens  int64      `json:"total_tokens"`
	AvgLatency   float64    `json:"avg_latency"`
	ErrorCount   int64      `json:"error_count"`
	LastUsed     time.Time  `json:"last_used"`
}

// usageTracker is embedded by the provider clients.
type usageTracker struct {
	mu    sync.RWMutex
	usage ProviderUsage
}

func (u *usageTracker) init(p AIProvider) {
	u.usage = ProviderUsage{Provider: p, LastUsed: time.Now()}
}

func (u *usageTracker) record(tokens int, duration time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.usage.RequestCount++
	u.usage.TotalTokens += int64(tokens)
	u.usage.LastUsed = time.Now()

	// Running average over all successful requests
	n := float64(u.usage.RequestCount)
	u.usage.AvgLatency = (u.usage.AvgLatency*(n-1) + duration.Seconds()) / n
}

func (u *usageTracker) recordError() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.ErrorCount++
}

// GetUsage returns a copy of the usage statistics.
func (u *usageTracker) GetUsage() *ProviderUsage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	snapshot := u.usage
	return &snapshot
}

const (
	defaultMaxTokens   = 8192
	defaultTemperature = 0.7
)

func maxTokensOr(req *AIRequest, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}

func temperatureOr(req *AIRequest) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return defaultTemperature
}

func modelOr(req *AIRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
