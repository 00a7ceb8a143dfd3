package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/models"
)

var (
	// ErrNoProvider is returned when no client can serve a role.
	ErrNoProvider = errors.New("no ai provider configured")
	// ErrRateLimited is returned when every candidate provider is over its limit.
	ErrRateLimited = errors.New("rate limit exceeded for all available providers")
)

// RoleBinding says which provider, model and remote agent serve a role.
type RoleBinding struct {
	Provider    AIProvider `yaml:"provider" json:"provider"`
	Model       string     `yaml:"model,omitempty" json:"model,omitempty"`
	AgentID     string     `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
	MaxTokens   int        `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float32    `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// RouterConfig configures how agent calls are routed to providers.
type RouterConfig struct {
	// Roles binds each agent role to a provider. Unbound roles use the first
	// available provider in PriorityOrder.
	Roles map[models.AgentRole]RoleBinding

	// PriorityOrder is the default provider preference.
	PriorityOrder []AIProvider

	// FallbackOrder is tried when the bound provider fails or is limited.
	FallbackOrder map[AIProvider][]AIProvider

	// RateLimits per provider, requests per minute.
	RateLimits map[AIProvider]int
}

// DefaultRouterConfig returns the routing defaults. Ollama has no fallbacks to
// avoid silently moving local traffic onto paid providers.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Roles:         map[models.AgentRole]RoleBinding{},
		PriorityOrder: []AIProvider{ProviderAgentAPI, ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOllama},
		FallbackOrder: map[AIProvider][]AIProvider{
			ProviderAgentAPI:  {ProviderAnthropic, ProviderOpenAI, ProviderGemini},
			ProviderAnthropic: {ProviderOpenAI, ProviderGemini},
			ProviderOpenAI:    {ProviderAnthropic, ProviderGemini},
			ProviderGemini:    {ProviderAnthropic, ProviderOpenAI},
			ProviderOllama:    {},
		},
		RateLimits: map[AIProvider]int{
			ProviderAgentAPI:  120,
			ProviderAnthropic: 100,
			ProviderOpenAI:    80,
			ProviderGemini:    120,
			ProviderOllama:    1000,
		},
	}
}

// AIRouter routes agent calls to providers by role.
type AIRouter struct {
	mu          sync.RWMutex
	clients     map[AIProvider]AIClient
	config      *RouterConfig
	limiters    map[AIProvider]*rate.Limiter
	healthCheck map[AIProvider]bool
	log         *zap.Logger
}

// NewAIRouter creates a router over clients. A nil config uses the defaults.
func NewAIRouter(config *RouterConfig, log *zap.Logger, clients ...AIClient) *AIRouter {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &AIRouter{
		clients:     make(map[AIProvider]AIClient),
		config:      config,
		limiters:    make(map[AIProvider]*rate.Limiter),
		healthCheck: make(map[AIProvider]bool),
		log:         log,
	}
	for provider, perMinute := range config.RateLimits {
		r.limiters[provider] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a provider client. Registered clients start healthy.
func (r *AIRouter) Register(c AIClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.GetProvider()] = c
	r.healthCheck[c.GetProvider()] = true
}

// Providers returns the registered providers.
func (r *AIRouter) Providers() []AIProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AIProvider, 0, len(r.clients))
	for _, p := range r.config.PriorityOrder {
		if _, ok := r.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// CallAgent runs one completion for role and returns the reply text.
func (r *AIRouter) CallAgent(ctx context.Context, role models.AgentRole, system, prompt string) (string, error) {
	resp, err := r.generate(ctx, role, system, prompt, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// StreamAgent is CallAgent with progress: onOutput receives the cumulative
// reply when the serving provider streams. Non-streaming providers report
// once, with the full reply.
func (r *AIRouter) StreamAgent(ctx context.Context, role models.AgentRole, system, prompt string, onOutput func(string)) (string, error) {
	resp, err := r.generate(ctx, role, system, prompt, onOutput)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *AIRouter) generate(ctx context.Context, role models.AgentRole, system, prompt string, onOutput func(string)) (*AIResponse, error) {
	binding, candidates := r.candidates(role)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for role %s", ErrNoProvider, role)
	}

	req := &AIRequest{
		ID:          uuid.New().String(),
		Role:        role,
		AgentID:     binding.AgentID,
		Model:       binding.Model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   binding.MaxTokens,
		Temperature: binding.Temperature,
		CreatedAt:   time.Now(),
	}

	m := metrics.Get()
	primary := candidates[0]
	var lastErr error
	limited := 0

	for i, provider := range candidates {
		client := r.client(provider)
		if client == nil {
			continue
		}
		if !r.allow(provider) {
			limited++
			r.log.Warn("provider rate limited", zap.String("provider", string(provider)), zap.String("role", string(role)))
			continue
		}
		if i > 0 {
			// Model and agent id are provider specific.
			req.Model, req.AgentID = "", ""
			reason := "error"
			if lastErr == nil {
				reason = "rate_limited"
			}
			m.RecordAIFallback(string(primary), string(provider), reason)
			r.log.Info("falling back to provider",
				zap.String("from", string(primary)),
				zap.String("to", string(provider)),
				zap.String("role", string(role)))
		}

		start := time.Now()
		resp, err := r.invoke(ctx, client, req, onOutput)
		if err != nil {
			m.RecordAIRequest(string(provider), req.Model, string(role), "error", time.Since(start))
			r.log.Warn("agent call failed",
				zap.String("provider", string(provider)),
				zap.String("role", string(role)),
				zap.Error(err))
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		m.RecordAIRequest(string(provider), resp.Model, string(role), "success", time.Since(start))
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed for role %s, last error: %w", role, lastErr)
	}
	if limited > 0 {
		return nil, ErrRateLimited
	}
	return nil, fmt.Errorf("%w for role %s", ErrNoProvider, role)
}

func (r *AIRouter) invoke(ctx context.Context, client AIClient, req *AIRequest, onOutput func(string)) (*AIResponse, error) {
	if onOutput != nil {
		if sc, ok := client.(StreamingClient); ok {
			return sc.GenerateStream(ctx, req, onOutput)
		}
	}
	resp, err := client.Generate(ctx, req)
	if err == nil && onOutput != nil {
		onOutput(resp.Content)
	}
	return resp, err
}

// candidates returns the binding for role and the ordered providers to try.
func (r *AIRouter) candidates(role models.AgentRole) (RoleBinding, []AIProvider) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, bound := r.config.Roles[role]
	var primary AIProvider
	if bound {
		if _, ok := r.clients[binding.Provider]; ok {
			primary = binding.Provider
		}
	}
	if primary == "" {
		binding = RoleBinding{Model: binding.Model, MaxTokens: binding.MaxTokens, Temperature: binding.Temperature}
		for _, p := range r.config.PriorityOrder {
			if _, ok := r.clients[p]; ok && r.healthCheck[p] {
				primary = p
				break
			}
		}
	}
	if primary == "" {
		return binding, nil
	}

	out := []AIProvider{primary}
	for _, p := range r.config.FallbackOrder[primary] {
		if _, ok := r.clients[p]; ok && r.healthCheck[p] && p != primary {
			out = append(out, p)
		}
	}
	return binding, out
}

func (r *AIRouter) client(p AIProvider) AIClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[p]
}

func (r *AIRouter) allow(p AIProvider) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[p]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// StartHealthMonitor checks providers every interval until ctx is done.
func (r *AIRouter) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.performHealthChecks(ctx)
		for {
			select {
			case <-ticker.C:
				r.performHealthChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *AIRouter) performHealthChecks(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	r.mu.RLock()
	clients := make(map[AIProvider]AIClient, len(r.clients))
	for p, c := range r.clients {
		clients[p] = c
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for provider, client := range clients {
		wg.Add(1)
		go func(p AIProvider, c AIClient) {
			defer wg.Done()
			healthy := true
			if err := c.Health(ctx); err != nil {
				r.log.Warn("health check failed", zap.String("provider", string(p)), zap.Error(err))
				healthy = false
			}
			metrics.Get().SetAIProviderHealth(string(p), healthy)

			r.mu.Lock()
			r.healthCheck[p] = healthy
			r.mu.Unlock()
		}(provider, client)
	}
	wg.Wait()
}

// GetProviderUsage returns usage statistics for all providers
func (r *AIRouter) GetProviderUsage() map[AIProvider]*ProviderUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	usage := make(map[AIProvider]*ProviderUsage, len(r.clients))
	for provider, client := range r.clients {
		usage[provider] = client.GetUsage()
	}
	return usage
}

// GetHealthStatus returns current health status of all providers
func (r *AIRouter) GetHealthStatus() map[AIProvider]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := make(map[AIProvider]bool, len(r.clients))
	for provider := range r.clients {
		status[provider] = r.healthCheck[provider]
	}
	return status
}
