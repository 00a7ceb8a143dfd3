package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"heftcoder/internal/ai"
	"heftcoder/pkg/models"
)

// Roster is the agent roster file named by AGENTS_CONFIG.
//
//	priority_order: [anthropic, openai]
//	rate_limits:
//	  anthropic: 50
//	roles:
//	  architect:
//	    provider: anthropic
//	    model: claude-sonnet-4-20250514
//	  frontend:
//	    provider: agentapi
//	    agent_id: frontend-v2
type Roster struct {
	PriorityOrder []ai.AIProvider                     `yaml:"priority_order,omitempty"`
	RateLimits    map[ai.AIProvider]int               `yaml:"rate_limits,omitempty"`
	Roles         map[models.AgentRole]ai.RoleBinding `yaml:"roles,omitempty"`
}

var knownProviders = map[ai.AIProvider]bool{
	ai.ProviderAnthropic: true,
	ai.ProviderOpenAI:    true,
	ai.ProviderGemini:    true,
	ai.ProviderOllama:    true,
	ai.ProviderAgentAPI:  true,
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents config: %w", err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRoster decodes a roster. Unknown keys are rejected so typos surface at
// startup.
func ParseRoster(data []byte) (*Roster, error) {
	r := &Roster{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse agents config: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Roster) validate() error {
	for _, p := range r.PriorityOrder {
		if !knownProviders[p] {
			return fmt.Errorf("priority_order: unknown provider %q", p)
		}
	}
	for p, n := range r.RateLimits {
		if !knownProviders[p] {
			return fmt.Errorf("rate_limits: unknown provider %q", p)
		}
		if n <= 0 {
			return fmt.Errorf("rate_limits.%s must be positive", p)
		}
	}
	for role, b := range r.Roles {
		if !role.Valid() {
			return fmt.Errorf("roles: unknown role %q", role)
		}
		if b.Provider != "" && !knownProviders[b.Provider] {
			return fmt.Errorf("roles.%s: unknown provider %q", role, b.Provider)
		}
		if b.AgentID != "" && b.Provider != ai.ProviderAgentAPI {
			return fmt.Errorf("roles.%s: agent_id requires provider %q", role, ai.ProviderAgentAPI)
		}
	}
	return nil
}

// applyEnv overlays AGENT_<ROLE>_PROVIDER, _MODEL, _ID and _MAX_TOKENS.
func (r *Roster) applyEnv(getenv func(string) string) {
	for _, role := range models.AllRoles {
		provider := getenv(roleEnvKey(role, "PROVIDER"))
		model := getenv(roleEnvKey(role, "MODEL"))
		agentID := getenv(roleEnvKey(role, "ID"))
		maxTokens, _ := strconv.Atoi(getenv(roleEnvKey(role, "MAX_TOKENS")))
		if provider == "" && model == "" && agentID == "" && maxTokens == 0 {
			continue
		}

		if r.Roles == nil {
			r.Roles = make(map[models.AgentRole]ai.RoleBinding)
		}
		b := r.Roles[role]
		if provider != "" && knownProviders[ai.AIProvider(provider)] {
			b.Provider = ai.AIProvider(provider)
		}
		if agentID != "" {
			b.AgentID = agentID
			if provider == "" {
				b.Provider = ai.ProviderAgentAPI
			}
		}
		if model != "" {
			b.Model = model
		}
		if maxTokens > 0 {
			b.MaxTokens = maxTokens
		}
		r.Roles[role] = b
	}
}
