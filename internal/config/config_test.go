package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heftcoder/internal/ai"
	"heftcoder/pkg/models"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 4, cfg.JobWorkers)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, time.Second, cfg.QADelay)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.True(t, cfg.EnableMetrics)
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.HasAIProvider())
	assert.False(t, cfg.IsProduction())
	require.NotNil(t, cfg.Roster)
	assert.Empty(t, cfg.Roster.Roles)
}

func TestLoadFromValues(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"PORT":                 "9000",
		"ENVIRONMENT":          "Production",
		"CLAUDE_API_KEY":       "sk-ant-legacy-name",
		"JOB_WORKERS":          "8",
		"JOB_TTL":              "90",
		"QA_DELAY":             "250ms",
		"PUBLIC_BASE_URL":      "https://sites.example.com/",
		"CORS_ALLOWED_ORIGINS": "https://a.example.com, ,https://b.example.com",
		"ENABLE_METRICS":       "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sk-ant-legacy-name", cfg.AnthropicAPIKey)
	assert.True(t, cfg.HasAIProvider())
	assert.Equal(t, 8, cfg.JobWorkers)
	assert.Equal(t, 90*time.Second, cfg.JobTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.QADelay)
	assert.Equal(t, "https://sites.example.com", cfg.PublicBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.EnableMetrics)
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad int", map[string]string{"JOB_WORKERS": "many"}},
		{"bad duration", map[string]string{"JOB_TTL": "soon"}},
		{"bad bool", map[string]string{"ENABLE_METRICS": "maybe"}},
		{"zero workers", map[string]string{"JOB_WORKERS": "0"}},
		{"missing roster", map[string]string{"AGENTS_CONFIG": "/nonexistent/agents.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

const sampleRoster = `
priority_order: [openai, anthropic]
rate_limits:
  openai: 30
roles:
  architect:
    provider: anthropic
    model: claude-sonnet-4-20250514
    max_tokens: 4000
  frontend:
    provider: agentapi
    agent_id: frontend-v2
`

func TestParseRoster(t *testing.T) {
	r, err := ParseRoster([]byte(sampleRoster))
	require.NoError(t, err)

	assert.Equal(t, []ai.AIProvider{ai.ProviderOpenAI, ai.ProviderAnthropic}, r.PriorityOrder)
	assert.Equal(t, 30, r.RateLimits[ai.ProviderOpenAI])
	assert.Equal(t, ai.RoleBinding{
		Provider:  ai.ProviderAnthropic,
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 4000,
	}, r.Roles[models.RoleArchitect])
	assert.Equal(t, "frontend-v2", r.Roles[models.RoleFrontend].AgentID)
}

func TestParseRosterEmpty(t *testing.T) {
	r, err := ParseRoster(nil)
	require.NoError(t, err)
	assert.Empty(t, r.Roles)
}

func TestParseRosterRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "roles: {}\nretries: 3\n"},
		{"unknown role", "roles:\n  designer:\n    provider: openai\n"},
		{"unknown provider", "roles:\n  qa:\n    provider: mistral\n"},
		{"agent id without agentapi", "roles:\n  qa:\n    provider: openai\n    agent_id: qa-1\n"},
		{"bad priority", "priority_order: [openai, cohere]\n"},
		{"non-positive limit", "rate_limits:\n  gemini: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoster([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRosterWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoster), 0o600))

	cfg, err := LoadFrom(envMap(map[string]string{
		"AGENTS_CONFIG":          path,
		"AGENT_ARCHITECT_MODEL":  "claude-opus-4-20250514",
		"AGENT_QA_ID":            "qa-agent-7",
		"AGENT_BACKEND_PROVIDER": "gemini",
		"AGENT_DEVOPS_PROVIDER":  "not-a-provider",
	}))
	require.NoError(t, err)

	roles := cfg.Roster.Roles
	assert.Equal(t, ai.ProviderAnthropic, roles[models.RoleArchitect].Provider)
	assert.Equal(t, "claude-opus-4-20250514", roles[models.RoleArchitect].Model)
	assert.Equal(t, 4000, roles[models.RoleArchitect].MaxTokens)

	assert.Equal(t, ai.ProviderAgentAPI, roles[models.RoleQA].Provider)
	assert.Equal(t, "qa-agent-7", roles[models.RoleQA].AgentID)

	assert.Equal(t, ai.ProviderGemini, roles[models.RoleBackend].Provider)
	assert.Equal(t, ai.AIProvider(""), roles[models.RoleDevOps].Provider)
}

func TestRouterConfigMergesRoster(t *testing.T) {
	r, err := ParseRoster([]byte(sampleRoster))
	require.NoError(t, err)
	cfg := &Config{Roster: r}

	rc := cfg.RouterConfig()
	defaults := ai.DefaultRouterConfig()

	assert.Equal(t, []ai.AIProvider{ai.ProviderOpenAI, ai.ProviderAnthropic}, rc.PriorityOrder)
	assert.Equal(t, 30, rc.RateLimits[ai.ProviderOpenAI])
	assert.Equal(t, defaults.RateLimits[ai.ProviderAnthropic], rc.RateLimits[ai.ProviderAnthropic])
	assert.Equal(t, defaults.FallbackOrder, rc.FallbackOrder)
	assert.Len(t, rc.Roles, 2)

	bare := (&Config{}).RouterConfig()
	assert.Equal(t, defaults.PriorityOrder, bare.PriorityOrder)
}
