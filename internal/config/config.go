// Package config loads server configuration from the environment, an optional
// .env file and an optional YAML agent roster, and validates the secrets the
// server needs before it starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"heftcoder/internal/ai"
	"heftcoder/pkg/models"
)

// Config is the full server configuration. It is built once at startup and
// passed to constructors.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	SecretsMasterKey    string
	SecretsMasterKeyOld string // set during key rotation

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	OllamaBaseURL   string
	AgentAPIURL     string
	AgentAPIKey     string

	// AgentsConfigPath names the YAML roster, if any.
	AgentsConfigPath string
	// Roster is the parsed YAML roster with per-role env overrides applied.
	Roster *Roster

	JobWorkers   int
	JobQueueSize int
	JobTTL       time.Duration
	JobTimeout   time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int
	QADelay            time.Duration

	PublicBaseURL      string
	CORSAllowedOrigins []string
	EnableMetrics      bool
}

// IsProduction reports whether strict validation applies.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction || c.Environment == "prod"
}

// LoadDotEnv reads .env, then ../.env. Existing environment variables win.
// It reports which file was loaded, or "" if none was found.
func LoadDotEnv() string {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration from getenv.
func LoadFrom(getenv func(string) string) (*Config, error) {
	env := envReader{get: getenv}

	cfg := &Config{
		Port:        env.str("PORT", "8080"),
		Environment: environmentFrom(getenv),
		LogLevel:    env.str("LOG_LEVEL", ""),

		DatabaseURL: env.str("DATABASE_URL", ""),
		RedisURL:    env.str("REDIS_URL", ""),

		SecretsMasterKey:    env.str("SECRETS_MASTER_KEY", ""),
		SecretsMasterKeyOld: env.str("SECRETS_MASTER_KEY_OLD", ""),

		AnthropicAPIKey: env.any("ANTHROPIC_API_KEY", "CLAUDE_API_KEY"),
		OpenAIAPIKey:    env.any("OPENAI_API_KEY", "OPENAI_KEY"),
		GeminiAPIKey:    env.any("GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "GOOGLE_GEMINI_API_KEY"),
		OllamaBaseURL:   env.str("OLLAMA_BASE_URL", ""),
		AgentAPIURL:     env.str("AGENT_API_URL", ""),
		AgentAPIKey:     env.str("AGENT_API_KEY", ""),

		AgentsConfigPath: env.str("AGENTS_CONFIG", ""),

		JobWorkers:   env.int("JOB_WORKERS", 4),
		JobQueueSize: env.int("JOB_QUEUE_SIZE", 64),
		JobTTL:       env.duration("JOB_TTL", time.Hour),
		JobTimeout:   env.duration("JOB_TIMEOUT", 110*time.Second),

		RateLimitPerMinute: env.int("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     env.int("RATE_LIMIT_BURST", 20),
		QADelay:            env.duration("QA_DELAY", time.Second),

		PublicBaseURL:      strings.TrimRight(env.str("PUBLIC_BASE_URL", ""), "/"),
		CORSAllowedOrigins: env.list("CORS_ALLOWED_ORIGINS"),
		EnableMetrics:      env.bool("ENABLE_METRICS", true),
	}
	if env.err != nil {
		return nil, env.err
	}

	roster := &Roster{}
	if cfg.AgentsConfigPath != "" {
		r, err := LoadRoster(cfg.AgentsConfigPath)
		if err != nil {
			return nil, err
		}
		roster = r
	}
	roster.applyEnv(getenv)
	cfg.Roster = roster

	if cfg.JobWorkers < 1 {
		return nil, fmt.Errorf("JOB_WORKERS must be at least 1")
	}
	return cfg, nil
}

// RouterConfig merges the roster over the routing defaults.
func (c *Config) RouterConfig() *ai.RouterConfig {
	rc := ai.DefaultRouterConfig()
	if c.Roster == nil {
		return rc
	}
	for role, binding := range c.Roster.Roles {
		rc.Roles[role] = binding
	}
	if len(c.Roster.PriorityOrder) > 0 {
		rc.PriorityOrder = c.Roster.PriorityOrder
	}
	for p, perMinute := range c.Roster.RateLimits {
		rc.RateLimits[p] = perMinute
	}
	return rc
}

// HasAIProvider reports whether any agent backend is configured.
func (c *Config) HasAIProvider() bool {
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != "" || c.GeminiAPIKey != "" ||
		c.OllamaBaseURL != "" || c.AgentAPIURL != ""
}

// envReader collects the first parse error.
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) any(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.get(k)); v != "" {
			return v
		}
	}
	return ""
}

func (e *envReader) int(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

// duration accepts Go durations ("90s") or plain seconds ("90").
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (e *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// roleEnvKey returns AGENT_<ROLE>_<FIELD>.
func roleEnvKey(role models.AgentRole, field string) string {
	return "AGENT_" + strings.ToUpper(string(role)) + "_" + field
}
