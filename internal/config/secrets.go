package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"heftcoder/internal/db"
)

// Environment constants
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

const (
	MasterKeyBytes       = 32
	MinDatabaseURLLength = 10
	MinAPIKeyLength      = 16
)

// SecretRequirement describes one secret and how it is checked.
type SecretRequirement struct {
	EnvVar      string
	Description string
	Required    bool // in production
	MinLength   int
	Validator   func(string) error
	value       func(*Config) string
}

// SecretsValidationError lists everything wrong with the configured secrets.
type SecretsValidationError struct {
	Missing  []string
	Invalid  []string
	Warnings []string
}

func (e *SecretsValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing secrets: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid secrets: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

func (e *SecretsValidationError) HasErrors() bool {
	return len(e.Missing) > 0 || len(e.Invalid) > 0
}

// SecretRequirements returns the secrets the server knows about.
func SecretRequirements() []SecretRequirement {
	return []SecretRequirement{
		{
			EnvVar:      "SECRETS_MASTER_KEY",
			Description: "AES-256 master key for workspace secrets (base64)",
			Required:    true,
			Validator:   validateMasterKey,
			value:       func(c *Config) string { return c.SecretsMasterKey },
		},
		{
			EnvVar:      "SECRETS_MASTER_KEY_OLD",
			Description: "previous master key, set only while rotating",
			Validator:   validateMasterKey,
			value:       func(c *Config) string { return c.SecretsMasterKeyOld },
		},
		{
			EnvVar:      "DATABASE_URL",
			Description: "PostgreSQL connection string",
			Required:    true,
			MinLength:   MinDatabaseURLLength,
			Validator:   validateDatabaseURL,
			value:       func(c *Config) string { return c.DatabaseURL },
		},
		{
			EnvVar:    "ANTHROPIC_API_KEY",
			MinLength: MinAPIKeyLength,
			Validator: validateAPIKey,
			value:     func(c *Config) string { return c.AnthropicAPIKey },
		},
		{
			EnvVar:    "OPENAI_API_KEY",
			MinLength: MinAPIKeyLength,
			Validator: validateAPIKey,
			value:     func(c *Config) string { return c.OpenAIAPIKey },
		},
		{
			EnvVar:    "GEMINI_API_KEY",
			MinLength: MinAPIKeyLength,
			Validator: validateAPIKey,
			value:     func(c *Config) string { return c.GeminiAPIKey },
		},
	}
}

// ValidateSecrets checks cfg against SecretRequirements. Production fails on
// any missing or invalid secret; staging fails only on missing ones; other
// environments get warnings.
func ValidateSecrets(cfg *Config) (*SecretsValidationError, error) {
	prod := cfg.IsProduction()
	staging := cfg.Environment == EnvStaging || cfg.Environment == "stage"
	result := &SecretsValidationError{}

	for _, req := range SecretRequirements() {
		value := req.value(cfg)
		if value == "" {
			switch {
			case req.Required && (prod || staging):
				result.Missing = append(result.Missing, req.EnvVar)
			case req.Required:
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s not set, using development default", req.EnvVar))
			}
			continue
		}

		var problems []string
		if req.MinLength > 0 && len(value) < req.MinLength {
			problems = append(problems, fmt.Sprintf("too short (min %d characters)", req.MinLength))
		}
		if req.Validator != nil {
			if err := req.Validator(value); err != nil {
				problems = append(problems, err.Error())
			}
		}
		for _, p := range problems {
			if prod {
				result.Invalid = append(result.Invalid, req.EnvVar+": "+p)
			} else {
				result.Warnings = append(result.Warnings, req.EnvVar+": "+p)
			}
		}
	}

	if cfg.DatabaseURL != "" && !prod && db.DetectDialect(cfg.DatabaseURL) == db.DialectSQLite {
		// SQLite paths are fine outside production; drop the postgres complaint.
		result.Warnings = filterPrefix(result.Warnings, "DATABASE_URL:")
	}
	if !cfg.HasAIProvider() {
		result.Warnings = append(result.Warnings, "no AI provider configured, plans will use the built-in fallback")
	}

	if prod && result.HasErrors() {
		return result, result
	}
	if staging && len(result.Missing) > 0 {
		return result, fmt.Errorf("staging requires all production secrets: %s", strings.Join(result.Missing, ", "))
	}
	return result, nil
}

// ValidateAndLogSecrets validates secrets and logs which are configured,
// never their values.
func ValidateAndLogSecrets(cfg *Config, log *zap.Logger) error {
	result, err := ValidateSecrets(cfg)
	if err != nil {
		log.Error("secrets validation failed", zap.Error(err))
		return err
	}
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	for _, req := range SecretRequirements() {
		log.Debug("secret status",
			zap.String("name", req.EnvVar),
			zap.Bool("configured", req.value(cfg) != ""))
	}
	log.Info("secrets validated",
		zap.String("environment", cfg.Environment),
		zap.Bool("strict", cfg.IsProduction()),
		zap.Bool("rotating", cfg.SecretsMasterKeyOld != ""))
	return nil
}

// GetEnvironment returns the current environment name.
func GetEnvironment() string {
	return environmentFrom(os.Getenv)
}

func environmentFrom(getenv func(string) string) string {
	for _, key := range []string{"GO_ENV", "HEFTCODER_ENV", "ENVIRONMENT", "ENV"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return strings.ToLower(v)
		}
	}
	return EnvDevelopment
}

// IsProductionEnvironment returns true if running in production
func IsProductionEnvironment() bool {
	env := GetEnvironment()
	return env == EnvProduction || env == "prod"
}

// validateMasterKey enforces a valid AES-256 key.
func validateMasterKey(key string) error {
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("must be valid base64: %w", err)
	}
	if len(decoded) != MasterKeyBytes {
		return fmt.Errorf("must decode to exactly %d bytes (got %d)", MasterKeyBytes, len(decoded))
	}
	allZero := true
	for _, b := range decoded {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return errors.New("master key is all zeros")
	}
	if e := byteEntropy(decoded); e < 4.0 {
		return fmt.Errorf("byte entropy too low (%.1f, need >= 4.0)", e)
	}
	return nil
}

// validateDatabaseURL checks for a PostgreSQL connection URL.
func validateDatabaseURL(rawURL string) error {
	if db.DetectDialect(rawURL) != db.DialectPostgres {
		return errors.New("must be a PostgreSQL connection URL (postgres:// or postgresql://)")
	}
	if !strings.Contains(rawURL, "://") {
		// key=value DSN
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Hostname() == "" {
		return errors.New("database URL must include a hostname")
	}
	if parsed.User != nil {
		if password, ok := parsed.User.Password(); ok {
			for _, weak := range []string{"password", "postgres", "changeme", "test", "example", "heftcoder"} {
				if strings.EqualFold(password, weak) {
					return fmt.Errorf("database password %q is a known default", weak)
				}
			}
		}
	}
	return nil
}

// validateAPIKey rejects obvious placeholders.
func validateAPIKey(key string) error {
	lower := strings.ToLower(key)
	for _, p := range []string{"your-api-key", "changeme", "placeholder", "xxx", "replace-me"} {
		if strings.Contains(lower, p) {
			return fmt.Errorf("looks like a placeholder (%q)", p)
		}
	}
	if strings.ContainsAny(key, " \t\n") {
		return errors.New("contains whitespace")
	}
	return nil
}

// byteEntropy calculates Shannon entropy over raw bytes.
func byteEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	freq := make(map[byte]float64)
	for _, b := range data {
		freq[b]++
	}
	length := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		p := count / length
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func filterPrefix(in []string, prefix string) []string {
	out := in[:0]
	for _, s := range in {
		if !strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}
