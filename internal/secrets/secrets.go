package secrets

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrSecretNotFound    = errors.New("secret not found")
	ErrInvalidSecretName = errors.New("secret names must match ^[A-Z][A-Z0-9_]*$")
	ErrEmptySecretValue  = errors.New("secret value is empty")
)

var secretNameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// DefaultWorkspace is used when a request names no workspace.
const DefaultWorkspace = "default"

// Category groups secrets in the secrets panel.
type Category string

const (
	CategoryAI       Category = "ai"
	CategoryDatabase Category = "database"
	CategoryPayments Category = "payments"
	CategoryEmail    Category = "email"
	CategoryAuth     Category = "auth"
	CategoryOther    Category = "other"
)

// Secret is one encrypted value stored for a workspace.
type Secret struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	WorkspaceID    string    `json:"workspace_id" gorm:"uniqueIndex:idx_workspace_secret;not null"`
	Name           string    `json:"name" gorm:"uniqueIndex:idx_workspace_secret;not null"`
	Category       Category  `json:"category" gorm:"default:'other'"`
	EncryptedValue string    `json:"-" gorm:"not null"`
	KeyFingerprint string    `json:"-" gorm:"not null"`
	Salt           string    `json:"-" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AuditLog records writes to secrets. Values are never logged.
type AuditLog struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"index;not null"`
	SecretName  string    `json:"secret_name" gorm:"not null"`
	Action      string    `json:"action"` // save, rotate
	IPAddress   string    `json:"ip_address,omitempty"`
	Success     bool      `json:"success"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName pins the audit table name.
func (AuditLog) TableName() string { return "secret_audit_logs" }

// Status is the list view of a secret. IsConfigured is false for well-known
// secrets that have no value yet.
type Status struct {
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	IsConfigured bool     `json:"isConfigured"`
}

// knownSecrets are listed even before they are saved, so generated backends
// can point users at them.
var knownSecrets = []string{
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"GEMINI_API_KEY",
	"STRIPE_SECRET_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"RESEND_API_KEY",
	"SENDGRID_API_KEY",
	"DATABASE_URL",
	"JWT_SECRET",
}

// ValidName reports whether name is an upper-case env var name.
func ValidName(name string) bool {
	return secretNameRe.MatchString(name)
}

// Categorize infers a category from a secret name.
func Categorize(name string) Category {
	n := strings.ToUpper(name)
	switch {
	case containsAny(n, "OPENAI", "ANTHROPIC", "GEMINI", "GOOGLE_AI", "MISTRAL", "GROQ", "OLLAMA", "HUGGINGFACE", "REPLICATE", "XAI"):
		return CategoryAI
	case containsAny(n, "DATABASE", "POSTGRES", "SUPABASE", "MONGO", "REDIS", "MYSQL", "DB_"):
		return CategoryDatabase
	case containsAny(n, "STRIPE", "PAYPAL", "LEMON", "PADDLE", "BRAINTREE"):
		return CategoryPayments
	case containsAny(n, "RESEND", "SENDGRID", "MAILGUN", "POSTMARK", "SMTP", "EMAIL"):
		return CategoryEmail
	case containsAny(n, "JWT", "AUTH", "OAUTH", "CLERK", "SESSION", "GITHUB_CLIENT", "GOOGLE_CLIENT"):
		return CategoryAuth
	}
	return CategoryOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// mergeStatuses combines stored names with the well-known list, sorted by
// category then name.
func mergeStatuses(stored []Secret) []Status {
	byName := make(map[string]Status, len(stored)+len(knownSecrets))
	for _, name := range knownSecrets {
		byName[name] = Status{Name: name, Category: Categorize(name)}
	}
	for _, s := range stored {
		cat := s.Category
		if cat == "" {
			cat = Categorize(s.Name)
		}
		byName[s.Name] = Status{Name: s.Name, Category: cat, IsConfigured: true}
	}

	out := make([]Status, 0, len(byName))
	for _, st := range byName {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Group buckets statuses by category.
func Group(statuses []Status) map[Category][]Status {
	grouped := make(map[Category][]Status)
	for _, st := range statuses {
		grouped[st.Category] = append(grouped[st.Category], st)
	}
	return grouped
}
