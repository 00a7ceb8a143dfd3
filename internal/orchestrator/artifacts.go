package orchestrator

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"heftcoder/pkg/models"
)

var (
	secretNameRe   = regexp.MustCompile(`\b[A-Z][A-Z0-9_]*_(?:KEY|SECRET|TOKEN)\b`)
	createTableRe  = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?(?:"?\w+"?\.)?"?(\w+)"?`)
	functionPathRe = regexp.MustCompile(`^supabase/functions/([A-Za-z0-9_-]+)/`)
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// platformSecrets are provided by the hosting platform and never requested.
var platformSecrets = map[string]bool{
	"SUPABASE_ANON_KEY":         true,
	"SUPABASE_SERVICE_ROLE_KEY": true,
}

// extractBackendArtifacts finds migrations and server functions in a backend
// reply. sql blocks become migrations; TypeScript or JavaScript blocks that
// call Deno.serve become edge functions.
func extractBackendArtifacts(reply string) []models.BackendArtifact {
	var (
		out        []models.BackendArtifact
		migrations int
		functions  int
		used       = make(map[string]bool)
	)

	for _, b := range extractCodeBlocks(reply) {
		if b.Content == "" {
			continue
		}
		explicit := sanitizeFilePath(b.Path)

		switch {
		case b.Lang == "sql" || strings.HasSuffix(explicit, ".sql"):
			migrations++
			name := migrationName(b.Content, migrations)
			p := explicit
			if p == "" || !strings.HasPrefix(p, "supabase/migrations/") {
				p = fmt.Sprintf("supabase/migrations/%03d_%s.sql", migrations, name)
			}
			p = uniquePath(p, used)
			used[p] = true
			out = append(out, models.BackendArtifact{
				Kind:    models.ArtifactMigration,
				Name:    strings.TrimSuffix(path.Base(p), ".sql"),
				Path:    p,
				Content: b.Content,
			})

		case isScriptLang(b.Lang) && strings.Contains(b.Content, "Deno.serve"):
			functions++
			name := fmt.Sprintf("function-%d", functions)
			if m := functionPathRe.FindStringSubmatch(explicit); m != nil {
				name = m[1]
			}
			p := uniquePath(fmt.Sprintf("supabase/functions/%s/index.ts", name), used)
			used[p] = true
			out = append(out, models.BackendArtifact{
				Kind:    models.ArtifactEdgeFunction,
				Name:    name,
				Path:    p,
				Content: b.Content,
			})
		}
	}
	return out
}

func isScriptLang(lang string) bool {
	switch lang {
	case "ts", "typescript", "js", "javascript":
		return true
	}
	return false
}

// migrationName names a migration after its first created table.
func migrationName(sql string, n int) string {
	if m := createTableRe.FindStringSubmatch(sql); m != nil {
		slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(m[1]), "_"), "_")
		if slug != "" {
			return "create_" + slug
		}
	}
	return fmt.Sprintf("migration_%d", n)
}

// requiredSecrets lists the upper-case *_KEY, *_SECRET and *_TOKEN names a
// reply refers to, in first-seen order.
func requiredSecrets(reply string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range secretNameRe.FindAllString(reply, -1) {
		if platformSecrets[name] || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
