package orchestrator

import (
	"fmt"
	"path"
	"strings"

	"heftcoder/pkg/models"
)

// codeBlock is one fenced block from a model reply.
type codeBlock struct {
	Lang    string
	Path    string // explicit filename marker, if any
	Content string
}

// defaultFileNames maps fence language tags to the file a block becomes when
// it carries no explicit name.
var defaultFileNames = map[string]string{
	"html":       "index.html",
	"htm":        "index.html",
	"css":        "styles.css",
	"js":         "script.js",
	"javascript": "script.js",
	"jsx":        "App.jsx",
	"ts":         "index.ts",
	"typescript": "index.ts",
	"tsx":        "App.tsx",
	"json":       "data.json",
	"sql":        "schema.sql",
	"py":         "main.py",
	"python":     "main.py",
	"md":         "README.md",
	"markdown":   "README.md",
	"sh":         "setup.sh",
	"bash":       "setup.sh",
	"shell":      "setup.sh",
	"yaml":       "config.yaml",
	"yml":        "config.yaml",
}

var fileMarkerPrefixes = []string{"// file:", "# file:", "/* file:", "<!-- file:", "-- file:"}

// parseFileMarker recognises "// File: path" style comments in any of the
// comment syntaxes the agents use.
func parseFileMarker(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, prefix := range fileMarkerPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		name := strings.TrimSpace(trimmed[len(prefix):])
		name = strings.TrimSuffix(name, "-->")
		name = strings.TrimSuffix(name, "*/")
		name = strings.TrimSpace(name)
		if name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}

// extractCodeBlocks scans a reply for ``` fenced blocks. A filename marker on
// the line before the fence or on the first line inside it names the block;
// a marker inside the block is removed from its content. An unterminated
// final block is kept.
func extractCodeBlocks(reply string) []codeBlock {
	var (
		blocks     []codeBlock
		current    *codeBlock
		body       []string
		pending    string
		firstInner bool
	)

	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if current == nil {
				lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				if fields := strings.Fields(lang); len(fields) > 0 {
					lang = strings.ToLower(fields[0])
				}
				current = &codeBlock{Lang: lang, Path: pending}
				pending = ""
				body = nil
				firstInner = true
				continue
			}
			current.Content = strings.TrimSpace(strings.Join(body, "\n"))
			blocks = append(blocks, *current)
			current = nil
			continue
		}

		if current == nil {
			if name, ok := parseFileMarker(line); ok {
				pending = name
			} else if trimmed != "" {
				pending = ""
			}
			continue
		}

		if firstInner {
			firstInner = false
			if name, ok := parseFileMarker(line); ok {
				current.Path = name
				continue
			}
		}
		body = append(body, line)
	}

	if current != nil {
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		blocks = append(blocks, *current)
	}
	return blocks
}

// blocksToFiles names each block and returns the resulting files. A second
// block with the same name gets a numeric suffix (styles-2.css). Blocks with
// no language, no name and no recognisable content are dropped as prose.
func blocksToFiles(blocks []codeBlock) []models.ProjectFile {
	used := make(map[string]bool)
	var files []models.ProjectFile

	for _, b := range blocks {
		if b.Content == "" {
			continue
		}
		name := sanitizeFilePath(b.Path)
		if name == "" {
			name = defaultFileName(b)
		}
		if name == "" {
			continue
		}
		name = uniquePath(name, used)
		used[name] = true

		lang := models.LanguageForPath(name)
		if lang == "text" && b.Lang != "" {
			lang = b.Lang
		}
		files = append(files, models.ProjectFile{Path: name, Content: b.Content, Language: lang})
	}
	return files
}

func defaultFileName(b codeBlock) string {
	if name, ok := defaultFileNames[b.Lang]; ok {
		return name
	}
	if b.Lang == "" {
		head := strings.ToLower(b.Content)
		if len(head) > 200 {
			head = head[:200]
		}
		if strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html") {
			return "index.html"
		}
		return ""
	}
	return "file." + b.Lang
}

// uniquePath appends -2, -3, ... before the extension until the name is free.
func uniquePath(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}

// sanitizeFilePath rejects absolute and escaping paths. It returns "" when the
// path cannot be used.
func sanitizeFilePath(p string) string {
	cleaned := strings.TrimSpace(p)
	if cleaned == "" {
		return ""
	}
	// Strip annotations like "package.json (root)"
	if idx := strings.Index(cleaned, " ("); idx != -1 {
		if end := strings.Index(cleaned[idx:], ")"); end != -1 {
			cleaned = strings.TrimSpace(cleaned[:idx] + cleaned[idx+end+1:])
		}
	}
	cleaned = strings.Trim(cleaned, "`*\"'")
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if strings.HasPrefix(cleaned, "/") || (len(cleaned) > 1 && cleaned[1] == ':') {
		return ""
	}
	cleaned = path.Clean(cleaned)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return ""
	}
	return cleaned
}

// extractFiles is extractCodeBlocks followed by blocksToFiles.
func extractFiles(reply string) []models.ProjectFile {
	return blocksToFiles(extractCodeBlocks(reply))
}
