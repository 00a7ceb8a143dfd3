package models

import (
	"strings"
)

// ProjectFile is one generated source file.
type ProjectFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// GeneratedProject is the artifact a build produces. Files only grow during a
// build; the whole value is replaced when loaded from history.
type GeneratedProject struct {
	Type        ProjectType   `json:"type"`
	Name        string        `json:"name"`
	Files       []ProjectFile `json:"files"`
	PreviewHTML string        `json:"previewHtml,omitempty"`
}

// AddFile appends f.
func (p *GeneratedProject) AddFile(f ProjectFile) {
	p.Files = append(p.Files, f)
}

// SetFile replaces the file at f.Path, or appends f when the path is new.
func (p *GeneratedProject) SetFile(f ProjectFile) {
	for i := range p.Files {
		if p.Files[i].Path == f.Path {
			p.Files[i] = f
			return
		}
	}
	p.Files = append(p.Files, f)
}

// File returns the file stored at path.
func (p *GeneratedProject) File(path string) (ProjectFile, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f, true
		}
	}
	return ProjectFile{}, false
}

// Paths lists file paths in order.
func (p *GeneratedProject) Paths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.Path
	}
	return paths
}

// Clone returns a deep copy.
func (p *GeneratedProject) Clone() *GeneratedProject {
	if p == nil {
		return nil
	}
	out := *p
	out.Files = append([]ProjectFile(nil), p.Files...)
	return &out
}

const sourceHeader = "// File: "

// CombinedSource concatenates every file into one text blob, each preceded by a
// "// File: <path>" header line. It is sent as current-code context when
// refining.
func (p *GeneratedProject) CombinedSource() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for i, f := range p.Files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sourceHeader)
		b.WriteString(f.Path)
		b.WriteString("\n")
		b.WriteString(f.Content)
	}
	return b.String()
}

// ParseCombinedSource splits a blob produced by CombinedSource back into files.
// Text before the first header is ignored.
func ParseCombinedSource(blob string) []ProjectFile {
	var files []ProjectFile
	var current *ProjectFile
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimRight(strings.Join(body, "\n"), "\n")
		files = append(files, *current)
	}

	for _, line := range strings.Split(blob, "\n") {
		if strings.HasPrefix(line, sourceHeader) {
			flush()
			path := strings.TrimSpace(strings.TrimPrefix(line, sourceHeader))
			current = &ProjectFile{Path: path, Language: LanguageForPath(path)}
			body = nil
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return files
}

// LanguageForPath infers a language tag from a file extension.
func LanguageForPath(path string) string {
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return "text"
	}
	switch strings.ToLower(path[dot+1:]) {
	case "html", "htm":
		return "html"
	case "css":
		return "css"
	case "js", "mjs", "cjs":
		return "javascript"
	case "jsx":
		return "jsx"
	case "ts":
		return "typescript"
	case "tsx":
		return "tsx"
	case "json":
		return "json"
	case "sql":
		return "sql"
	case "md":
		return "markdown"
	case "py":
		return "python"
	}
	return "text"
}

// ArtifactKind separates the backend artifacts shown in the backend panel.
type ArtifactKind string

const (
	ArtifactMigration    ArtifactKind = "migration"
	ArtifactEdgeFunction ArtifactKind = "edge_function"
)

// BackendArtifact is a database migration or server function produced by the
// backend agent.
type BackendArtifact struct {
	Kind    ArtifactKind `json:"kind"`
	Name    string       `json:"name"`
	Path    string       `json:"path"`
	Content string       `json:"content"`
}

// AsFile returns the artifact as a project file.
func (a BackendArtifact) AsFile() ProjectFile {
	return ProjectFile{Path: a.Path, Content: a.Content, Language: LanguageForPath(a.Path)}
}
