package orchestrator

import (
	"html"
	"path"
	"regexp"
	"strings"

	"heftcoder/pkg/models"
)

const tailwindCDNTag = `<script src="https://cdn.tailwindcss.com"></script>`

var (
	headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)
	bodyOpenRe  = regexp.MustCompile(`(?i)<body[^>]*>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
)

// BuildPreview assembles one self-contained HTML document from a project.
//
// With an HTML file, the first one is used as the page: generated stylesheets
// are inlined as a <style> block before </head>, generated scripts as a
// <script> block before </body>, and the page's own <link>/<script src>
// references to those files are removed. Without one, a minimal shell that
// loads Tailwind from its CDN is synthesised around the CSS and JS.
func BuildPreview(project *models.GeneratedProject) string {
	if project == nil || len(project.Files) == 0 {
		return ""
	}

	var (
		page    *models.ProjectFile
		styles  []models.ProjectFile
		scripts []models.ProjectFile
	)
	for i := range project.Files {
		f := &project.Files[i]
		switch strings.ToLower(path.Ext(f.Path)) {
		case ".html", ".htm":
			if page == nil {
				page = f
			}
		case ".css":
			styles = append(styles, *f)
		case ".js", ".mjs":
			scripts = append(scripts, *f)
		}
	}

	css := joinContents(styles)
	js := joinContents(scripts)

	if page == nil {
		return previewShell(project.Name, css, js)
	}

	doc := page.Content
	for _, f := range styles {
		doc = linkRefRe(f.Path).ReplaceAllString(doc, "")
	}
	for _, f := range scripts {
		doc = scriptRefRe(f.Path).ReplaceAllString(doc, "")
	}

	if css != "" {
		doc = insertBefore(doc, headCloseRe, "<style>\n"+css+"\n</style>\n", true)
	}
	if js != "" {
		doc = insertBefore(doc, bodyCloseRe, "<script>\n"+js+"\n</script>\n", false)
	}
	return doc
}

func previewShell(title, css, js string) string {
	if title == "" {
		title = "Preview"
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	b.WriteString(tailwindCDNTag + "\n")
	if css != "" {
		b.WriteString("<style>\n" + css + "\n</style>\n")
	}
	b.WriteString("</head>\n<body>\n<div id=\"root\"></div>\n")
	if js != "" {
		b.WriteString("<script>\n" + js + "\n</script>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func joinContents(files []models.ProjectFile) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		if f.Content != "" {
			parts = append(parts, f.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// insertBefore places snippet before the last match of re (the first for
// </head>). Without a match, head snippets go after <body> or at the top and
// body snippets at the end.
func insertBefore(doc string, re *regexp.Regexp, snippet string, head bool) string {
	locs := re.FindAllStringIndex(doc, -1)
	if len(locs) > 0 {
		at := locs[len(locs)-1][0]
		if head {
			at = locs[0][0]
		}
		return doc[:at] + snippet + doc[at:]
	}
	if head {
		if loc := bodyOpenRe.FindStringIndex(doc); loc != nil {
			return doc[:loc[1]] + "\n" + snippet + doc[loc[1]:]
		}
		return snippet + doc
	}
	return doc + "\n" + snippet
}

func refPattern(p string) string {
	return `(?:\./|/)?` + regexp.QuoteMeta(strings.TrimPrefix(p, "./"))
}

func linkRefRe(p string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<link[^>]*href=["']` + refPattern(p) + `["'][^>]*>\s*`)
}

func scriptRefRe(p string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<script[^>]*src=["']` + refPattern(p) + `["'][^>]*>\s*</script>\s*`)
}
