package publish

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"heftcoder/pkg/models"
)

var (
	titleTagRe = regexp.MustCompile(`(?i)<title[\s>]`)
	headOpenRe = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	htmlOpenRe = regexp.MustCompile(`(?i)<html(\s[^>]*)?>`)
)

// Render returns the document served for page. Title and description meta
// are injected only when the stored document has no <title> of its own.
func Render(page *models.PublishedPage) string {
	doc := page.HTML
	if titleTagRe.MatchString(doc) {
		return doc
	}

	meta := headMeta(page)
	if meta == "" {
		return doc
	}

	if loc := headOpenRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + meta + doc[loc[1]:]
	}
	if loc := htmlOpenRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "<head>" + meta + "</head>" + doc[loc[1]:]
	}
	return "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">" + meta + "</head><body>" + doc + "</body></html>"
}

func headMeta(page *models.PublishedPage) string {
	var b strings.Builder
	if t := strings.TrimSpace(page.Title); t != "" {
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(t))
	}
	if d := strings.TrimSpace(page.Description); d != "" {
		fmt.Fprintf(&b, `<meta name="description" content="%s">`, html.EscapeString(d))
	}
	return b.String()
}

// NotFoundPage is served for unknown slugs.
func NotFoundPage(slug string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Page not found</title>
<style>body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#0b0b0f;color:#e5e5e5}main{text-align:center}h1{font-size:3rem;margin:0}</style>
</head>
<body><main><h1>404</h1><p>No site is published at <code>/p/%s</code>.</p></main></body>
</html>`, html.EscapeString(slug))
}
