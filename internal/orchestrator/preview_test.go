package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"heftcoder/pkg/models"
)

func TestBuildPreviewSynthesisesShellWithoutHTML(t *testing.T) {
	css := ".card {\n  padding: 2rem;\n}"
	js := "document.getElementById('root').textContent = 'hi';"
	project := &models.GeneratedProject{
		Name: "Cards",
		Files: []models.ProjectFile{
			{Path: "styles.css", Content: css},
			{Path: "script.js", Content: js},
		},
	}

	doc := BuildPreview(project)

	assert.Contains(t, doc, `<script src="https://cdn.tailwindcss.com">`)
	assert.Contains(t, doc, "<style>\n"+css+"\n</style>")
	assert.Contains(t, doc, "<script>\n"+js+"\n</script>")
	assert.Contains(t, doc, "<title>Cards</title>")
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
}

func TestBuildPreviewInlinesIntoFirstPage(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title>Shop</title>
  <link rel="stylesheet" href="./styles.css">
</head>
<body>
  <main>Shop</main>
  <script src="script.js"></script>
</body>
</html>`
	project := &models.GeneratedProject{Files: []models.ProjectFile{
		{Path: "index.html", Content: page},
		{Path: "about.html", Content: "<p>about</p>"},
		{Path: "styles.css", Content: "main{color:red}"},
		{Path: "script.js", Content: "console.log(1)"},
	}}

	doc := BuildPreview(project)

	assert.NotContains(t, doc, "styles.css")
	assert.NotContains(t, doc, `src="script.js"`)
	assert.NotContains(t, doc, "about")
	assert.NotContains(t, doc, "cdn.tailwindcss.com")

	styleAt := strings.Index(doc, "<style>\nmain{color:red}\n</style>")
	headAt := strings.Index(doc, "</head>")
	assert.True(t, styleAt >= 0 && styleAt < headAt, "style must sit inside head")

	scriptAt := strings.Index(doc, "<script>\nconsole.log(1)\n</script>")
	bodyAt := strings.LastIndex(doc, "</body>")
	assert.True(t, scriptAt >= 0 && scriptAt < bodyAt, "script must sit before </body>")
}

func TestBuildPreviewFragmentWithoutHeadOrBody(t *testing.T) {
	project := &models.GeneratedProject{Files: []models.ProjectFile{
		{Path: "index.html", Content: "<h1>Bare</h1>"},
		{Path: "styles.css", Content: "h1{}"},
		{Path: "app.js", Content: "go()"},
	}}

	doc := BuildPreview(project)

	assert.True(t, strings.HasPrefix(doc, "<style>\nh1{}\n</style>"))
	assert.Contains(t, doc, "<h1>Bare</h1>")
	assert.True(t, strings.HasSuffix(doc, "<script>\ngo()\n</script>\n"))
}

func TestBuildPreviewEmptyProject(t *testing.T) {
	assert.Empty(t, BuildPreview(nil))
	assert.Empty(t, BuildPreview(&models.GeneratedProject{}))
}
