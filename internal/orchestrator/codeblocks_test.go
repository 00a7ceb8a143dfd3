package orchestrator

import (
	"testing"

	"heftcoder/pkg/models"
)

func TestExtractFilesDefaultNames(t *testing.T) {
	reply := "Intro text\n```html\n<h1>Hi</h1>\n```\nmore\n```CSS\nh1 { color: red; }\n```\n```javascript\nalert(1)\n```"

	files := extractFiles(reply)
	want := []string{"index.html", "styles.css", "script.js"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d: %+v", len(want), len(files), files)
	}
	for i, f := range files {
		if f.Path != want[i] {
			t.Fatalf("file %d path = %q, want %q", i, f.Path, want[i])
		}
	}
	if files[1].Language != "css" {
		t.Fatalf("language = %q, want css", files[1].Language)
	}
	if files[0].Content != "<h1>Hi</h1>" {
		t.Fatalf("content = %q", files[0].Content)
	}
}

func TestExtractFilesDuplicateLanguageGetsSuffix(t *testing.T) {
	reply := "```css\na{}\n```\n```css\nb{}\n```\n```css\nc{}\n```"

	files := extractFiles(reply)
	got := (&models.GeneratedProject{Files: files}).Paths()
	want := []string{"styles.css", "styles-2.css", "styles-3.css"}
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}
}

func TestExtractFilesHonoursFileMarkers(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		path    string
		content string
	}{
		{
			name:    "js comment inside block",
			reply:   "```js\n// file: src/app.js\nrun()\n```",
			path:    "src/app.js",
			content: "run()",
		},
		{
			name:    "html comment inside block",
			reply:   "```html\n<!-- File: about.html -->\n<p>About</p>\n```",
			path:    "about.html",
			content: "<p>About</p>",
		},
		{
			name:    "css block comment",
			reply:   "```css\n/* file: theme.css */\nbody{}\n```",
			path:    "theme.css",
			content: "body{}",
		},
		{
			name:    "marker line before fence",
			reply:   "// file: lib/util.ts\n```ts\nexport {}\n```",
			path:    "lib/util.ts",
			content: "export {}",
		},
		{
			name:    "escaping path falls back to default",
			reply:   "```html\n<!-- file: ../../etc/passwd -->\n<p>x</p>\n```",
			path:    "index.html",
			content: "<p>x</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := extractFiles(tt.reply)
			if len(files) != 1 {
				t.Fatalf("expected 1 file, got %+v", files)
			}
			if files[0].Path != tt.path {
				t.Fatalf("path = %q, want %q", files[0].Path, tt.path)
			}
			if files[0].Content != tt.content {
				t.Fatalf("content = %q, want %q", files[0].Content, tt.content)
			}
		})
	}
}

func TestExtractFilesUntaggedBlocks(t *testing.T) {
	reply := "```\nnpm install\n```\n```\n<!DOCTYPE html><html></html>\n```"

	files := extractFiles(reply)
	if len(files) != 1 {
		t.Fatalf("expected only the html block, got %+v", files)
	}
	if files[0].Path != "index.html" {
		t.Fatalf("path = %q, want index.html", files[0].Path)
	}
}

func TestExtractCodeBlocksUnterminated(t *testing.T) {
	blocks := extractCodeBlocks("```python\nprint('hi')\n")
	if len(blocks) != 1 || blocks[0].Lang != "python" || blocks[0].Content != "print('hi')" {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestSanitizeFilePath(t *testing.T) {
	tests := map[string]string{
		"src/App.tsx":         "src/App.tsx",
		"./src//x.js":         "src/x.js",
		"`index.html`":        "index.html",
		"package.json (root)": "package.json",
		"src\\win.js":         "src/win.js",
		"/etc/hosts":          "",
		"C:/x.js":             "",
		"../x.js":             "",
		"  ":                  "",
	}
	for in, want := range tests {
		if got := sanitizeFilePath(in); got != want {
			t.Errorf("sanitizeFilePath(%q) = %q, want %q", in, got, want)
		}
	}
}
