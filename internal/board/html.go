package board

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))
	policy   = bluemonday.UGCPolicy()
)

var pageTemplate = template.Must(template.New("board").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body { font-family: system-ui, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; color: #333; }
    table { border-collapse: collapse; width: 100%; }
    th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #dee2e6; }
    td:nth-child(3), th:nth-child(3) { text-align: right; }
    @media (prefers-color-scheme: dark) { body { background: #121212; color: #e0e0e0; } th, td { border-color: #333; } }
  </style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Markdown renders the leaderboard as a markdown document. Names are
// escaped; they come from untrusted profiles.
func (b Board) Markdown(title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))
	if b.Empty() {
		sb.WriteString("No zaps found.\n")
		return sb.String()
	}

	sb.WriteString("| # | Name | Sats |\n|---|---|---|\n")
	for _, e := range b.Entries {
		name := escapeMarkdown(oneLine(e.Name))
		if e.Npub != "" {
			name = fmt.Sprintf("[%s](https://njump.me/%s)", name, e.Npub)
		}
		fmt.Fprintf(&sb, "| %d | %s | %s |\n", e.Rank, name, FormatSats(e.Sats))
	}
	fmt.Fprintf(&sb, "\n**Total:** %s sats\n", FormatSats(b.TotalSats))
	if b.Since != nil {
		fmt.Fprintf(&sb, "\n_Zaps counted since %s_\n", b.Since.Format("2006-01-02"))
	}
	return sb.String()
}

// HTML renders a standalone page: markdown through goldmark, sanitized with
// bluemonday, wrapped in a small template.
func (b Board) HTML(title string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(b.Markdown(title)), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	safe := policy.SanitizeBytes(body.Bytes())

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(safe),
	})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return page.String(), nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
	"[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`,
	"!", `\!`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
