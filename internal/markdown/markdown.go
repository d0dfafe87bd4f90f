// Package markdown renders the small Markdown subset used in notes into an
// HTML fragment. The transform is a fixed sequence of substitutions; escaping
// runs first so that user supplied angle brackets never survive as markup.
package markdown

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.*?)\*`)
	h3Re        = regexp.MustCompile(`(?m)^### (.*?)$`)
	h2Re        = regexp.MustCompile(`(?m)^## (.*?)$`)
	h1Re        = regexp.MustCompile(`(?m)^# (.*?)$`)
	linkRe      = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)

	escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// Render converts markdown to an HTML fragment wrapped in a paragraph.
func Render(md string) string {
	html := escaper.Replace(md)

	html = codeBlockRe.ReplaceAllStringFunc(html, func(block string) string {
		code := strings.TrimSpace(strings.ReplaceAll(block, "```", ""))
		return "<pre><code>" + code + "</code></pre>"
	})

	// Bold before italic, otherwise ** would turn into two empty <em> pairs.
	html = boldRe.ReplaceAllString(html, "<strong>$1</strong>")
	html = italicRe.ReplaceAllString(html, "<em>$1</em>")

	html = h3Re.ReplaceAllString(html, "<h3>$1</h3>")
	html = h2Re.ReplaceAllString(html, "<h2>$1</h2>")
	html = h1Re.ReplaceAllString(html, "<h1>$1</h1>")

	html = linkRe.ReplaceAllStringFunc(html, renderLink)
	html = renderLists(html)

	html = strings.ReplaceAll(html, "\n\n", "</p><p>")
	html = strings.ReplaceAll(html, "\n", "<br>")

	return "<p>" + strings.TrimSpace(html) + "</p>"
}

// renderLink turns one [text](url) match into an anchor. Targets with an
// unknown scheme (javascript:, data:) are rendered as plain text.
func renderLink(match string) string {
	parts := linkRe.FindStringSubmatch(match)
	text, href := parts[1], strings.TrimSpace(parts[2])
	if !safeHref(href) {
		return text
	}
	href = strings.ReplaceAll(href, `"`, "&quot;")
	return `<a href="` + href + `" target="_blank" rel="noopener noreferrer">` + text + `</a>`
}

func safeHref(href string) bool {
	lower := strings.ToLower(href)
	for _, prefix := range []string{"http://", "https://", "mailto:", "/", "#"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// renderLists converts "- " lines into list items and wraps each run of
// consecutive items in a single <ul>. Items of one list are joined without
// newlines so the line break pass does not insert <br> between them.
func renderLists(html string) string {
	lines := strings.Split(html, "\n")
	out := make([]string, 0, len(lines))
	var items []string

	flush := func() {
		if len(items) > 0 {
			out = append(out, "<ul>"+strings.Join(items, "")+"</ul>")
			items = items[:0]
		}
	}

	for _, line := range lines {
		if item, ok := strings.CutPrefix(line, "- "); ok {
			items = append(items, "<li>"+item+"</li>")
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}
