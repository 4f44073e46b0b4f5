// Package render converts model answers, which are usually markdown,
// into HTML for web clients and plain text for terminals.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in answers is escaped, not passed through.
var md = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// HTML renders markdown as an HTML fragment.
func HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(\S(?:.*?\S)?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// Plain strips markdown emphasis, headings, links and inline code,
// keeping the text and line structure.
func Plain(text string) string {
	s := mdHeading.ReplaceAllString(text, "")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
