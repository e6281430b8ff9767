// Package markdown renders session reports as markdown, HTML or plain text.
package markdown

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

func render(md []byte, opts html.RendererOptions) string {
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// ToHTMLPage renders md as a complete HTML document titled title. Raw HTML
// in md is dropped.
func ToHTMLPage(md []byte, title string) string {
	return render(md, html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.HrefTargetBlank | html.CompletePage | html.SkipHTML,
	})
}

// markdownEscaper backslash-escapes the characters that would otherwise start
// emphasis, code, links or inline HTML.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`#`, `\#`,
)

// EscapeText makes s render as literal text when embedded in markdown.
func EscapeText(s string) string {
	return markdownEscaper.Replace(s)
}
