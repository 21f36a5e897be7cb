// Package textutil cleans user supplied text and renders reply markdown.
package textutil

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Processor strips markup from plain text fields and renders reply bodies.
type Processor struct {
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
	md     goldmark.Markdown
}

// New builds a processor. Policies are safe for concurrent use once built.
func New() *Processor {
	ugc := bluemonday.UGCPolicy()
	ugc.RequireNoFollowOnLinks(true)
	ugc.AddTargetBlankToFullyQualifiedLinks(true)

	return &Processor{
		strict: bluemonday.StrictPolicy(),
		ugc:    ugc,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
		),
	}
}

// StripHTML removes every tag and returns trimmed plain text. Entities
// produced by the sanitiser are decoded so "R&D" stays "R&D".
func (p *Processor) StripHTML(raw string) string {
	return strings.TrimSpace(html.UnescapeString(p.strict.Sanitize(raw)))
}

// StripHTMLPtr applies StripHTML to an optional field; blank results become nil.
func (p *Processor) StripHTMLPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := p.StripHTML(*raw)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// RenderMarkdown converts reply markdown to sanitised HTML.
func (p *Processor) RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.ugc.Sanitize(buf.String())), nil
}
