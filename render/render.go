// Package render converts model-authored markdown into sanitized HTML
// for callers that display responses in a browser.
//
// Model output is untrusted: the markdown is rendered first, then the
// resulting HTML is run through a sanitizer policy so embedded script
// or event handlers never reach the page.
package render

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to sanitized HTML.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// New creates a Renderer with GitHub-flavored markdown extensions and
// the UGC sanitizer policy.
func New() *Renderer {
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// HTML renders the markdown source and sanitizes the result.
func (r *Renderer) HTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}
