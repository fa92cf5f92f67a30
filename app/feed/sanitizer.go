package feed

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer turns fetched free text into markup that is safe to render.
type Sanitizer interface {
	Sanitize(text, contentType string) string
}

// HTMLSanitizer cleans feed markup with the bluemonday user generated content policy.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

var _ Sanitizer = (*HTMLSanitizer)(nil)

func NewSanitizer() *HTMLSanitizer {
	return &HTMLSanitizer{policy: bluemonday.UGCPolicy()}
}

func (s *HTMLSanitizer) Sanitize(text, contentType string) string {
	switch contentType {
	case TypeHTML, "application/xhtml+xml":
		return s.policy.Sanitize(text)
	case TypePlain:
		return html.EscapeString(text)
	default:
		return text
	}
}
