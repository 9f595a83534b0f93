package validation

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from user supplied text before it is persisted.
// Short fields lose all markup; long-form text keeps safe formatting.
type Sanitizer struct {
	plain *bluemonday.Policy
	rich  *bluemonday.Policy
}

// NewSanitizer builds the sanitizing policies.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		plain: bluemonday.StrictPolicy(),
		rich:  bluemonday.UGCPolicy(),
	}
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Plain removes every tag and returns the remaining text unescaped, so
// "O'Brien" and "AT&T" are stored as typed. Angle brackets that only
// appear after unescaping are dropped.
func (s *Sanitizer) Plain(v string) string {
	text := html.UnescapeString(s.plain.Sanitize(v))
	return strings.TrimSpace(angleBrackets.Replace(text))
}

// Rich keeps user-generated-content formatting and drops scripts, handlers
// and unsafe URLs. Output without any markup is returned as plain text;
// output that still carries tags stays escaped HTML.
func (s *Sanitizer) Rich(v string) string {
	cleaned := strings.TrimSpace(s.rich.Sanitize(v))
	if text := html.UnescapeString(cleaned); !strings.ContainsAny(text, "<>") {
		return text
	}
	return cleaned
}

// Fields returns a sanitized copy of f.
func (s *Sanitizer) Fields(f Fields) Fields {
	out := Fields{Priority: f.Priority}
	out.IncNumber = s.apply(f.IncNumber, s.Plain)
	out.MSISDN = s.apply(f.MSISDN, s.Plain)
	out.SubmittedBy = s.apply(f.SubmittedBy, s.Plain)
	out.Description = s.apply(f.Description, s.Rich)
	return out
}

func (s *Sanitizer) apply(v *string, fn func(string) string) *string {
	if v == nil {
		return nil
	}
	cleaned := fn(*v)
	return &cleaned
}
