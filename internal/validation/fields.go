package validation

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/followup/ticket-service/internal/domain"
)

// Field length rules.
const (
	MinIncNumberDigits   = 9
	MinMSISDNDigits      = 10
	MaxMSISDNDigits      = 15
	MinSubmittedByLength = 2
	MaxSubmittedByLength = 50
	MinDescriptionLength = 10
	MaxDescriptionLength = 500
	MaxCommentLength     = 5000
)

// Fields holds the mutable business fields of a ticket. A nil pointer means
// the field was not supplied.
type Fields struct {
	IncNumber   *string
	MSISDN      *string
	SubmittedBy *string
	Description *string
	Priority    *domain.TicketPriority
}

// Names returns the document names of the supplied fields in a stable order.
func (f Fields) Names() []string {
	var names []string
	if f.IncNumber != nil {
		names = append(names, domain.FieldIncNumber)
	}
	if f.MSISDN != nil {
		names = append(names, domain.FieldMSISDN)
	}
	if f.SubmittedBy != nil {
		names = append(names, domain.FieldSubmittedBy)
	}
	if f.Description != nil {
		names = append(names, domain.FieldDescription)
	}
	if f.Priority != nil {
		names = append(names, domain.FieldPriority)
	}
	return names
}

// Empty reports whether no field was supplied.
func (f Fields) Empty() bool {
	return len(f.Names()) == 0
}

// Validate checks the supplied fields and returns field -> message for each
// failure. With requireAll, every field except priority must be present.
func Validate(f Fields, requireAll bool) map[string]string {
	errs := map[string]string{}

	check := func(name string, value *string, rule func(string) string) {
		if value == nil {
			if requireAll {
				errs[name] = name + " is required"
			}
			return
		}
		if msg := rule(*value); msg != "" {
			errs[name] = msg
		}
	}

	check(domain.FieldIncNumber, f.IncNumber, incNumberRule)
	check(domain.FieldMSISDN, f.MSISDN, msisdnRule)
	check(domain.FieldSubmittedBy, f.SubmittedBy, lengthRule(domain.FieldSubmittedBy, MinSubmittedByLength, MaxSubmittedByLength))
	check(domain.FieldDescription, f.Description, lengthRule(domain.FieldDescription, MinDescriptionLength, MaxDescriptionLength))

	if f.Priority != nil && !f.Priority.Valid() {
		errs[domain.FieldPriority] = "priority must be one of low, normal, high"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateComment checks free-text comment bodies.
func ValidateComment(text string) map[string]string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return map[string]string{"text": "text is required"}
	case textLength(text) > MaxCommentLength:
		return map[string]string{"text": fmt.Sprintf("text must be at most %d characters", MaxCommentLength)}
	}
	return nil
}

func incNumberRule(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "incNumber is required"
	}
	if !isDigits(v) {
		return "incNumber must contain only digits"
	}
	if len(v) < MinIncNumberDigits {
		return fmt.Sprintf("incNumber must be at least %d digits", MinIncNumberDigits)
	}
	return ""
}

func msisdnRule(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "msisdn is required"
	}
	if !isDigits(v) {
		return "msisdn must contain only digits"
	}
	if len(v) < MinMSISDNDigits || len(v) > MaxMSISDNDigits {
		return fmt.Sprintf("msisdn must be %d to %d digits", MinMSISDNDigits, MaxMSISDNDigits)
	}
	return ""
}

func lengthRule(name string, min, max int) func(string) string {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return name + " is required"
		}
		if n := textLength(v); n < min || n > max {
			return fmt.Sprintf("%s must be between %d and %d characters", name, min, max)
		}
		return ""
	}
}

// textLength counts runes of the visible text, so entities kept in
// sanitized markup count as one character.
func textLength(v string) int {
	return utf8.RuneCountInString(html.UnescapeString(v))
}

func isDigits(v string) bool {
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return v != ""
}
