package validation

import (
	"strings"
	"testing"

	"github.com/followup/ticket-service/internal/domain"
)

func strPtr(v string) *string { return &v }

func validFields() Fields {
	return Fields{
		IncNumber:   strPtr("123456789"),
		MSISDN:      strPtr("15551234567"),
		SubmittedBy: strPtr("Dana Agent"),
		Description: strPtr("Customer cannot place outbound calls"),
	}
}

func TestValidateAcceptsValidPayload(t *testing.T) {
	if errs := Validate(validFields(), true); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateIncNumberLength(t *testing.T) {
	f := validFields()
	f.IncNumber = strPtr("12345678")
	errs := Validate(f, true)
	if _, ok := errs["incNumber"]; !ok {
		t.Fatalf("expected incNumber error, got %v", errs)
	}
	if len(errs) != 1 {
		t.Errorf("expected only incNumber to fail, got %v", errs)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Fields)
		field string
	}{
		{"inc not numeric", func(f *Fields) { f.IncNumber = strPtr("12345678a") }, "incNumber"},
		{"msisdn short", func(f *Fields) { f.MSISDN = strPtr("123456789") }, "msisdn"},
		{"msisdn long", func(f *Fields) { f.MSISDN = strPtr("1234567890123456") }, "msisdn"},
		{"msisdn letters", func(f *Fields) { f.MSISDN = strPtr("12345abcde") }, "msisdn"},
		{"submitter short", func(f *Fields) { f.SubmittedBy = strPtr(" D ") }, "submittedBy"},
		{"submitter long", func(f *Fields) { f.SubmittedBy = strPtr(strings.Repeat("x", 51)) }, "submittedBy"},
		{"description short", func(f *Fields) { f.Description = strPtr("too short") }, "description"},
		{"description long", func(f *Fields) { f.Description = strPtr(strings.Repeat("y", 501)) }, "description"},
		{"priority unknown", func(f *Fields) { p := domain.TicketPriority("urgent"); f.Priority = &p }, "priority"},
		{"missing msisdn", func(f *Fields) { f.MSISDN = nil }, "msisdn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.edit(&f)
			errs := Validate(f, true)
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidatePartialSkipsMissing(t *testing.T) {
	f := Fields{Description: strPtr("A sufficiently long description")}
	if errs := Validate(f, false); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if names := f.Names(); len(names) != 1 || names[0] != "description" {
		t.Errorf("names: got %v, want [description]", names)
	}
}

func TestValidateComment(t *testing.T) {
	if errs := ValidateComment("   "); errs["text"] == "" {
		t.Errorf("expected text error, got %v", errs)
	}
	if errs := ValidateComment("hello"); errs != nil {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestSanitizerStripsMarkup(t *testing.T) {
	s := NewSanitizer()
	f := s.Fields(Fields{
		SubmittedBy: strPtr("<b>Dana</b>"),
		Description: strPtr("<p>Line is down</p><script>alert(1)</script>"),
	})
	if *f.SubmittedBy != "Dana" {
		t.Errorf("submittedBy: got %q, want Dana", *f.SubmittedBy)
	}
	if strings.Contains(*f.Description, "<script>") {
		t.Errorf("description kept script tag: %q", *f.Description)
	}
	if !strings.Contains(*f.Description, "<p>Line is down</p>") {
		t.Errorf("description lost safe markup: %q", *f.Description)
	}
	if f.IncNumber != nil {
		t.Error("absent fields must stay absent")
	}
}

func TestSanitizerKeepsPlainTextVerbatim(t *testing.T) {
	s := NewSanitizer()
	tests := []struct {
		name string
		in   string
		want string
		fn   func(string) string
	}{
		{name: "apostrophe", in: "Dana O'Brien", want: "Dana O'Brien", fn: s.Plain},
		{name: "ampersand", in: "AT&T retail", want: "AT&T retail", fn: s.Plain},
		{name: "quotes", in: `Ops "night" desk`, want: `Ops "night" desk`, fn: s.Plain},
		{name: "encoded tag stays inert", in: "&lt;b&gt;Dana", want: "bDana", fn: s.Plain},
		{name: "rich plain text", in: `Customer can't call & text "home"`, want: `Customer can't call & text "home"`, fn: s.Rich},
		{name: "rich comment", in: "it's fixed", want: "it's fixed", fn: s.Rich},
		{name: "rich markup stays escaped", in: "<b>AT&T</b> down", want: "<b>AT&amp;T</b> down", fn: s.Rich},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateCountsVisibleCharacters(t *testing.T) {
	s := NewSanitizer()

	name := strings.Repeat("O'", 25)
	f := validFields()
	f.SubmittedBy = strPtr(name)
	f = s.Fields(f)
	if *f.SubmittedBy != name {
		t.Fatalf("submittedBy: got %q, want %q", *f.SubmittedBy, name)
	}
	if errs := Validate(f, true); errs != nil {
		t.Errorf("50 character name rejected: %v", errs)
	}

	f.Description = strPtr(s.Rich("<b>" + strings.Repeat("&", 400) + "</b>"))
	if errs := Validate(f, true); errs != nil {
		t.Errorf("description with entities rejected: %v", errs)
	}

	f.SubmittedBy = strPtr(strings.Repeat("O'", 26))
	if errs := Validate(f, true); errs[domain.FieldSubmittedBy] == "" {
		t.Errorf("expected submittedBy length error, got %v", errs)
	}
}
