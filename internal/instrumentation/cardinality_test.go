package instrumentation

import (
	"reflect"
	"testing"
)

func TestExtractUserDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane@example.com", "example.com"},
		{"Ops@ACME.CL", "acme.cl"},
		{"invalid", "unknown"},
		{"a@b@c", "unknown"},
		{"user@", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := ExtractUserDomain(tt.email); got != tt.want {
				t.Errorf("ExtractUserDomain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestRecipientDomains(t *testing.T) {
	got := RecipientDomains([]string{"b@zeta.com", " a@acme.cl", "c@ACME.cl", "broken"})
	want := []string{"acme.cl", "unknown", "zeta.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RecipientDomains() = %v, want %v", got, want)
	}

	if got := RecipientDomains(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
