package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("(415) 555-2671"); got != "+14155552671" {
		t.Fatalf("expected +14155552671, got %q", got)
	}
	if got := NormalizeE164("  not a phone "); got != "not a phone" {
		t.Fatalf("expected trimmed input back, got %q", got)
	}
}

func TestDigitsE164(t *testing.T) {
	if got := DigitsE164("+1 415 555 2671"); got != "14155552671" {
		t.Fatalf("expected digits, got %q", got)
	}
	if got := DigitsE164("123"); got != "" {
		t.Fatalf("expected empty for invalid number, got %q", got)
	}
}
