package repository

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestContainsPatternEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"dana":        "%dana%",
		"50%":         `%50\%%`,
		"first_name":  `%first\_name%`,
		`C:\leads`:    `%C:\\leads%`,
		`100%_off\\x`: `%100\%\_off\\\\x%`,
	}
	for in, want := range cases {
		if got := containsPattern(in); got != want {
			t.Fatalf("containsPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildLeadListWhereSearchIsLiteral(t *testing.T) {
	userID := uuid.New()
	where, args := buildLeadListWhere(ListParams{UserID: userID, Search: "  a_b%  "})

	if len(args) != 2 || args[0] != userID {
		t.Fatalf("unexpected args %v", args)
	}
	if args[1] != `%a\_b\%%` {
		t.Fatalf("expected escaped search term, got %q", args[1])
	}
	if n := strings.Count(where, `ILIKE $2 ESCAPE '\'`); n != 4 {
		t.Fatalf("expected four escaped ILIKE clauses, got %d in %s", n, where)
	}
}

func TestBuildLeadListWhereNumbersPlaceholders(t *testing.T) {
	processed := true
	minScore, maxScore := 650, 800
	where, args := buildLeadListWhere(ListParams{
		UserID:         uuid.New(),
		TagType:        "qualified",
		Processed:      &processed,
		MinCreditScore: &minScore,
		MaxCreditScore: &maxScore,
	})
	if len(args) != 4 {
		t.Fatalf("expected four args, got %v", args)
	}
	for _, frag := range []string{"t.tag_type = $2", "l.processed_at IS NOT NULL", "l.credit_score >= $3", "l.credit_score <= $4"} {
		if !strings.Contains(where, frag) {
			t.Fatalf("expected %q in %s", frag, where)
		}
	}
}
