package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockProviderIsDeterministic(t *testing.T) {
	p := NewMockProvider()
	s := Subject{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", ZipCode: "94105"}

	a, err := p.Pull(context.Background(), s)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	b, _ := p.Pull(context.Background(), s)
	if a.CreditScore != b.CreditScore || a.IncomeEstimate != b.IncomeEstimate {
		t.Fatalf("expected identical results, got %+v and %+v", a, b)
	}
	if a.CreditScore < 300 || a.CreditScore > 850 {
		t.Fatalf("score out of range: %d", a.CreditScore)
	}
	if len(a.Raw) == 0 {
		t.Fatalf("expected raw report")
	}
}

func TestMockProviderRejectsMissingName(t *testing.T) {
	_, err := NewMockProvider().Pull(context.Background(), Subject{FirstName: "Ada"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHTTPProviderMapsStatusCodes(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"reportId":"r1","bureau":"acme","creditScore":712,"incomeEstimate":6500000}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "key")
	s := Subject{FirstName: "Ada", LastName: "Lovelace"}

	if _, err := p.Pull(context.Background(), s); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected unavailable for 502, got %v", err)
	}

	status = http.StatusUnprocessableEntity
	if _, err := p.Pull(context.Background(), s); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for 422, got %v", err)
	}

	status = http.StatusOK
	report, err := p.Pull(context.Background(), s)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if report.CreditScore != 712 || report.IncomeEstimate != 6_500_000 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSoftReportBand(t *testing.T) {
	r := SoftReportFor(733)
	if r.Tier != TierPrime || r.ScoreBandLow != 720 || r.ScoreBandHigh != 739 {
		t.Fatalf("unexpected band %+v", r)
	}
	if SoftReportFor(600).Tier != TierSubprime {
		t.Fatalf("expected subprime for 600")
	}
}
