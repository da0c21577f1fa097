package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// MockProvider derives stable results from a hash of the subject identity,
// so the same consumer always gets the same score and income.
type MockProvider struct{}

// NewMockProvider creates the deterministic mock bureau.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func identityHash(s Subject) [32]byte {
	key := strings.ToLower(strings.Join([]string{
		strings.TrimSpace(s.FirstName),
		strings.TrimSpace(s.LastName),
		strings.TrimSpace(s.Email),
		strings.TrimSpace(s.ZipCode),
	}, "|"))
	return sha256.Sum256([]byte(key))
}

func scoreFromHash(h [32]byte) int {
	return 300 + int(binary.BigEndian.Uint32(h[0:4])%551)
}

func (m *MockProvider) Pull(ctx context.Context, subject Subject) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, ErrProviderUnavailable
	}
	if err := subject.validate(); err != nil {
		return Report{}, err
	}

	h := identityHash(subject)
	score := scoreFromHash(h)
	// $25,000 to $200,000 in cents, nudged upward for higher scores.
	base := int64(binary.BigEndian.Uint32(h[4:8]) % 12_500_000)
	income := 2_500_000 + base + int64(score-300)*9_000

	report := Report{
		ReportID:       "mock_" + hex.EncodeToString(h[8:16]),
		Bureau:         "mock",
		CreditScore:    score,
		IncomeEstimate: income,
	}
	report.Raw, _ = json.Marshal(map[string]any{
		"reportId":       report.ReportID,
		"bureau":         report.Bureau,
		"creditScore":    score,
		"incomeEstimate": income,
		"openTradelines": int(h[16] % 20),
		"inquiries6m":    int(h[17] % 6),
	})
	return report, nil
}

func (m *MockProvider) SoftCheck(ctx context.Context, subject Subject) (SoftReport, error) {
	if err := ctx.Err(); err != nil {
		return SoftReport{}, ErrProviderUnavailable
	}
	if err := subject.validate(); err != nil {
		return SoftReport{}, err
	}
	return SoftReportFor(scoreFromHash(identityHash(subject))), nil
}

var _ Provider = (*MockProvider)(nil)
