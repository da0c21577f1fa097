package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"credits": formatCredits,
}).ParseFS(templateFS, "templates/*.html"))

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type lowBalanceEmailData struct {
	baseEmailData
	BalanceCents   int64
	ThresholdCents int64
}

type connectionExpiredEmailData struct {
	baseEmailData
	ConnectionName string
	Platform       string
}

type deliveryFailedEmailData struct {
	baseEmailData
	Destination string
	Attempts    int
	LastError   string
	FailedAt    string
}

func renderEmailTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatCredits renders credit-cents as credits with two decimals.
func formatCredits(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
