// Package sanitize normalizes free-text lead fields before they are stored.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes HTML tags, including ones hidden behind common entities.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	// Decode common HTML entities
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text is used for notes and other free-form lead text.
func Text(s string) string {
	return StripHTML(s)
}

func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}

// PersonName strips markup, collapses whitespace and title-cases a name
// ("mARY  o'neil" becomes "Mary O'neil").
func PersonName(s string) string {
	cleaned := strings.Join(strings.Fields(StripHTML(s)), " ")
	if cleaned == "" {
		return ""
	}
	return cases.Title(language.AmericanEnglish).String(cleaned)
}

// Email trims and lower-cases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StateCode normalizes a US state to its upper-case two-letter form.
func StateCode(s string) string {
	return cases.Upper(language.AmericanEnglish).String(strings.TrimSpace(s))
}
