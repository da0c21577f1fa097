package platforms

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"glasswallet_backend/platform/phone"
)

// Identifiers never leave the process unhashed.

func sha(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// HashEmail lowercases and trims before hashing.
func HashEmail(email string) string {
	return sha(strings.ToLower(strings.TrimSpace(email)))
}

// HashPhoneDigits hashes the E.164 number without the leading plus.
func HashPhoneDigits(raw string) string {
	return sha(phone.DigitsE164(raw))
}

// HashPhoneE164 hashes the E.164 number including the plus.
func HashPhoneE164(raw string) string {
	digits := phone.DigitsE164(raw)
	if digits == "" {
		return ""
	}
	return sha("+" + digits)
}

// HashName lowercases and strips punctuation and spaces.
func HashName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return sha(b.String())
}

// HashState hashes a lowercase two-letter state code.
func HashState(state string) string {
	return sha(strings.ToLower(strings.TrimSpace(state)))
}

// HashZip hashes the five-digit US zip.
func HashZip(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) > 5 {
		zip = zip[:5]
	}
	return sha(zip)
}
