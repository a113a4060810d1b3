// Package phone canonicalizes chat-channel phone identifiers.
//
// The canonical form is a digits-only string carrying the country code
// exactly once, e.g. "6281234567890". Normalization is idempotent, so raw
// channel JIDs, display-formatted numbers and already-canonical numbers all
// collapse to the same join key.
package phone

import "strings"

// DefaultCountryCode is the country code applied when none is present.
// Indonesian numbers are the primary deployment target.
const DefaultCountryCode = "62"

// Normalize converts a raw channel identifier into canonical form.
// It strips any channel suffix (everything from the first '@'), drops all
// non-digit characters, collapses a national trunk "0" prefix, and ensures
// a single leading country code.
func Normalize(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	// Channel addresses look like 6281234567890@s.whatsapp.net.
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, countryCode) {
		return digits
	}

	// National trunk prefix collapses into the country code.
	digits = strings.TrimPrefix(digits, "0")

	return countryCode + digits
}

// JID renders a canonical number as a channel address.
func JID(canonical string) string {
	return canonical + "@s.whatsapp.net"
}
