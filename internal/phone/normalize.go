// Package phone canonicalizes Brazilian mobile numbers received from WhatsApp.
package phone

import "strings"

const (
	countryCode  = "55"
	mobilePrefix = "9"

	// CanonicalLength is the digit count of a fully resolved number: 55 + area + 9 + 8-digit subscriber.
	CanonicalLength = 13
)

// Digits strips every character that is not an ASCII digit 0-9.
func Digits(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Normalize maps a Brazilian mobile number in any common format to
// 55 + area code + 9 + subscriber. It never fails: inputs that cannot be
// fully resolved come back as their best-effort digit form, and empty input
// is returned as is.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	d := Digits(raw)

	// Order matters: a 12/13 digit number starting with 55 must never be
	// treated as a local number.
	switch {
	case strings.HasPrefix(d, countryCode) && len(d) == 13:
		return d
	case strings.HasPrefix(d, countryCode) && len(d) == 12:
		return countryCode + d[2:4] + mobilePrefix + d[4:]
	case len(d) == 10:
		return countryCode + d[:2] + mobilePrefix + d[2:]
	case len(d) == 11 && d[2] == '9':
		return countryCode + d
	case len(d) == 9 && d[0] == '9':
		// no area code available
		return d
	case len(d) == 8:
		return mobilePrefix + d
	default:
		return d
	}
}

// IsBrazilian reports whether the number looks Brazilian: it carries the 55
// country code or has the 10/11 digit shape of a local number with area code.
func IsBrazilian(raw string) bool {
	d := Digits(raw)
	return strings.HasPrefix(d, countryCode) || len(d) == 10 || len(d) == 11
}

// AreaCode extracts the two-digit DDD. The second return value is false when
// the number is too short to carry one.
func AreaCode(raw string) (string, bool) {
	d := Digits(raw)
	switch {
	case strings.HasPrefix(d, countryCode):
		if len(d) < 4 {
			return "", false
		}
		return d[2:4], true
	case len(d) >= 10:
		return d[:2], true
	default:
		return "", false
	}
}

// IsCanonical reports whether raw is already in the 13-digit canonical form.
func IsCanonical(raw string) bool {
	return len(raw) == CanonicalLength && Digits(raw) == raw &&
		strings.HasPrefix(raw, countryCode) && raw[4] == '9'
}
