package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// Normalizer maps user supplied phone numbers to personal JIDs.
//
// When DefaultCountryCode is set and the digits neither start with it nor
// reach InternationalLength, the country code is prepended. A zero
// InternationalLength means "prefix whenever the code is missing".
type Normalizer struct {
	DefaultCountryCode  string
	InternationalLength int
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDigits returns the digit-only international form without the server suffix.
func (n Normalizer) NormalizeDigits(raw string) string {
	digits := Digits(raw)
	code := Digits(n.DefaultCountryCode)
	if code == "" || digits == "" || strings.HasPrefix(digits, code) {
		return digits
	}
	if n.InternationalLength > 0 && len(digits) >= n.InternationalLength {
		return digits
	}
	return code + digits
}

// Normalize never fails; the existence check downstream is the real validation.
func (n Normalizer) Normalize(raw string) string {
	return n.NormalizeDigits(raw) + "@" + types.DefaultUserServer
}

// ParseUserJID turns a normalized identifier back into a whatsmeow JID.
func ParseUserJID(jid string) types.JID {
	user, _, _ := strings.Cut(jid, "@")
	return types.NewJID(user, types.DefaultUserServer)
}
