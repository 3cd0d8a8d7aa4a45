package utils

import (
	"strings"
	"unicode"
)

// DigitsOnly drops every non-digit rune
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone reduces a free-form phone number to digits carrying the country
// calling code. "0555 123 45 67", "+90 555 123 45 67" and "0090 555 123 45 67"
// all become "905551234567". Returns "" when no digits remain.
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	digits := nationalDigits(raw)
	if digits == "" {
		return ""
	}

	if !strings.HasPrefix(digits, countryCode) || len(digits) <= 10 {
		digits = countryCode + digits
	}
	return digits
}

// nationalDigits strips formatting, an international "00" prefix and one trunk "0"
func nationalDigits(raw string) string {
	digits := DigitsOnly(raw)
	digits = strings.TrimPrefix(digits, "00")
	digits = strings.TrimPrefix(digits, "0")
	return digits
}

// SwitchboardSet classifies shared office lines. A number is a switchboard
// number when its digits equal, or end with, one of the known lines.
type SwitchboardSet struct {
	lines []string
}

// NewSwitchboardSet builds a set from free-form numbers; blank entries are ignored
func NewSwitchboardSet(numbers []string) *SwitchboardSet {
	set := &SwitchboardSet{}
	for _, n := range numbers {
		if d := nationalDigits(n); d != "" {
			set.lines = append(set.lines, d)
		}
	}
	return set
}

// Contains reports whether phone matches a known switchboard line
func (s *SwitchboardSet) Contains(phone string) bool {
	if s == nil {
		return false
	}
	digits := DigitsOnly(phone)
	if digits == "" {
		return false
	}
	for _, line := range s.lines {
		if digits == line || strings.HasSuffix(digits, line) {
			return true
		}
	}
	return false
}

// Len returns the number of known lines
func (s *SwitchboardSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.lines)
}

// StripHonorifics removes title tokens such as "Dr.", "Uzm." or "Psk." and
// collapses whitespace. "Uzm. Dr.Ayşe  Yılmaz" becomes "Ayşe Yılmaz".
func StripHonorifics(name string) string {
	fields := strings.FieldsFunc(name, unicode.IsSpace)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if isHonorific(f) {
			continue
		}
		// "Dr.Ayşe" has the title glued to the name
		if head, rest, ok := strings.Cut(f, "."); ok && rest != "" && isHonorific(head) {
			f = rest
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isHonorific(token string) bool {
	t := strings.ToLower(strings.TrimSuffix(token, "."))
	for _, h := range HonorificTokens {
		if t == h {
			return true
		}
	}
	return false
}
