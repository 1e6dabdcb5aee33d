package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// CodeAlphabet is upper-case and URL-safe; 0/O and 1/I are left out because
// codes get retyped by hand.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 8

// DateLayout is the DD.MM.YYYY format users type dates in.
const DateLayout = "02.01.2006"

// GenerateJoinCode returns a random code of CodeLength characters.
func GenerateJoinCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeCode trims and upper-cases a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RuneLen counts characters, not bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ParseDate parses DD.MM.YYYY as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// FormatDate renders an optional date, or fallback when it is unset.
func FormatDate(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format(DateLayout)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
