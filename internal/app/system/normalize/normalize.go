// Package normalize holds the canonical forms of strings the stores compare
// or persist. Stores call these instead of trimming and lowering inline.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxUserAgent is the longest user agent kept in a login record.
const MaxUserAgent = 512

// LoginID trims and lowercases a login ID. Folding for the unique index
// happens in the store.
func LoginID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Email is normalized the same way as a login ID.
func Email(s string) string {
	return LoginID(s)
}

// Name trims a display name and collapses inner runs of whitespace.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Keyword normalizes enum-like values such as roles and statuses.
func Keyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UserAgent trims a user agent, drops control characters and caps it at
// MaxUserAgent bytes without splitting a rune.
func UserAgent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) <= MaxUserAgent {
		return s
	}
	cut := MaxUserAgent
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
