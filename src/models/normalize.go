package models

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	punct      = regexp.MustCompile(`[^\p{L}\d]+`)
	deaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize lowercases, strips diacritics and punctuation and collapses
// whitespace, so that case/punctuation variants of the same track compare
// equal.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(deaccenter, s); err == nil {
		s = out
	}
	s = punct.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Key is the dedup identity over (artist, title). Album is deliberately not
// part of the key, see Matches.
func (t Track) Key() string {
	return Normalize(t.Artist) + "\x1f" + Normalize(t.Title)
}

// Matches reports whether two descriptors refer to the same track. Album is
// compared only when both sides carry one: missing album data never forces a
// mismatch, conflicting album data does.
func (t Track) Matches(other Track) bool {
	if t.Key() != other.Key() {
		return false
	}
	a, b := Normalize(t.Album), Normalize(other.Album)
	if a == "" || b == "" {
		return true
	}
	return a == b
}
