// Package contenthash provides content fingerprinting for translation data.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Separator between hashed fields. 0x1f (unit separator) cannot appear in
// translation text, so "a"+"b" and "ab" never collide.
const fieldSep = "\x1f"

// Of computes the fingerprint of a singular translation's value and comment.
//
// The digest is a fixed-width hex-encoded SHA-256, stable across calls and
// platforms for identical inputs.
func Of(value, comment string) string {
	h := sha256.New()
	h.Write([]byte(value))
	h.Write([]byte(fieldSep))
	h.Write([]byte(comment))
	return hex.EncodeToString(h.Sum(nil))
}

// OfPlural computes the fingerprint of a plural translation: the full
// form map plus the shared comment.
//
// The form map is sorted by category key before hashing so that insertion
// order never changes the digest. All rows of one plural key share this
// combined hash.
func OfPlural(forms map[string]string, comment string) string {
	categories := make([]string, 0, len(forms))
	for c := range forms {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	h := sha256.New()
	for _, c := range categories {
		h.Write([]byte(c))
		h.Write([]byte(fieldSep))
		h.Write([]byte(forms[c]))
		h.Write([]byte(fieldSep))
	}
	h.Write([]byte(comment))
	return hex.EncodeToString(h.Sum(nil))
}
