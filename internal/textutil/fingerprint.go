// Package textutil provides content fingerprinting and text normalization
// for intake dedup. File and text fingerprints live in separate namespaces:
// a file hash covers content, name, and size; a text hash covers only the
// normalized text.
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FileFingerprint hashes file content together with its name and size so
// renamed or truncated copies of the same bytes count as distinct uploads.
func FileFingerprint(content []byte, name string, size int64) string {
	h := md5.New()
	h.Write(content)
	h.Write([]byte(name))
	h.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// TextFingerprint hashes whitespace-collapsed, unicode-normalized text so
// reflowed copies of the same passage dedupe to one unit.
func TextFingerprint(text string) string {
	h := md5.Sum([]byte(NormalizeWhitespace(text)))
	return hex.EncodeToString(h[:])
}

// NormalizeWhitespace trims the text, collapses all whitespace runs to single
// spaces, and applies NFKC so visually-identical unicode variants compare equal.
func NormalizeWhitespace(text string) string {
	return norm.NFKC.String(strings.Join(strings.Fields(text), " "))
}
