package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// NormalizeText case-folds and collapses whitespace so trivially different
// renderings of the same content hash identically.
func NormalizeText(text string) string {
	folded := folder.String(text)
	return strings.Join(strings.Fields(folded), " ")
}

// Fingerprint derives the dedup content hash from the normalized title,
// description, and URL. Items hashing identically are the same content no
// matter which source delivered them.
func Fingerprint(title, description, url string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(title)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(description)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(url)))
	return hex.EncodeToString(h.Sum(nil))
}
