package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Normalize cleans an imported item's text. It trims surrounding whitespace
// and normalizes line endings. Case is preserved because the front is the
// card's identity.
func Normalize(item domain.Item) domain.Item {
	normalizePart := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	item.Front = normalizePart(item.Front)
	item.Back = normalizePart(item.Back)
	return item
}

// Hash returns the SHA-256 of a card front as a hex string. It keys review
// history rows, which would otherwise carry arbitrary text as an identifier.
func Hash(front string) string {
	hashBytes := sha256.Sum256([]byte(front))
	return fmt.Sprintf("%x", hashBytes)
}
