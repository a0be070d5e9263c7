// Package fingerprint derives the content hash used to deduplicate questions.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/victornm/eduquiz/internal/domain"
)

// delimiter joins the normalized parts. Unit separators do not appear in question content.
const delimiter = "\x1f|\x1f"

// Compute returns the hex SHA-256 of the trimmed, lowercased text followed by each choice text in the given order.
// Reordering choices yields a different fingerprint.
func Compute(text string, choices []domain.Choice) string {
	parts := make([]string, 0, len(choices)+1)
	parts = append(parts, normalize(text))
	for _, c := range choices {
		parts = append(parts, normalize(c.Text))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, delimiter)))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
