// backend/src/security/validation/sanitizers.go
package validation

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy *bluemonday.Policy

func init() {
	strictHTMLPolicy = bluemonday.StrictPolicy() // Removes all HTML tags
}

// SanitizeDescription strips any HTML and trims whitespace from a
// user-supplied transaction description before it reaches the store or the
// similarity scorer.
func SanitizeDescription(raw string) string {
	return strings.TrimSpace(strictHTMLPolicy.Sanitize(raw))
}
