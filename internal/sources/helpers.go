package sources

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanText collapses runs of whitespace into one space and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeText strips all markup from user- or page-provided text. Titles
// and summaries go straight into API responses, so nothing tag-shaped
// survives.
func SanitizeText(s string) string {
	return cleanText(textPolicy.Sanitize(s))
}
