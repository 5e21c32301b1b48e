package sources

import (
	"strings"
	"testing"
)

func TestExtractLinkMeta_PrefersOpenGraph(t *testing.T) {
	page := `<html><head>
		<title>Fallback Title | Site</title>
		<meta property="og:title" content="Clinic Expansion Campaign">
		<meta name="description" content="plain description">
		<meta property="og:description" content="Two new mobile units for central Brooklyn.">
	</head><body></body></html>`

	meta, err := ExtractLinkMeta(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if meta.Title != "Clinic Expansion Campaign" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Description != "Two new mobile units for central Brooklyn." {
		t.Errorf("description = %q", meta.Description)
	}
}

func TestExtractLinkMeta_FallsBackToTitleTag(t *testing.T) {
	page := `<html><head>
		<title>
			Riverside   Food Bank
		</title>
		<meta name="description" content="Weekly groceries for 300 families.">
	</head><body></body></html>`

	meta, err := ExtractLinkMeta(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if meta.Title != "Riverside Food Bank" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Description != "Weekly groceries for 300 families." {
		t.Errorf("description = %q", meta.Description)
	}
}

func TestSanitizeTextStripsMarkup(t *testing.T) {
	in := `Give <script>alert(1)</script><b>now</b>   today`
	if got := SanitizeText(in); got != "Give now today" {
		t.Errorf("sanitized = %q", got)
	}
}
