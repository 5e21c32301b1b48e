package sources

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/donorflow/internal/models"
)

// LinkMeta is what a submitted-link page tells us about itself.
type LinkMeta struct {
	Title       string
	Description string
}

// ExtractLinkMeta pulls the page title and description out of an HTML body.
// og: tags win over plain meta tags; the <title> element is the fallback.
func ExtractLinkMeta(r io.Reader) (*LinkMeta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse link page: %w", err)
	}

	meta := &LinkMeta{}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		meta.Title = cleanText(v)
	}
	if meta.Title == "" {
		meta.Title = cleanText(doc.Find("title").First().Text())
	}

	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		meta.Description = cleanText(v)
	}
	if meta.Description == "" {
		if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			meta.Description = cleanText(v)
		}
	}

	meta.Title = SanitizeText(meta.Title)
	meta.Description = SanitizeText(meta.Description)

	return meta, nil
}

// Enricher fills in missing title/summary on submitted links by fetching
// the page.
type Enricher struct {
	Fetcher Fetcher
}

func NewEnricher(fetcher Fetcher) *Enricher {
	return &Enricher{Fetcher: fetcher}
}

// Enrich fetches the link and fills only the fields the donor left empty.
// Network or parse failures leave the link as submitted; the pipeline never
// blocks on a slow nonprofit website.
func (e *Enricher) Enrich(ctx context.Context, link *models.SubmittedLink) {
	if link.Title != "" && link.Summary != "" {
		return
	}

	doc, err := e.Fetcher.Fetch(ctx, link.URL)
	if err != nil {
		log.Printf("link enrichment skipped for %s: %v", link.URL, err)
		return
	}
	defer doc.Body.Close()

	if !strings.Contains(doc.ContentType, "html") {
		return
	}

	meta, err := ExtractLinkMeta(doc.Body)
	if err != nil {
		log.Printf("link enrichment parse failed for %s: %v", link.URL, err)
		return
	}

	if link.Title == "" {
		link.Title = meta.Title
	}
	if link.Summary == "" {
		link.Summary = meta.Description
	}
}
