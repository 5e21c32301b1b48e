package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher retrieves submitted-link pages with rate limiting, retries,
// and robots.txt respect. Donors paste arbitrary nonprofit URLs, so the
// fetcher stays conservative.
type CollyFetcher struct {
	UserAgent      string
	MaxRetries     int
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxBodySize    int // bytes
}

func NewCollyFetcher() *CollyFetcher {
	return &CollyFetcher{
		UserAgent:      "donorflow/1.0 (+link preview)",
		MaxRetries:     2,
		RequestTimeout: 15 * time.Second,
		DomainDelay:    1 * time.Second,
		MaxBodySize:    2 * 1024 * 1024,
	}
}

func (f *CollyFetcher) buildCollector(host string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowedDomains(host),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
	})

	c.SetRequestTimeout(f.RequestTimeout)

	return c
}

// Fetch implements Fetcher.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	c := f.buildCollector(parsed.Host)

	var result *FetchedDocument
	var fetchErr error
	var wg sync.WaitGroup
	wg.Add(1)

	c.OnResponse(func(r *colly.Response) {
		defer wg.Done()
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if r.Request.Ctx.GetAny("retries") != nil {
			retries = r.Request.Ctx.GetAny("retries").(int)
		}
		if retries < f.MaxRetries {
			r.Request.Ctx.Put("retries", retries+1)
			log.Printf("link fetch retry %d/%d for %s: %v", retries+1, f.MaxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			r.Request.Retry()
			return
		}
		fetchErr = fmt.Errorf("fetch failed after %d retries: %w", f.MaxRetries, err)
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fetchErr = ctx.Err()
			wg.Done()
		case <-done:
		}
	}()

	if err := c.Visit(targetURL); err != nil {
		close(done)
		return nil, fmt.Errorf("visit failed: %w", err)
	}

	wg.Wait()
	close(done)

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return result, nil
}
