// Package discovery crawls Celestrak's supplemental-elements index page to
// find additional TLE source URLs beyond the primary GROUP feed, feeding
// tle.Fetcher's extra-source list. Grounded on
// Rakagami-orbit_scraper's ScrapeCelestrak, using colly for the crawl and
// goquery (via colly's *colly.HTMLElement.DOM selection) to walk each
// listing row.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"

	"github.com/star/stargo/internal/metrics"
)

// defaultSupplementalURL is Celestrak's supplemental-elements index: a
// table of constellations, each linking to its own TLE file.
const defaultSupplementalURL = "https://celestrak.org/NORAD/elements/supplemental/"

// Source is one discovered supplemental TLE feed.
type Source struct {
	Name string
	URL  string
}

// Crawler discovers supplemental TLE source URLs from a Celestrak-style
// index page.
type Crawler struct {
	indexURL string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCrawler builds a Crawler against Celestrak's supplemental-elements
// index.
func NewCrawler(logger *slog.Logger) *Crawler {
	return &Crawler{
		indexURL: defaultSupplementalURL,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// Discover visits the index page once and returns every constellation feed
// it finds, with hrefs resolved to absolute URLs. It respects ctx
// cancellation before starting the visit; colly's synchronous collector
// does not support mid-request cancellation.
func (c *Crawler) Discover(ctx context.Context) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(c.indexURL)
	if err != nil {
		return nil, fmt.Errorf("parsing index URL %s: %w", c.indexURL, err)
	}

	var sources []Source
	var crawlErr error

	coll := colly.NewCollector(colly.AllowedDomains(base.Hostname()))
	coll.SetRequestTimeout(c.timeout)

	coll.OnHTML("table.center.outline.striped > tbody", func(e *colly.HTMLElement) {
		e.DOM.Find("td.center").Each(func(_ int, td *goquery.Selection) {
			link := td.Find("a[href]").First()
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			href = strings.TrimSpace(href)
			if href == "" {
				return
			}
			name := strings.TrimSpace(link.Text())
			if name == "" {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			sources = append(sources, Source{
				Name: name,
				URL:  base.ResolveReference(ref).String(),
			})
		})
	})

	coll.OnError(func(r *colly.Response, err error) {
		crawlErr = fmt.Errorf("crawling %s: %w", r.Request.URL, err)
	})

	if err := coll.Visit(c.indexURL); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", c.indexURL, err)
	}
	if crawlErr != nil {
		return nil, crawlErr
	}

	metrics.SetDiscoverySourcesFound(len(sources))
	if c.logger != nil {
		c.logger.Info("discovery crawl complete", "sources_found", len(sources), "index_url", c.indexURL)
	}

	return sources, nil
}

// URLs is a convenience wrapper over Discover that returns just the
// resolved feed URLs, in the shape tle.Fetcher's extra-source list wants.
func (c *Crawler) URLs(ctx context.Context) ([]string, error) {
	sources, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	return urls, nil
}
