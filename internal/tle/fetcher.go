package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=starlink&FORMAT=tle"

// maxBodyBytes bounds how much a single source URL may return, so a
// misbehaving or hostile server can't exhaust memory.
const maxBodyBytes = 50 * 1024 * 1024

// Fetcher retrieves raw TLE data from a primary source plus any number of
// supplemental source URLs (typically discovered by internal/discovery).
type Fetcher struct {
	sourceURL string

	mu        sync.RWMutex
	extraURLs []string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL. extraURLs are
// fetched and appended after the primary source; a failing extra URL is
// logged and skipped rather than failing the whole fetch.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// SetExtraSourceURLs replaces the supplemental source URL list, typically
// after a fresh internal/discovery crawl. Safe to call while Fetch is
// running concurrently; the new list takes effect on the next Fetch.
func (f *Fetcher) SetExtraSourceURLs(urls []string) {
	f.mu.Lock()
	f.extraURLs = urls
	f.mu.Unlock()
}

// Fetch performs an HTTP GET against the primary source and every extra
// URL, concatenating their bodies. The primary source's failure aborts the
// call; an extra URL's failure is logged and its body simply omitted.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.fetchOne(ctx, f.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetching primary TLE source: %w", err)
	}

	f.mu.RLock()
	extraURLs := append([]string(nil), f.extraURLs...)
	f.mu.RUnlock()

	for _, url := range extraURLs {
		extra, err := f.fetchOne(ctx, url)
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("skipping extra TLE source", "url", url, "error", err)
			}
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}

	return body, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeded %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}
