package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

const sampleIndexHTML = `
<html><body>
<table class="center outline striped">
<tbody>
<tr>
<td class="center"><a href="starlink.txt">STARLINK</a></td>
<td class="center">2024-04-10</td>
</tr>
<tr>
<td class="center"><a href="oneweb.txt">ONEWEB</a></td>
<td class="center">2024-04-10</td>
</tr>
</tbody>
</table>
</body></html>
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(sampleIndexHTML))
	}))
	defer srv.Close()

	c := &Crawler{indexURL: srv.URL + "/", timeout: 5 * time.Second, logger: testLogger()}

	sources, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Name != "STARLINK" || sources[0].URL != srv.URL+"/starlink.txt" {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if sources[1].Name != "ONEWEB" || sources[1].URL != srv.URL+"/oneweb.txt" {
		t.Errorf("sources[1] = %+v", sources[1])
	}
}

func TestURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleIndexHTML))
	}))
	defer srv.Close()

	c := &Crawler{indexURL: srv.URL + "/", timeout: 5 * time.Second, logger: testLogger()}

	urls, err := c.URLs(context.Background())
	if err != nil {
		t.Fatalf("URLs failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}
}

func TestDiscoverCancelled(t *testing.T) {
	c := NewCrawler(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Discover(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
