package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// maxFetchBytes caps how much of a page body is read. Event listings
// carry their dates and venues early in the document.
const maxFetchBytes = 1 << 20

// Fetcher retrieves the readable text of a web page.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP and converts the HTML body to
// markdown so downstream matching sees prose rather than markup.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPFetcher creates a fetcher with a bounded per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "doorstep/1.0 (+newsletter event verification)",
	}
}

// FetchText downloads the page and returns its markdown rendering.
func (f *HTTPFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", pageURL, err)
	}

	text, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("converting %s to text: %w", pageURL, err)
	}
	return text, nil
}
