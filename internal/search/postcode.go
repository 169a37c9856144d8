package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultPostcodeBaseURL = "https://api.postcodes.io"

// Location is the resolved geography for a UK postcode.
type Location struct {
	Postcode  string  `json:"postcode"`
	District  string  `json:"district"`
	Region    string  `json:"region"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Area returns the best human-readable area name for search queries.
// It falls back to the raw postcode when the lookup gave nothing better.
func (l Location) Area() string {
	if l.District != "" {
		return l.District
	}
	if l.Region != "" {
		return l.Region
	}
	return l.Postcode
}

// PostcodeClient resolves UK postcodes via postcodes.io.
type PostcodeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPostcodeClient creates a client with a bounded request timeout.
func NewPostcodeClient(timeout time.Duration) *PostcodeClient {
	return NewPostcodeClientWithBaseURL(defaultPostcodeBaseURL, timeout)
}

// NewPostcodeClientWithBaseURL creates a client against a custom API
// endpoint.
func NewPostcodeClientWithBaseURL(baseURL string, timeout time.Duration) *PostcodeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostcodeClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result struct {
		Postcode      string  `json:"postcode"`
		AdminDistrict string  `json:"admin_district"`
		Region        string  `json:"region"`
		Latitude      float64 `json:"latitude"`
		Longitude     float64 `json:"longitude"`
	} `json:"result"`
}

// Lookup resolves a postcode to its district and region. On any
// failure it returns a Location carrying only the raw postcode, so
// callers can degrade to postcode-based queries instead of failing.
func (c *PostcodeClient) Lookup(ctx context.Context, postcode string) (Location, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(postcode))
	fallback := Location{Postcode: trimmed}
	if trimmed == "" {
		return fallback, fmt.Errorf("postcode is empty")
	}

	endpoint := fmt.Sprintf("%s/postcodes/%s", c.baseURL, url.PathEscape(trimmed))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fallback, fmt.Errorf("building postcode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fallback, fmt.Errorf("postcode lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback, fmt.Errorf("postcode lookup returned status %d", resp.StatusCode)
	}

	var parsed postcodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fallback, fmt.Errorf("decoding postcode response: %w", err)
	}

	return Location{
		Postcode:  parsed.Result.Postcode,
		District:  parsed.Result.AdminDistrict,
		Region:    parsed.Result.Region,
		Latitude:  parsed.Result.Latitude,
		Longitude: parsed.Result.Longitude,
	}, nil
}
