// Package fetch retrieves source pages and images over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 20 * 1024 * 1024
	DefaultUserAgent = "Mozilla/5.0 (compatible; ExamExtractor/1.0)"
)

// Resource is a fetched body with the URL it was finally served from
type Resource struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher retrieves a URL. Implementations backed by a headless browser
// can be substituted for HTTPFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Resource, error)
}

// Config controls HTTPFetcher limits
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultTimeout,
		MaxBytes:  DefaultMaxBytes,
		UserAgent: DefaultUserAgent,
	}
}

// HTTPFetcher fetches with a plain HTTP client and a per-request timeout
type HTTPFetcher struct {
	config Config
	client *http.Client
}

// NewHTTPFetcher creates a fetcher; zero config fields take their defaults
func NewHTTPFetcher(config Config) *HTTPFetcher {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	return &HTTPFetcher{
		config: config,
		client: &http.Client{},
	}
}

// SetClient replaces the HTTP client
func (f *HTTPFetcher) SetClient(client *http.Client) {
	f.client = client
}

// Fetch downloads rawURL. Non-2xx responses and bodies over the size cap
// are failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Resource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}
	if resp.ContentLength > f.config.MaxBytes {
		return nil, fmt.Errorf("response too large: %d bytes (max: %d)", resp.ContentLength, f.config.MaxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, fmt.Errorf("response too large: exceeds %d bytes", f.config.MaxBytes)
	}

	return &Resource{
		URL:         resp.Request.URL.String(),
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
		Body:        body,
	}, nil
}
