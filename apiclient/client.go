// Package apiclient queries the partial official APIs some sources expose.
// Unconfigured or failing clients answer with mock listings tagged Synthetic
// so callers can fall back to scraping.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-product-finder/extractor"
	"github.com/aluiziolira/go-product-finder/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotConfigured is returned by Lookup when the client has no credentials.
var ErrNotConfigured = errors.New("api client not configured")

// Client is an official product search API for one source.
type Client interface {
	Source() string
	Search(ctx context.Context, query string, limit int) ([]models.RawListing, error)
}

// Option customises an API client.
type Option func(*base)

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *base) { b.http = hc }
}

// WithBaseURL points the client at another host.
func WithBaseURL(u string) Option {
	return func(b *base) { b.baseURL = strings.TrimRight(u, "/") }
}

type base struct {
	http    *http.Client
	baseURL string
}

func newBase(defaultURL string, opts []Option) base {
	b := base{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultURL,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// getJSON issues a GET and decodes a 200 response into v.
func (b base) getJSON(ctx context.Context, endpoint string, hdr http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, values := range hdr {
		for _, value := range values {
			req.Header.Add(k, value)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsMock reports whether listings came from a mock fallback.
func IsMock(listings []models.RawListing) bool {
	for _, l := range listings {
		if l.Synthetic || strings.Contains(l.ID, "mock") {
			return true
		}
	}
	return false
}

type mockShape struct {
	source   string
	noun     string
	brand    string
	basePath string
	price    func(i int, hash uint64) float64
	rating   func(i int) float64
}

// mock builds limit deterministic listings marked Synthetic.
func mock(shape mockShape, query string, limit int) []models.RawListing {
	if limit <= 0 {
		return nil
	}
	title := cases.Title(language.English)
	label := title.String(shape.source)
	hash := extractor.QueryHash(query)

	listings := make([]models.RawListing, 0, limit)
	for i := 0; i < limit; i++ {
		rating := shape.rating(i)
		listings = append(listings, models.RawListing{
			Source:      shape.source,
			ID:          fmt.Sprintf("%s_mock_%d", shape.source, i+1),
			Title:       fmt.Sprintf("%s %s - %s %d", label, title.String(query), shape.noun, i+1),
			Price:       strconv.FormatFloat(shape.price(i, hash), 'f', 2, 64),
			Currency:    models.Currency,
			ImageURL:    fmt.Sprintf("https://%s/300x300?text=%s", extractor.PlaceholderImageHost, label),
			Description: fmt.Sprintf("%s listing for %s", label, query),
			Brand:       shape.brand,
			Category:    query,
			Rating:      &rating,
			URL:         fmt.Sprintf("%s/mock-%d", shape.basePath, i+1),
			Synthetic:   true,
		})
	}
	return listings
}

func formatPrice(v float64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
