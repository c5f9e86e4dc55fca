// Package extractor turns a search query into raw listings for one source by
// fetching its result page and walking ordered selector chains.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/fetcher"
	"github.com/aluiziolira/go-product-finder/models"
	"github.com/aluiziolira/go-product-finder/parser"
)

// ErrNoListings is returned when extraction found nothing and synthetic
// listings are disabled.
var ErrNoListings = errors.New("no listings extracted")

// Extractor searches a single source.
type Extractor interface {
	Source() string
	Search(ctx context.Context, query string, limit int) ([]models.RawListing, error)
}

// Fetcher is the part of fetcher.Fetcher extractors depend on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) (string, error)
}

// Settings carries the global switches that apply to one source.
type Settings struct {
	AllowSynthetic bool
	SyntheticCap   int
	BrowserAllowed bool
}

// SettingsFor derives the settings of source from cfg.
func SettingsFor(cfg *config.Config, source string) Settings {
	return Settings{
		AllowSynthetic: cfg.AllowSynthetic,
		SyntheticCap:   cfg.SyntheticCap,
		BrowserAllowed: cfg.BrowserAllowed(source),
	}
}

// hooks hold the per-source behaviour the selector chains cannot express.
type hooks struct {
	// keep filters placeholder or sponsored containers.
	keep func(node *goquery.Selection) bool
	// fallback locates candidate nodes when no container selector matched.
	fallback func(doc *goquery.Document, limit int) *goquery.Selection
	// acceptImage rejects image values such as static sprites.
	acceptImage func(src string) bool
	// finish adjusts a listing after the chains ran; false drops it.
	finish func(node *goquery.Selection, l *models.RawListing) bool
}

// Scraper is the selector-chain engine shared by every source.
type Scraper struct {
	src      config.SourceConfig
	fetch    Fetcher
	settings Settings
	hooks    hooks
}

func newScraper(src config.SourceConfig, f Fetcher, settings Settings, h hooks) *Scraper {
	return &Scraper{src: src, fetch: f, settings: settings, hooks: h}
}

// Source returns the lower-case source identifier.
func (s *Scraper) Source() string {
	return s.src.Name
}

// Config returns the source definition in use.
func (s *Scraper) Config() config.SourceConfig {
	return s.src
}

// Search tries each URL strategy in order and returns the listings of the
// first one that parses. When all strategies come back empty it falls back
// to synthetic listings, or ErrNoListings when those are disabled.
func (s *Scraper) Search(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	opts := s.fetchOptions()
	for i := range s.src.SearchURLs {
		searchURL := s.src.SearchURL(i, query)
		html, err := s.fetch.Fetch(ctx, searchURL, opts)
		if err != nil {
			slog.Warn("search page not available",
				slog.String("source", s.src.Name),
				slog.String("url", searchURL),
				slog.Any("error", err),
			)
			continue
		}
		listings, err := s.Parse(html, query, searchURL, limit)
		if err != nil {
			slog.Warn("parse search page", slog.String("source", s.src.Name), slog.Any("error", err))
			continue
		}
		if len(listings) > 0 {
			slog.Info("listings extracted",
				slog.String("source", s.src.Name),
				slog.Int("count", len(listings)),
				slog.Int("strategy", i),
			)
			return listings, nil
		}
	}

	if !s.settings.AllowSynthetic {
		return nil, fmt.Errorf("%s: %w", s.src.Name, ErrNoListings)
	}
	slog.Warn("no listings parsed, generating synthetic listings",
		slog.String("source", s.src.Name),
		slog.String("query", query),
	)
	return Synthetic(s.src.Name, query, limit, s.settings.SyntheticCap), nil
}

// Parse extracts up to limit valid listings from a result page.
func (s *Scraper) Parse(html, query, searchURL string, limit int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	nodes := s.containers(doc, limit)
	if nodes == nil || nodes.Length() == 0 {
		return nil, nil
	}

	var listings []models.RawListing
	nodes.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		l := s.extract(node, query, searchURL)
		if s.hooks.finish != nil && !s.hooks.finish(node, &l) {
			return true
		}
		if l.Description == "" {
			l.Description = l.Title
		}
		if err := parser.ValidateListing(&l); err != nil {
			slog.Debug("skipping listing", slog.String("source", s.src.Name), slog.Any("error", err))
			return true
		}
		listings = append(listings, l)
		return len(listings) < limit
	})
	return listings, nil
}

func (s *Scraper) fetchOptions() fetcher.Options {
	return fetcher.Options{
		Source:          s.src.Name,
		UserAgents:      s.src.UserAgents,
		BrowserActive:   s.src.BrowserActive && s.settings.BrowserAllowed,
		AllowEscalation: s.src.BrowserEscalation && s.settings.BrowserAllowed,
		Timeout:         s.src.Timeout,
		MaxRetries:      s.src.MaxRetries,
	}
}

// containers returns the matches of the first container selector that still
// has nodes after the keep filter.
func (s *Scraper) containers(doc *goquery.Document, limit int) *goquery.Selection {
	for _, css := range s.src.Containers {
		nodes := doc.Find(css)
		if s.hooks.keep != nil {
			nodes = nodes.FilterFunction(func(_ int, n *goquery.Selection) bool {
				return s.hooks.keep(n)
			})
		}
		if nodes.Length() > 0 {
			slog.Debug("matched result containers",
				slog.String("source", s.src.Name),
				slog.String("selector", css),
				slog.Int("count", nodes.Length()),
			)
			return nodes
		}
	}
	if s.hooks.fallback != nil {
		return s.hooks.fallback(doc, limit)
	}
	return nil
}

func (s *Scraper) extract(node *goquery.Selection, query, searchURL string) models.RawListing {
	f := s.src.Fields
	l := models.RawListing{
		Source:   s.src.Name,
		Currency: models.Currency,
		Category: query,
	}

	l.Title = parser.CleanTitle(firstValue(node, f.Title, nil))

	if price := firstValue(node, f.Price, hasNumber); price != "" {
		l.Price, _ = parser.ExtractNumber(price)
	}

	l.Image = firstValue(node, f.Image, s.hooks.acceptImage)

	if href := firstValue(node, f.URL, nil); href != "" {
		l.URL = s.absolute(href)
	}

	if rating := firstValue(node, f.Rating, hasNumber); rating != "" {
		l.Rating = parser.ParseRating(rating)
	}

	if l.URL == "" {
		l.URL = searchURL
	}
	return l
}

// absolute resolves href against the source base URL.
func (s *Scraper) absolute(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(s.src.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func hasNumber(v string) bool {
	_, ok := parser.ExtractNumber(v)
	return ok
}

// firstValue walks chain and returns the first non-empty value accepted by
// accept. An empty CSS matches the node itself.
func firstValue(node *goquery.Selection, chain []config.Selector, accept func(string) bool) string {
	for _, sel := range chain {
		found := node
		if sel.CSS != "" {
			found = node.Find(sel.CSS)
		}
		var value string
		found.EachWithBreak(func(_ int, m *goquery.Selection) bool {
			value = nodeValue(m, sel.Attrs)
			if value != "" && accept != nil && !accept(value) {
				value = ""
			}
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func nodeValue(m *goquery.Selection, attrs []string) string {
	if len(attrs) == 0 {
		return strings.TrimSpace(m.Text())
	}
	for _, attr := range attrs {
		if v, ok := m.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
