// Package aggregator fans a query out to every requested source and merges
// the results into one bounded list of normalized products.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/extractor"
	"github.com/aluiziolira/go-product-finder/metrics"
	"github.com/aluiziolira/go-product-finder/models"
	"github.com/aluiziolira/go-product-finder/pipeline"
	"golang.org/x/sync/errgroup"
)

// Manager owns the configured extractors. It keeps no state between calls.
type Manager struct {
	extractors []extractor.Extractor
	metrics    *metrics.Metrics
	sequential bool
	now        func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// Sequential runs sources one after another instead of in parallel.
func Sequential() Option {
	return func(mg *Manager) { mg.sequential = true }
}

// NewManager builds a Manager over extractors.
func NewManager(extractors []extractor.Extractor, opts ...Option) *Manager {
	m := &Manager{extractors: extractors, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sources returns the identifiers of every configured extractor.
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.extractors))
	for _, e := range m.extractors {
		names = append(names, e.Source())
	}
	return names
}

// Search runs q against the matching extractors. Extractor failures are
// logged and contribute nothing; the only error returned is the context's.
func (m *Manager) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	res := &models.SearchResult{
		Query:     q,
		Sources:   map[string]models.SourceStats{},
		StartTime: m.now(),
	}
	defer func() {
		res.EndTime = m.now()
		m.metrics.ObserveSearch(res.EndTime.Sub(res.StartTime))
	}()

	query := strings.TrimSpace(q.Text)
	active := m.active(q.Sources)
	if query == "" || q.Limit <= 0 || len(active) == 0 {
		slog.Info("nothing to search",
			slog.String("query", query),
			slog.Int("limit", q.Limit),
			slog.Int("sources", len(active)),
		)
		res.Products = []models.NormalizedProduct{}
		return res, nil
	}

	sink := &pipeline.MemoryWriter{}
	p := pipeline.NewPipeline(sink)
	// one worker keeps each source's listings in result order
	p.Start(1)

	var mu sync.Mutex
	run := func(e extractor.Extractor) {
		start := m.now()
		listings, err := m.searchOne(ctx, e, query, q.Limit)

		stats := models.SourceStats{Listings: len(listings), Duration: m.now().Sub(start)}
		for _, l := range listings {
			if l.Synthetic {
				stats.Synthetic++
			}
		}
		if err != nil {
			stats.Err = err.Error()
			slog.Warn("source search failed", slog.String("source", e.Source()), slog.Any("error", err))
		}
		m.metrics.AddListings(e.Source(), "real", stats.Listings-stats.Synthetic)
		m.metrics.AddListings(e.Source(), "synthetic", stats.Synthetic)

		if perr := p.Process(listings...); perr != nil {
			slog.Error("merge listings", slog.String("source", e.Source()), slog.Any("error", perr))
		}

		mu.Lock()
		res.Sources[e.Source()] = stats
		mu.Unlock()
	}

	if m.sequential {
		for _, e := range active {
			run(e)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(len(active))
		for _, e := range active {
			g.Go(func() error {
				run(e)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := p.Close(); err != nil {
		return nil, fmt.Errorf("merge listings: %w", err)
	}

	merged := sink.Products()
	res.MergedCount = len(merged)
	res.DroppedDuplicate = p.Stats().Duplicates

	products, dropped := pipeline.Demote(merged)
	res.DroppedSynthetic = dropped
	res.Products = pipeline.Truncate(products, q.Limit)

	slog.Info("aggregation complete",
		slog.String("query", query),
		slog.Int("sources", len(active)),
		slog.Int("merged", res.MergedCount),
		slog.Int("dropped_synthetic", res.DroppedSynthetic),
		slog.Int("returned", len(res.Products)),
	)
	return res, ctx.Err()
}

// searchOne isolates one extractor call, turning a panic into an error.
func (m *Manager) searchOne(ctx context.Context, e extractor.Extractor, query string, limit int) (listings []models.RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			listings = nil
			err = fmt.Errorf("panic in %s extractor: %v", e.Source(), r)
		}
	}()
	return e.Search(ctx, query, limit)
}

// active returns the extractors named in sources, matched case-insensitively.
// Empty sources selects every extractor.
func (m *Manager) active(sources []string) []extractor.Extractor {
	if len(sources) == 0 {
		return m.extractors
	}
	wanted := make(map[string]bool, len(sources))
	for _, s := range sources {
		wanted[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var out []extractor.Extractor
	for _, e := range m.extractors {
		if wanted[strings.ToLower(e.Source())] {
			out = append(out, e)
		}
	}
	return out
}

type configured interface {
	Config() config.SourceConfig
}

// SourceForURL returns the source whose base URL host owns rawURL.
func (m *Manager) SourceForURL(rawURL string) (string, bool) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(target.Hostname()), "www.")

	for _, e := range m.extractors {
		c, ok := e.(configured)
		if !ok {
			continue
		}
		base, err := url.Parse(c.Config().BaseURL)
		if err != nil {
			continue
		}
		baseHost := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
		if baseHost != "" && (host == baseHost || strings.HasSuffix(host, "."+baseHost)) {
			return e.Source(), true
		}
	}
	return "", false
}
