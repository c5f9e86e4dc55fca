// Package search is the caller-facing layer over the aggregator: price and
// brand filters, brand inference and relevance ranking.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aluiziolira/go-product-finder/models"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is required")

// Aggregator is the part of aggregator.Manager the service depends on.
type Aggregator interface {
	Search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error)
	Sources() []string
}

// Request is one caller search. Zero MinPrice or MaxPrice disables that bound.
type Request struct {
	Query                string
	Limit                int
	Sources              []string
	MinPrice             float64
	MaxPrice             float64
	Brand                string
	FallbackToAllSources bool
}

// Response is the filtered and ranked outcome of a Request.
type Response struct {
	Query     string
	Products  []models.NormalizedProduct
	Sources   []string
	Fallback  bool
	Aggregate *models.SearchResult
}

// Service filters and ranks aggregated products.
type Service struct {
	agg          Aggregator
	defaultLimit int
}

// NewService wraps agg. Requests without a limit use defaultLimit.
func NewService(agg Aggregator, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Service{agg: agg, defaultLimit: defaultLimit}
}

// Search asks the aggregator for twice the limit so filtering still leaves
// enough products, then filters, ranks and truncates.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if req.MinPrice > 0 && req.MaxPrice > 0 && req.MinPrice > req.MaxPrice {
		return nil, fmt.Errorf("min price %.2f exceeds max price %.2f", req.MinPrice, req.MaxPrice)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	sources := normalizeSources(req.Sources)
	if len(sources) == 0 {
		sources = s.agg.Sources()
	}

	res, err := s.agg.Search(ctx, models.SearchQuery{Text: query, Limit: limit * 2, Sources: sources})
	if err != nil {
		return nil, err
	}

	resp := &Response{Query: query, Sources: sources, Aggregate: res}
	all := s.agg.Sources()
	if len(res.Products) == 0 && req.FallbackToAllSources && !covers(sources, all) {
		slog.Info("no results from requested sources, searching all sources",
			slog.String("query", query),
			slog.Any("sources", sources),
		)
		res, err = s.agg.Search(ctx, models.SearchQuery{Text: query, Limit: limit * 2, Sources: all})
		if err != nil {
			return nil, err
		}
		resp.Sources = all
		resp.Fallback = true
		resp.Aggregate = res
	}

	products := make([]models.NormalizedProduct, 0, len(res.Products))
	for _, p := range res.Products {
		if req.MinPrice > 0 && p.Price < req.MinPrice {
			slog.Debug("skipping product below min price", slog.String("title", p.Title), slog.Float64("price", p.Price))
			continue
		}
		if req.MaxPrice > 0 && p.Price > req.MaxPrice {
			slog.Debug("skipping product above max price", slog.String("title", p.Title), slog.Float64("price", p.Price))
			continue
		}
		if req.Brand != "" {
			if !MatchesBrand(p, req.Brand) {
				slog.Debug("skipping product with other brand", slog.String("title", p.Title), slog.String("brand", req.Brand))
				continue
			}
			p.Brand = req.Brand
		} else if p.Brand == "" {
			p.Brand = InferBrand(p.Title)
		}
		products = append(products, p)
	}

	Rank(products, query)
	if len(products) > limit {
		products = products[:limit]
	}
	resp.Products = products

	slog.Info("search complete",
		slog.String("query", query),
		slog.Int("aggregated", len(res.Products)),
		slog.Int("returned", len(products)),
	)
	return resp, nil
}

// Rank orders products by whether the title contains query, then by rating,
// both descending. Ties keep their order.
func Rank(products []models.NormalizedProduct, query string) {
	q := strings.ToLower(strings.TrimSpace(query))
	sort.SliceStable(products, func(i, j int) bool {
		ti := strings.Contains(strings.ToLower(products[i].Title), q)
		tj := strings.Contains(strings.ToLower(products[j].Title), q)
		if ti != tj {
			return ti
		}
		return rating(products[i]) > rating(products[j])
	})
}

func rating(p models.NormalizedProduct) float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// covers reports whether requested names every source in all. Names that
// match no source do not count.
func covers(requested, all []string) bool {
	asked := make(map[string]bool, len(requested))
	for _, s := range requested {
		asked[s] = true
	}
	for _, s := range all {
		if !asked[strings.ToLower(s)] {
			return false
		}
	}
	return true
}

func normalizeSources(sources []string) []string {
	out := make([]string, 0, len(sources))
	seen := map[string]bool{}
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
