package aggregator

import (
	"context"
	"log/slog"

	"github.com/aluiziolira/go-product-finder/apiclient"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/extractor"
	"github.com/aluiziolira/go-product-finder/models"
)

// Hybrid asks a source's official API first and scrapes only when the API
// returned nothing or only mock listings.
type Hybrid struct {
	api      apiclient.Client
	fallback extractor.Extractor
}

// NewHybrid pairs api with the scraping extractor of the same source.
func NewHybrid(api apiclient.Client, fallback extractor.Extractor) *Hybrid {
	return &Hybrid{api: api, fallback: fallback}
}

// Source implements extractor.Extractor.
func (h *Hybrid) Source() string {
	return h.fallback.Source()
}

// Config exposes the scraping source definition when there is one.
func (h *Hybrid) Config() config.SourceConfig {
	if c, ok := h.fallback.(configured); ok {
		return c.Config()
	}
	return config.SourceConfig{Name: h.fallback.Source()}
}

// Search implements extractor.Extractor.
func (h *Hybrid) Search(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	listings, err := h.api.Search(ctx, query, limit)
	switch {
	case err != nil:
		slog.Warn("api search failed, scraping instead", slog.String("source", h.Source()), slog.Any("error", err))
	case len(listings) == 0:
		slog.Info("api returned no listings, scraping instead", slog.String("source", h.Source()))
	case apiclient.IsMock(listings):
		slog.Info("api returned mock listings, scraping instead", slog.String("source", h.Source()))
	default:
		slog.Info("api listings", slog.String("source", h.Source()), slog.Int("count", len(listings)))
		return listings, nil
	}
	return h.fallback.Search(ctx, query, limit)
}
