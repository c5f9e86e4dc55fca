package pipeline

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/aluiziolira/go-product-finder/models"
	"github.com/aluiziolira/go-product-finder/parser"
)

// Availability values of NormalizedProduct.
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityUnknown    = "unknown"
)

// Normalize coerces a raw listing into the canonical product shape. It never
// fails: missing required fields get deterministic defaults and unparsable
// prices become 0.
func Normalize(raw models.RawListing) models.NormalizedProduct {
	p := models.NormalizedProduct{
		ID:          strings.TrimSpace(raw.ID),
		Title:       strings.TrimSpace(raw.Title),
		Price:       parser.ParsePrice(raw.Price),
		Currency:    raw.Currency,
		ImageURL:    raw.ImageURL,
		Description: raw.Description,
		Category:    raw.Category,
		Brand:       raw.Brand,
		Rating:      raw.Rating,
		URL:         strings.TrimSpace(raw.URL),
		Source:      strings.ToLower(strings.TrimSpace(raw.Source)),
		Synthetic:   raw.Synthetic,
	}

	if p.ImageURL == "" {
		p.ImageURL = raw.Image
	}
	if p.Currency == "" {
		p.Currency = models.Currency
	}
	if p.Source == "" {
		p.Source = "unknown"
	}
	if p.Title == "" {
		p.Title = "Unknown title"
	}
	if p.URL == "" {
		p.URL = "unknown"
	}
	if p.ID == "" {
		p.ID = deriveID(raw)
	}
	if p.Description == "" {
		p.Description = p.Title
	}

	switch {
	case raw.Available == nil:
		p.Availability = AvailabilityUnknown
	case *raw.Available:
		p.Availability = AvailabilityInStock
	default:
		p.Availability = AvailabilityOutOfStock
	}
	return p
}

// deriveID hashes the URL, or source and title when the URL is missing too.
func deriveID(raw models.RawListing) string {
	h := fnv.New64a()
	if raw.URL != "" {
		h.Write([]byte(raw.URL))
	} else {
		h.Write([]byte(raw.Source + "|" + raw.Title))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Demote drops synthetic products when at least one real product exists.
// When every product is synthetic all of them are kept.
func Demote(products []models.NormalizedProduct) ([]models.NormalizedProduct, int) {
	kept := make([]models.NormalizedProduct, 0, len(products))
	for _, p := range products {
		if !p.Synthetic {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return products, 0
	}
	return kept, len(products) - len(kept)
}

// Truncate bounds products to limit. A non-positive limit keeps everything.
func Truncate(products []models.NormalizedProduct, limit int) []models.NormalizedProduct {
	if limit > 0 && len(products) > limit {
		return products[:limit]
	}
	return products
}
