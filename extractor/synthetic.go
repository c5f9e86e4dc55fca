package extractor

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-product-finder/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlaceholderImageHost serves the images of synthetic listings.
const PlaceholderImageHost = "placehold.co"

// QueryHash is the FNV-1a hash of the normalised query. Synthetic prices and
// ids derive from it so repeated queries produce identical listings.
func QueryHash(query string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	return h.Sum64()
}

// SyntheticPrice returns the price of the i-th synthetic listing for query,
// between 10.00 and 500.00.
func SyntheticPrice(query string, i int) float64 {
	mix := QueryHash(query) + uint64(i)*0x9E3779B97F4A7C15
	mix ^= mix >> 33
	mix *= 0xff51afd7ed558ccd
	mix ^= mix >> 33
	return 10 + float64(mix%49001)/100
}

// Synthetic builds min(limit, maxCount) placeholder listings for source, tagged
// Synthetic so aggregation can demote them.
func Synthetic(source, query string, limit, maxCount int) []models.RawListing {
	n := min(limit, maxCount)
	if n <= 0 {
		return nil
	}
	title := cases.Title(language.English)
	label := title.String(source)
	pretty := title.String(strings.TrimSpace(query))
	hash := QueryHash(query)
	searchURL := fmt.Sprintf("https://www.%s.com/search?q=%s", strings.ToLower(source), url.QueryEscape(query))

	listings := make([]models.RawListing, 0, n)
	for i := 0; i < n; i++ {
		listings = append(listings, models.RawListing{
			Source:      strings.ToLower(source),
			ID:          fmt.Sprintf("%s-synthetic-%d-%08x", strings.ToLower(source), i+1, uint32(hash)),
			Title:       fmt.Sprintf("%s %s - Model %d", label, pretty, i+1),
			Price:       strconv.FormatFloat(SyntheticPrice(query, i), 'f', 2, 64),
			Currency:    models.Currency,
			Image:       fmt.Sprintf("https://%s/400x400?text=%s+%d", PlaceholderImageHost, url.QueryEscape(strings.ToLower(source)), i+1),
			URL:         searchURL,
			Description: fmt.Sprintf("Sample %s product from %s", query, label),
			Category:    query,
			Synthetic:   true,
		})
	}
	return listings
}
