package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-product-finder/models"
)

const (
	ebayAPIURL   = "https://api.ebay.com"
	ebayMaxLimit = 200
)

// Ebay searches the eBay Browse API.
type Ebay struct {
	base
	token string
}

// NewEbay returns a client authenticating with an OAuth bearer token. An
// empty token leaves the client unconfigured.
func NewEbay(token string, opts ...Option) *Ebay {
	return &Ebay{base: newBase(ebayAPIURL, opts), token: token}
}

// Source implements Client.
func (e *Ebay) Source() string { return "ebay" }

type ebaySearchResponse struct {
	ItemSummaries []struct {
		ItemID string `json:"itemId"`
		Title  string `json:"title"`
		Price  struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
		Image struct {
			ImageURL string `json:"imageUrl"`
		} `json:"image"`
		ItemWebURL string `json:"itemWebUrl"`
	} `json:"itemSummaries"`
}

// Lookup calls item_summary/search without any fallback.
func (e *Ebay) Lookup(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	if e.token == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(min(limit, ebayMaxLimit)))
	params.Set("sort", "price")
	params.Set("filter", "conditionIds:{3000|4000|5000}")
	endpoint := e.baseURL + "/buy/browse/v1/item_summary/search?" + params.Encode()

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+e.token)

	var resp ebaySearchResponse
	if err := e.getJSON(ctx, endpoint, hdr, &resp); err != nil {
		return nil, err
	}

	available := true
	listings := make([]models.RawListing, 0, len(resp.ItemSummaries))
	for _, item := range resp.ItemSummaries {
		price := item.Price.Value
		if v, err := strconv.ParseFloat(price, 64); err == nil {
			price = formatPrice(v)
		}
		currency := item.Price.Currency
		if currency == "" {
			currency = models.Currency
		}
		listings = append(listings, models.RawListing{
			Source:      "ebay",
			ID:          item.ItemID,
			Title:       item.Title,
			Price:       price,
			Currency:    currency,
			ImageURL:    item.Image.ImageURL,
			Description: item.Title,
			Category:    query,
			URL:         item.ItemWebURL,
			Available:   &available,
		})
	}
	return listings, nil
}

// Search calls Lookup and answers with mock listings when it fails.
func (e *Ebay) Search(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	listings, err := e.Lookup(ctx, query, limit)
	if err == nil {
		return listings, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, ErrNotConfigured) {
		slog.Warn("ebay api not configured, returning mock listings")
	} else {
		slog.Error("ebay api request failed", slog.Any("error", err))
	}
	return mock(mockShape{
		source:   "ebay",
		noun:     "Item",
		brand:    "eBay Seller",
		basePath: "https://www.ebay.com/itm",
		price: func(i int, hash uint64) float64 {
			return float64(50 + i*25 + int(hash%100))
		},
		rating: func(i int) float64 {
			return math.Min(5, math.Round((4.0+float64(i)*0.1)*10)/10)
		},
	}, query, limit), nil
}
