package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-product-finder/models"
)

const (
	walmartAPIURL   = "https://marketplace.walmartapis.com"
	walmartMaxLimit = 25
)

// Walmart searches the Walmart catalog API.
type Walmart struct {
	base
	apiKey string
}

// NewWalmart returns a client using apiKey. An empty key leaves the client
// unconfigured.
func NewWalmart(apiKey string, opts ...Option) *Walmart {
	return &Walmart{base: newBase(walmartAPIURL, opts), apiKey: apiKey}
}

// Source implements Client.
func (w *Walmart) Source() string { return "walmart" }

type walmartSearchResponse struct {
	Items []struct {
		ItemID           flexID   `json:"itemId"`
		Name             string   `json:"name"`
		SalePrice        *float64 `json:"salePrice"`
		Price            *float64 `json:"price"`
		ShortDescription string   `json:"shortDescription"`
		BrandName        string   `json:"brandName"`
		AverageRating    *float64 `json:"averageRating"`
		Available        bool     `json:"available"`
		ProductURL       string   `json:"productUrl"`
		ImageEntities    []struct {
			LargeImageURL string `json:"largeImageUrl"`
		} `json:"imageEntities"`
	} `json:"items"`
}

// Lookup calls the catalog search endpoint without any fallback.
func (w *Walmart) Lookup(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	if w.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("numItems", strconv.Itoa(min(limit, walmartMaxLimit)))
	params.Set("format", "json")
	endpoint := w.baseURL + "/v3/items/walmart/search?" + params.Encode()

	hdr := http.Header{}
	hdr.Set("Authorization", "Basic "+w.apiKey)
	hdr.Set("WM_SVC.NAME", "Walmart Marketplace")
	hdr.Set("WM_QOS.CORRELATION_ID", strconv.FormatInt(time.Now().UnixNano(), 36))

	var resp walmartSearchResponse
	if err := w.getJSON(ctx, endpoint, hdr, &resp); err != nil {
		return nil, err
	}

	listings := make([]models.RawListing, 0, len(resp.Items))
	for _, item := range resp.Items {
		var price float64
		switch {
		case item.SalePrice != nil:
			price = *item.SalePrice
		case item.Price != nil:
			price = *item.Price
		}
		var image string
		if len(item.ImageEntities) > 0 {
			image = item.ImageEntities[0].LargeImageURL
		}
		available := item.Available
		listings = append(listings, models.RawListing{
			Source:      "walmart",
			ID:          string(item.ItemID),
			Title:       item.Name,
			Price:       formatPrice(price),
			Currency:    models.Currency,
			ImageURL:    image,
			Description: item.ShortDescription,
			Brand:       item.BrandName,
			Category:    query,
			Rating:      item.AverageRating,
			URL:         item.ProductURL,
			Available:   &available,
		})
	}
	return listings, nil
}

// Search calls Lookup and answers with mock listings when it fails.
func (w *Walmart) Search(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	listings, err := w.Lookup(ctx, query, limit)
	if err == nil {
		return listings, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, ErrNotConfigured) {
		slog.Warn("walmart api not configured, returning mock listings")
	} else {
		slog.Error("walmart api request failed", slog.Any("error", err))
	}
	return mock(mockShape{
		source:   "walmart",
		noun:     "Product",
		brand:    "Walmart",
		basePath: "https://www.walmart.com/ip",
		price: func(i int, hash uint64) float64 {
			return float64(30 + i*20 + int(hash%50))
		},
		rating: func(i int) float64 {
			return math.Min(5, math.Round((4.2+float64(i)*0.05)*10)/10)
		},
	}, query, limit), nil
}

// flexID accepts item ids encoded either as JSON strings or numbers.
type flexID string

func (j *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*j = flexID(s)
		return nil
	}
	*j = flexID(data)
	return nil
}
