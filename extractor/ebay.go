package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/models"
	"github.com/aluiziolira/go-product-finder/parser"
)

const (
	ebayPlaceholderTitle = "Shop on eBay"
	ebayNewListing       = "New Listing"
	ebayStaticImageHost  = "ir.ebaystatic.com"
)

// EbaySource is the built-in eBay definition. The first strategy asks for 60
// results per page; the second is the bare search.
func EbaySource() config.SourceConfig {
	return config.SourceConfig{
		Name:    "ebay",
		BaseURL: "https://www.ebay.com",
		SearchURLs: []string{
			"https://www.ebay.com/sch/i.html?_nkw=" + config.QueryPlaceholder + "&_ipg=60",
			"https://www.ebay.com/sch/i.html?_nkw=" + config.QueryPlaceholder,
		},
		Containers: []string{
			".srp-results .s-item",
			".srp-list .s-item",
			"li.s-item",
		},
		Fields: config.FieldSelectors{
			Title: []config.Selector{
				config.Text(".s-item__title"),
				config.Text(".s-item__title span"),
				config.Text("h3.s-item__title"),
				config.Text(".s-item__info a h3"),
			},
			Price: []config.Selector{
				config.Text(".s-item__price"),
				config.Text("span.s-item__price"),
				config.Text(".s-item__detail--primary .s-item__price"),
			},
			Image: []config.Selector{
				config.Attr(".s-item__image-img", "data-src", "src"),
				config.Attr(".s-item__image img", "data-src", "src"),
			},
			URL: []config.Selector{
				config.Attr(".s-item__link", "href"),
				config.Attr(".s-item__info a", "href"),
			},
			Rating: []config.Selector{
				config.Text(".x-star-rating .clipped"),
				config.Text(".s-item__reviews .clipped"),
			},
		},
		UserAgents:        desktopUserAgents,
		BrowserActive:     false,
		BrowserEscalation: true,
	}
}

// NewEbay builds the eBay extractor.
func NewEbay(src config.SourceConfig, f Fetcher, settings Settings) *Scraper {
	return newScraper(src, f, settings, hooks{
		keep: func(node *goquery.Selection) bool {
			return node.Find(".srp-save--more-like").Length() == 0
		},
		acceptImage: func(src string) bool {
			return !strings.Contains(src, ebayStaticImageHost)
		},
		finish: func(node *goquery.Selection, l *models.RawListing) bool {
			if strings.Contains(l.Title, ebayPlaceholderTitle) {
				return false
			}
			l.Title = parser.CleanTitle(l.Title, ebayNewListing)
			l.URL = parser.StripQuery(l.URL)
			return true
		},
	})
}
