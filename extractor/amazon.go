package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/models"
)

// AmazonSource is the built-in Amazon definition. Amazon renders in the
// browser on the final attempt because of its bot protection.
func AmazonSource() config.SourceConfig {
	return config.SourceConfig{
		Name:       "amazon",
		BaseURL:    "https://www.amazon.com",
		SearchURLs: []string{"https://www.amazon.com/s?k=" + config.QueryPlaceholder},
		Containers: []string{
			"div[data-component-type='s-search-result']",
			"div.s-result-item[data-asin]",
			"div.sg-col-20-of-24.s-result-item",
			"div.rush-component",
		},
		Fields: config.FieldSelectors{
			Title: []config.Selector{
				config.Text("h2 a.a-link-normal span"),
				config.Text("h2 a.a-link-normal"),
				config.Text("h2 span"),
				config.Text(".a-size-medium.a-color-base"),
			},
			Price: []config.Selector{
				config.Text(".a-price .a-offscreen"),
				config.Text("span.a-price span.a-offscreen"),
				config.Text(".a-price-whole"),
			},
			Image: []config.Selector{
				config.Attr("img.s-image", "src"),
				config.Attr(".s-image", "src"),
				config.Attr("img[data-image-latency='s-product-image']", "src"),
				config.Attr("img[srcset]", "src"),
			},
			URL: []config.Selector{
				config.Attr("h2 a.a-link-normal", "href"),
				config.Attr("a.a-link-normal.s-no-outline", "href"),
				config.Attr(".a-link-normal.a-text-normal", "href"),
				config.Attr("a.a-link-normal", "href"),
			},
			Rating: []config.Selector{
				config.Text(".a-icon-star-small .a-icon-alt"),
				config.Text(".a-icon-alt"),
				config.Attr(".a-icon-alt", "aria-label"),
			},
		},
		UserAgents:        desktopUserAgents,
		BrowserActive:     true,
		BrowserEscalation: true,
	}
}

// NewAmazon builds the Amazon extractor.
func NewAmazon(src config.SourceConfig, f Fetcher, settings Settings) *Scraper {
	base := strings.TrimSuffix(src.BaseURL, "/")
	return newScraper(src, f, settings, hooks{
		// sponsored placeholders carry neither an ASIN nor a heading
		keep: func(node *goquery.Selection) bool {
			if asin, _ := node.Attr("data-asin"); strings.TrimSpace(asin) != "" {
				return true
			}
			return node.Find("h2").Length() > 0
		},
		finish: func(node *goquery.Selection, l *models.RawListing) bool {
			if asin, _ := node.Attr("data-asin"); strings.TrimSpace(asin) != "" {
				l.ID = strings.TrimSpace(asin)
				l.URL = base + "/dp/" + l.ID
			}
			title := l.Title
			if title == "" {
				title = "No title available"
			}
			l.Description = "Amazon product: " + title
			return true
		},
	})
}
