package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/models"
	"github.com/aluiziolira/go-product-finder/parser"
)

// WalmartSource is the built-in Walmart definition. Walmart reshuffles its
// markup often, hence the long container chain and the generic fallback.
func WalmartSource() config.SourceConfig {
	return config.SourceConfig{
		Name:       "walmart",
		BaseURL:    "https://www.walmart.com",
		SearchURLs: []string{"https://www.walmart.com/search?q=" + config.QueryPlaceholder},
		Containers: []string{
			"[data-testid='list-view'] [data-item-id]",
			"[data-automation-id='product']",
			"[data-testid='product-card']",
			"div.mb1.ph1.pa0-xl.bb.b--near-white",
			".search-result-gridview-items .search-result-gridview-item",
		},
		Fields: config.FieldSelectors{
			Title: []config.Selector{
				config.Text("[data-testid='product-title']"),
				config.Text("a.product-title-link"),
				config.Text("span.lh-title"),
				config.Text("span.ellipse-2"),
			},
			Price: []config.Selector{
				config.Text("[data-automation-id='product-price']"),
				config.Text(".price-main"),
				config.Text(".w_iUH"),
				config.Text(".w_mn"),
			},
			Image: []config.Selector{
				config.Attr("img[data-testid='product-image']", "src", "data-src", "data-image-src"),
				config.Attr("img.product-image", "src", "data-src", "data-image-src"),
				config.Attr("img", "src", "data-src", "data-image-src"),
			},
			URL: []config.Selector{
				config.Attr("a[link-identifier='linkText']", "href"),
				config.Attr("a.product-title-link", "href"),
				config.Attr("a[href]", "href"),
			},
			Rating: []config.Selector{
				config.Text("[data-testid='product-ratings'] .w_iUH7"),
				config.Attr("[data-testid='product-ratings']", "data-value"),
			},
		},
		UserAgents: append(append([]string{}, desktopUserAgents...),
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0"),
		BrowserActive:     false,
		BrowserEscalation: true,
	}
}

// NewWalmart builds the Walmart extractor.
func NewWalmart(src config.SourceConfig, f Fetcher, settings Settings) *Scraper {
	return newScraper(src, f, settings, hooks{
		fallback: walmartCards,
		finish: func(node *goquery.Selection, l *models.RawListing) bool {
			if l.Title == "" {
				l.Title = walmartTitleFallback(node)
			}
			if l.Title == "" {
				return false
			}
			if l.Price == "" {
				l.Price, _ = parser.ExtractNumber(node.Text())
			}
			return true
		},
	})
}

// walmartCards collects card-like divs holding both a link and an image,
// up to three times the limit.
func walmartCards(doc *goquery.Document, limit int) *goquery.Selection {
	most := 3 * limit
	count := 0
	cards := doc.Find("div").FilterFunction(func(_ int, d *goquery.Selection) bool {
		if count >= most {
			return false
		}
		if d.Find("a").Length() > 0 && d.Find("img").Length() > 0 {
			count++
			return true
		}
		return false
	})
	return cards
}

// walmartTitleFallback picks the first span long enough to be a product name
// that does not look like a price.
func walmartTitleFallback(node *goquery.Selection) string {
	var title string
	node.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		t := parser.CleanTitle(span.Text())
		if len(t) > 15 && !strings.Contains(t, "$") {
			title = t
			return false
		}
		return true
	})
	return title
}
