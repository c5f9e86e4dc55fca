package search

import (
	"regexp"
	"strings"
	"sync"

	"github.com/aluiziolira/go-product-finder/models"
)

// KnownBrands are inferred from product titles when a listing has no brand.
var KnownBrands = []string{
	"Sony", "JBL", "Bose", "Apple", "Samsung", "Beats", "Sennheiser", "Skullcandy",
	"Jabra", "Anker", "Soundcore", "Audio-Technica", "Philips", "Panasonic", "LG",
	"Microsoft", "Razer", "Logitech",
}

// product-line keywords that identify a brand without its name in the title
var brandKeywords = map[string][]string{
	"apple": {"iphone", "ipad", "macbook", "airpod", "homepod", "ipod", "imac"},
	"sony":  {"wh-", "wf-", "mdr-", "ps5", "playstation", "bravia", "walkman"},
}

// wordPatterns caches the whole-word matcher of each lower-case brand.
var wordPatterns sync.Map

func init() {
	for _, b := range KnownBrands {
		wordPattern(b)
	}
}

func wordPattern(word string) *regexp.Regexp {
	word = strings.ToLower(word)
	if re, ok := wordPatterns.Load(word); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := wordPatterns.LoadOrStore(word, regexp.MustCompile(`\b`+regexp.QuoteMeta(word)+`\b`))
	return re.(*regexp.Regexp)
}

func wordMatch(word, text string) bool {
	return wordPattern(word).MatchString(strings.ToLower(text))
}

// MatchesBrand reports whether p belongs to brand: the brand name appears as
// a whole word in the title, equals the product's brand, or a product-line
// keyword of the brand appears in the title.
func MatchesBrand(p models.NormalizedProduct, brand string) bool {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return true
	}
	if strings.EqualFold(p.Brand, b) || wordMatch(b, p.Title) {
		return true
	}
	title := strings.ToLower(p.Title)
	for _, kw := range brandKeywords[b] {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// InferBrand returns the first known brand named in title, or "" when none is.
func InferBrand(title string) string {
	lower := strings.ToLower(title)
	for _, b := range KnownBrands {
		if wordPattern(b).MatchString(lower) {
			return b
		}
	}
	for _, b := range []string{"Apple", "Sony"} {
		for _, kw := range brandKeywords[strings.ToLower(b)] {
			if strings.Contains(lower, kw) {
				return b
			}
		}
	}
	return ""
}
