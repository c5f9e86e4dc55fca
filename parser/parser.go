package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-product-finder/models"
)

// numberRegex finds the first digit group, with optional thousands
// separators and decimal part: "1,079.00", "119.00", "42".
var numberRegex = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

var spaceRegex = regexp.MustCompile(`\s+`)

// ValidateListing ensures a listing carries a title and at least an image or a price.
func ValidateListing(l *models.RawListing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("listing missing title")
	}
	if strings.TrimSpace(l.Image) == "" && strings.TrimSpace(l.Price) == "" {
		return fmt.Errorf("listing %q has neither image nor price", l.Title)
	}
	return nil
}

// CutRange keeps the lower bound of a ranged value: "$10 to $20" -> "$10".
func CutRange(text string) string {
	lower := strings.ToLower(text)
	if i := strings.Index(lower, " to "); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}

// ExtractNumber returns the first digit group of text after cutting ranges.
func ExtractNumber(text string) (string, bool) {
	found := numberRegex.FindString(CutRange(text))
	if found == "" {
		return "", false
	}
	return found, true
}

// ParseNumber extracts and parses the first digit group of text.
func ParseNumber(text string) (float64, bool) {
	found, ok := ExtractNumber(text)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(found, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseRating reads ratings such as "4.5 out of 5 stars". Values outside
// 0..5 are rejected.
func ParseRating(text string) *float64 {
	n, ok := ParseNumber(text)
	if !ok || n < 0 || n > 5 {
		return nil
	}
	return &n
}

// ParsePrice coerces any price text to a non-negative float. Unparsable
// input yields 0.
func ParsePrice(price string) float64 {
	cleaned := strings.TrimSpace(price)
	cleaned = strings.TrimPrefix(cleaned, "US")
	cleaned = strings.NewReplacer("$", "", ",", "", " ", "").Replace(cleaned)
	if n, err := strconv.ParseFloat(cleaned, 64); err == nil {
		if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	}
	if n, ok := ParseNumber(price); ok {
		return n
	}
	return 0
}

// CleanTitle collapses whitespace and removes any of the given marker phrases.
func CleanTitle(title string, markers ...string) string {
	for _, m := range markers {
		title = strings.ReplaceAll(title, m, "")
	}
	return strings.TrimSpace(spaceRegex.ReplaceAllString(title, " "))
}

// StripQuery drops tracking parameters from a URL.
func StripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
