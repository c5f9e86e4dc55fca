package parser

import (
	"testing"

	"github.com/aluiziolira/go-product-finder/models"
)

func TestValidateListing(t *testing.T) {
	tests := []struct {
		name    string
		listing *models.RawListing
		wantErr bool
	}{
		{
			name:    "title and price",
			listing: &models.RawListing{Title: "JBL Flip 6", Price: "99.95"},
			wantErr: false,
		},
		{
			name:    "title and image",
			listing: &models.RawListing{Title: "JBL Flip 6", Image: "https://img.example/a.jpg"},
			wantErr: false,
		},
		{
			name:    "missing title",
			listing: &models.RawListing{Title: "  ", Price: "99.95"},
			wantErr: true,
		},
		{
			name:    "neither image nor price",
			listing: &models.RawListing{Title: "JBL Flip 6", URL: "https://shop.example/p/1"},
			wantErr: true,
		},
		{
			name:    "nil listing",
			listing: nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateListing(tt.listing)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListing() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "thousands separator", input: "$1,079.00", want: "1,079.00", wantOK: true},
		{name: "range keeps lower bound", input: "$10.99 to $20.49", want: "10.99", wantOK: true},
		{name: "range upper case", input: "$5 TO $9", want: "5", wantOK: true},
		{name: "embedded in text", input: "Now $42 was $60", want: "42", wantOK: true},
		{name: "no digits", input: "See price in cart", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractNumber(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractNumber(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "dollar with thousands", input: "$1,234.56", expected: 1234.56},
		{name: "not available", input: "N/A", expected: 0},
		{name: "empty string", input: "", expected: 0},
		{name: "plain number", input: "25.99", expected: 25.99},
		{name: "us prefix", input: "US $19.99", expected: 19.99},
		{name: "negative coerced", input: "-3.50", expected: 0},
		{name: "text around number", input: "current price $7.25", expected: 7.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParsePrice(tt.input)
			if result != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, result, tt.expected)
			}
			if result < 0 {
				t.Errorf("ParsePrice(%q) returned negative %v", tt.input, result)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		isNil bool
	}{
		{name: "amazon alt text", input: "4.5 out of 5 stars", want: 4.5},
		{name: "integer", input: "4 stars", want: 4},
		{name: "out of range", input: "120 reviews", isNil: true},
		{name: "no number", input: "no reviews yet", isNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRating(tt.input)
			if tt.isNil {
				if got != nil {
					t.Fatalf("ParseRating(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Fatalf("ParseRating(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	got := CleanTitle("New Listing   Sony  WH-1000XM5\n Headphones ", "New Listing")
	if got != "Sony WH-1000XM5 Headphones" {
		t.Errorf("CleanTitle() = %q", got)
	}
}

func TestStripQuery(t *testing.T) {
	if got := StripQuery("https://www.ebay.com/itm/1234?hash=abc&var=1"); got != "https://www.ebay.com/itm/1234" {
		t.Errorf("StripQuery() = %q", got)
	}
	if got := StripQuery("https://www.ebay.com/itm/1234"); got != "https://www.ebay.com/itm/1234" {
		t.Errorf("StripQuery() without query = %q", got)
	}
}
