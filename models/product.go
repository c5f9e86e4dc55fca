// Package models defines data structures shared by the fetch, extraction and aggregation layers.
package models

import "time"

// Currency is the only currency the sources are queried in.
const Currency = "USD"

// SearchQuery is one immutable search request.
type SearchQuery struct {
	Text    string
	Limit   int
	Sources []string // empty means every configured source
}

// RawListing is what a single extractor produced for a single result node.
// Empty strings and nil pointers mean the field was not found.
type RawListing struct {
	Source      string
	ID          string
	Title       string
	Price       string // raw numeric text, e.g. "1,234.56"
	Currency    string
	Image       string
	ImageURL    string
	URL         string
	Rating      *float64
	Description string
	Brand       string
	Category    string
	Available   *bool
	Synthetic   bool
}

// NormalizedProduct is the canonical shape handed to callers.
type NormalizedProduct struct {
	ID           string   `json:"id" csv:"id"`
	Title        string   `json:"title" csv:"title"`
	Price        float64  `json:"price" csv:"price"`
	Currency     string   `json:"currency" csv:"currency"`
	ImageURL     string   `json:"image_url,omitempty" csv:"image_url"`
	Description  string   `json:"description" csv:"description"`
	Category     string   `json:"category,omitempty" csv:"category"`
	Brand        string   `json:"brand,omitempty" csv:"brand"`
	Rating       *float64 `json:"rating,omitempty" csv:"rating"`
	Availability string   `json:"availability" csv:"availability"`
	URL          string   `json:"url" csv:"url"`
	Source       string   `json:"source" csv:"source"`
	Synthetic    bool     `json:"synthetic" csv:"synthetic"`
}

// SourceStats summarises one source's contribution to an aggregation.
type SourceStats struct {
	Listings  int
	Synthetic int
	Err       string
	Duration  time.Duration
}

// SearchResult holds the overall result of an aggregation call.
type SearchResult struct {
	Query            SearchQuery
	Products         []NormalizedProduct
	Sources          map[string]SourceStats
	StartTime        time.Time
	EndTime          time.Time
	MergedCount      int
	DroppedSynthetic int
	DroppedDuplicate int
}
