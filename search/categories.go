package search

import "strings"

// Category is a browsable product category. Source "all" applies everywhere.
type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

var categories = []Category{
	{"electronics", "Electronics", "all"},
	{"smartphones", "Smartphones", "all"},
	{"laptops", "Laptops", "all"},
	{"tablets", "Tablets", "all"},
	{"headphones", "Headphones", "all"},
	{"wearables", "Wearables", "all"},
	{"smart_home", "Smart Home", "all"},
	{"cameras", "Cameras", "all"},
	{"gaming", "Gaming", "all"},
	{"audio", "Audio", "all"},
	{"tv", "TVs", "all"},
	{"computers", "Computers", "all"},
	{"appliances", "Appliances", "all"},

	{"amazon_devices", "Amazon Devices", "amazon"},
	{"kindle", "Kindle", "amazon"},
	{"prime_video", "Prime Video", "amazon"},

	{"collectibles", "Collectibles", "ebay"},
	{"antiques", "Antiques", "ebay"},
	{"motors", "Motors", "ebay"},

	{"grocery", "Grocery", "walmart"},
	{"pharmacy", "Pharmacy", "walmart"},
	{"baby", "Baby", "walmart"},
}

// Categories returns the catalogue. With a source it returns the common
// categories plus that source's own.
func Categories(source string) []Category {
	source = strings.ToLower(strings.TrimSpace(source))
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if source == "" || c.Source == "all" || c.Source == source {
			out = append(out, c)
		}
	}
	return out
}
