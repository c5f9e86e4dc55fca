package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QueryPlaceholder is replaced by the escaped query in search URL templates.
const QueryPlaceholder = "{query}"

// Selector is one CSS rule of a field chain. With no Attrs the matched
// node's text is used; otherwise the first non-empty attribute wins.
type Selector struct {
	CSS   string   `yaml:"css"`
	Attrs []string `yaml:"attrs,omitempty"`
}

// UnmarshalYAML accepts either a bare CSS string or a {css, attrs} mapping.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.CSS = node.Value
		s.Attrs = nil
		return nil
	}
	type plain Selector
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Selector(p)
	return nil
}

// Text builds a text selector.
func Text(css string) Selector { return Selector{CSS: css} }

// Attr builds an attribute selector.
func Attr(css string, attrs ...string) Selector { return Selector{CSS: css, Attrs: attrs} }

// FieldSelectors holds one ordered selector group per logical field.
type FieldSelectors struct {
	Title  []Selector `yaml:"title,omitempty"`
	Price  []Selector `yaml:"price,omitempty"`
	Image  []Selector `yaml:"image,omitempty"`
	URL    []Selector `yaml:"url,omitempty"`
	Rating []Selector `yaml:"rating,omitempty"`
}

// SourceConfig describes how one marketplace is fetched and parsed.
type SourceConfig struct {
	Name              string
	BaseURL           string
	SearchURLs        []string // tried in order, each containing QueryPlaceholder
	Containers        []string
	Fields            FieldSelectors
	UserAgents        []string
	BrowserActive     bool          // render with the browser on the final attempt from the start
	BrowserEscalation bool          // allow switching to the browser after the second-to-last failure
	Timeout           time.Duration // zero uses Config.Timeout
	MaxRetries        int           // zero uses Config.MaxRetries
}

// Validate checks that the source can build URLs and locate results.
func (s SourceConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	parsed, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("source %s: invalid base URL: %w", s.Name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("source %s: base URL must include a host", s.Name)
	}
	if len(s.SearchURLs) == 0 {
		return fmt.Errorf("source %s: at least one search URL is required", s.Name)
	}
	for _, tmpl := range s.SearchURLs {
		if !strings.Contains(tmpl, QueryPlaceholder) {
			return fmt.Errorf("source %s: search URL %q lacks %s", s.Name, tmpl, QueryPlaceholder)
		}
	}
	if len(s.Containers) == 0 {
		return fmt.Errorf("source %s: at least one container selector is required", s.Name)
	}
	if len(s.Fields.Title) == 0 {
		return fmt.Errorf("source %s: title selectors are required", s.Name)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("source %s: max retries cannot be negative", s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("source %s: timeout cannot be negative", s.Name)
	}
	return nil
}

// SearchURL renders template i for query.
func (s SourceConfig) SearchURL(i int, query string) string {
	escaped := url.QueryEscape(strings.TrimSpace(query))
	return strings.ReplaceAll(s.SearchURLs[i], QueryPlaceholder, escaped)
}

// SourceOverride is the YAML shape of a partial SourceConfig. Unset fields
// keep the built-in value.
type SourceOverride struct {
	BaseURL           string          `yaml:"base_url"`
	SearchURLs        []string        `yaml:"search_urls"`
	Containers        []string        `yaml:"containers"`
	Fields            *FieldSelectors `yaml:"fields"`
	UserAgents        []string        `yaml:"user_agents"`
	BrowserActive     *bool           `yaml:"browser_active"`
	BrowserEscalation *bool           `yaml:"browser_escalation"`
	Timeout           time.Duration   `yaml:"timeout"`
	MaxRetries        *int            `yaml:"max_retries"`
}

type sourcesFile struct {
	Sources map[string]SourceOverride `yaml:"sources"`
}

// LoadSourceOverrides reads a YAML file of per-source overrides keyed by
// lower-case source name.
func LoadSourceOverrides(path string) (map[string]SourceOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	out := make(map[string]SourceOverride, len(file.Sources))
	for name, o := range file.Sources {
		out[strings.ToLower(name)] = o
	}
	return out, nil
}

// Apply returns a copy of s with every set field of o replacing the original.
func (s SourceConfig) Apply(o SourceOverride) SourceConfig {
	if o.BaseURL != "" {
		s.BaseURL = o.BaseURL
	}
	if len(o.SearchURLs) > 0 {
		s.SearchURLs = o.SearchURLs
	}
	if len(o.Containers) > 0 {
		s.Containers = o.Containers
	}
	if o.Fields != nil {
		if len(o.Fields.Title) > 0 {
			s.Fields.Title = o.Fields.Title
		}
		if len(o.Fields.Price) > 0 {
			s.Fields.Price = o.Fields.Price
		}
		if len(o.Fields.Image) > 0 {
			s.Fields.Image = o.Fields.Image
		}
		if len(o.Fields.URL) > 0 {
			s.Fields.URL = o.Fields.URL
		}
		if len(o.Fields.Rating) > 0 {
			s.Fields.Rating = o.Fields.Rating
		}
	}
	if len(o.UserAgents) > 0 {
		s.UserAgents = o.UserAgents
	}
	if o.BrowserActive != nil {
		s.BrowserActive = *o.BrowserActive
	}
	if o.BrowserEscalation != nil {
		s.BrowserEscalation = *o.BrowserEscalation
	}
	if o.Timeout > 0 {
		s.Timeout = o.Timeout
	}
	if o.MaxRetries != nil {
		s.MaxRetries = *o.MaxRetries
	}
	return s
}
