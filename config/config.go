package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by every source.
type Config struct {
	CacheDir        string
	CacheTTL        time.Duration
	Timeout         time.Duration
	MaxRetries      int
	JitterMin       time.Duration
	JitterMax       time.Duration
	MinBodyLength   int
	RateLimit       float64 // requests per second per host, 0 disables
	HTTPProxy       string
	HTTPSProxy      string
	Cookies         string // raw "k=v; k2=v2"
	AllowSynthetic  bool
	SyntheticCap    int
	BrowserEnabled  bool
	BrowserBin      string
	BrowserWorkers  string // "auto" or a positive integer
	BrowserSettle   time.Duration
	BrowserOverride map[string]bool // per-source escalation switch, keyed by source name
	Sources         []string
	DefaultLimit    int
	SourcesFile     string
	EbayAPIToken    string
	WalmartAPIKey   string
	OutputFile      string
	OutputFormat    string // csv, json, dual or stdout
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns the defaults used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:        "cache/scrapes",
		CacheTTL:        24 * time.Hour,
		Timeout:         25 * time.Second,
		MaxRetries:      3,
		JitterMin:       800 * time.Millisecond,
		JitterMax:       1800 * time.Millisecond,
		MinBodyLength:   200,
		RateLimit:       0,
		AllowSynthetic:  true,
		SyntheticCap:    5,
		BrowserEnabled:  true,
		BrowserWorkers:  "auto",
		BrowserSettle:   3 * time.Second,
		BrowserOverride: map[string]bool{},
		Sources:         []string{"amazon", "ebay", "walmart"},
		DefaultLimit:    5,
		OutputFormat:    "stdout",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache dir cannot be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.JitterMin < 0 || c.JitterMax < 0 {
		return fmt.Errorf("jitter cannot be negative")
	}
	if c.JitterMax < c.JitterMin {
		return fmt.Errorf("jitter max (%s) cannot be below jitter min (%s)", c.JitterMax, c.JitterMin)
	}
	if c.MinBodyLength < 0 {
		return fmt.Errorf("min body length cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	for name, proxy := range map[string]string{"http proxy": c.HTTPProxy, "https proxy": c.HTTPSProxy} {
		if proxy == "" {
			continue
		}
		parsed, err := url.Parse(proxy)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", name)
		}
	}
	if c.SyntheticCap <= 0 {
		return fmt.Errorf("synthetic cap must be positive")
	}
	if c.BrowserWorkers != "auto" {
		n, err := strconv.Atoi(c.BrowserWorkers)
		if err != nil || n <= 0 {
			return fmt.Errorf("browser workers must be \"auto\" or a positive integer")
		}
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default limit must be positive")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty for format %s", c.OutputFormat)
		}
	case "stdout":
	default:
		return fmt.Errorf("output format must be csv, json, dual or stdout")
	}
	return nil
}

// BrowserAllowed reports whether browser escalation may be used for source.
// The global switch disables it everywhere; otherwise a per-source override decides.
func (c *Config) BrowserAllowed(source string) bool {
	if !c.BrowserEnabled {
		return false
	}
	if allowed, ok := c.BrowserOverride[strings.ToLower(source)]; ok {
		return allowed
	}
	return true
}
