package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero retries",
			mutate: func(cfg *Config) {
				cfg.MaxRetries = 0
			},
			wantErr: "max retries",
		},
		{
			name: "empty cache dir",
			mutate: func(cfg *Config) {
				cfg.CacheDir = ""
			},
			wantErr: "cache dir",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "inverted jitter",
			mutate: func(cfg *Config) {
				cfg.JitterMin = 2 * time.Second
				cfg.JitterMax = time.Second
			},
			wantErr: "jitter max",
		},
		{
			name: "proxy without host",
			mutate: func(cfg *Config) {
				cfg.HTTPProxy = "http://"
			},
			wantErr: "http proxy",
		},
		{
			name: "bad browser workers",
			mutate: func(cfg *Config) {
				cfg.BrowserWorkers = "many"
			},
			wantErr: "browser workers",
		},
		{
			name: "csv without file",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "csv"
			},
			wantErr: "output file",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "no sources",
			mutate: func(cfg *Config) {
				cfg.Sources = nil
			},
			wantErr: "source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("cache ttl = %v, want 24h", cfg.CacheTTL)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("max retries = %d, want 3", cfg.MaxRetries)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_TIMEOUT", "12")
	t.Setenv("SCRAPER_RETRIES", "5")
	t.Setenv("SCRAPER_HTTPS_PROXY", "https://proxy.example:8443")
	t.Setenv("SCRAPER_COOKIES", "session=abc; locale=en")
	t.Setenv("SCRAPER_ALLOW_SYNTHETIC", "false")
	t.Setenv("SCRAPER_BROWSER_AMAZON", "0")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, []string{"amazon", "ebay"}); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Timeout != 12*time.Second {
		t.Fatalf("timeout = %v, want 12s", cfg.Timeout)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("retries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.HTTPSProxy != "https://proxy.example:8443" {
		t.Fatalf("https proxy = %q", cfg.HTTPSProxy)
	}
	if cfg.Cookies != "session=abc; locale=en" {
		t.Fatalf("cookies = %q", cfg.Cookies)
	}
	if cfg.AllowSynthetic {
		t.Fatalf("synthetic fallback should be disabled")
	}
	if cfg.BrowserAllowed("amazon") {
		t.Fatalf("browser should be disabled for amazon")
	}
	if !cfg.BrowserAllowed("ebay") {
		t.Fatalf("browser should stay enabled for ebay")
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("SCRAPER_RETRIES", "three")
	if err := ApplyEnv(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for non-numeric retries")
	}
}

func TestParseCookies(t *testing.T) {
	cookies := ParseCookies(" session=abc ;=broken; flag; token=a=b ")
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2", len(cookies))
	}
	if cookies[0].Name != "session" || cookies[0].Value != "abc" {
		t.Fatalf("first cookie = %s=%s", cookies[0].Name, cookies[0].Value)
	}
	if cookies[1].Name != "token" || cookies[1].Value != "a=b" {
		t.Fatalf("second cookie = %s=%s", cookies[1].Name, cookies[1].Value)
	}
}

func TestLoadSourceOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yml")
	body := `
sources:
  Amazon:
    containers: ["div.result"]
    browser_active: false
    timeout: 10s
    max_retries: 2
    fields:
      title: ["h2 span", {css: "img", attrs: ["alt"]}]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	overrides, err := LoadSourceOverrides(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	o, ok := overrides["amazon"]
	if !ok {
		t.Fatalf("expected lower-cased amazon key, got %v", overrides)
	}

	base := SourceConfig{
		Name:          "amazon",
		BaseURL:       "https://www.amazon.com",
		SearchURLs:    []string{"https://www.amazon.com/s?k={query}"},
		Containers:    []string{"div.original"},
		Fields:        FieldSelectors{Title: []Selector{Text("h2")}, Price: []Selector{Text(".price")}},
		BrowserActive: true,
		Timeout:       25 * time.Second,
		MaxRetries:    3,
	}
	got := base.Apply(o)

	if got.Containers[0] != "div.result" {
		t.Fatalf("containers = %v", got.Containers)
	}
	if got.BrowserActive {
		t.Fatalf("browser_active override not applied")
	}
	if got.Timeout != 10*time.Second || got.MaxRetries != 2 {
		t.Fatalf("timeout/retries = %v/%d", got.Timeout, got.MaxRetries)
	}
	if len(got.Fields.Title) != 2 || got.Fields.Title[1].Attrs[0] != "alt" {
		t.Fatalf("title selectors = %+v", got.Fields.Title)
	}
	if len(got.Fields.Price) != 1 {
		t.Fatalf("price selectors should be kept, got %+v", got.Fields.Price)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("merged config invalid: %v", err)
	}
}

func TestSourceSearchURL(t *testing.T) {
	src := SourceConfig{SearchURLs: []string{"https://www.ebay.com/sch/i.html?_nkw={query}&_ipg=60"}}
	if got := src.SearchURL(0, " wireless mouse "); got != "https://www.ebay.com/sch/i.html?_nkw=wireless+mouse&_ipg=60" {
		t.Fatalf("search url = %q", got)
	}
}
