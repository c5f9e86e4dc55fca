package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool accepts 1/0, true/false, yes/no.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, true, nil
	case "0", "false", "no", "off":
		return false, true, nil
	}
	return false, true, fmt.Errorf("%s: invalid boolean %q", key, value)
}

// EnvDuration parses key as a Go duration, or as whole seconds when no unit is given.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays SCRAPER_* and API credential variables onto cfg.
func ApplyEnv(cfg *Config, sources []string) error {
	if d, ok, err := EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		cfg.Timeout = d
	}
	if n, ok, err := EnvInt("SCRAPER_RETRIES"); err != nil {
		return err
	} else if ok {
		cfg.MaxRetries = n
	}
	if d, ok, err := EnvDuration("SCRAPER_CACHE_TTL"); err != nil {
		return err
	} else if ok {
		cfg.CacheTTL = d
	}
	// ALLOW_FAKE_PRODUCTS is the legacy name; the SCRAPER_ variable wins.
	for _, key := range []string{"ALLOW_FAKE_PRODUCTS", "SCRAPER_ALLOW_SYNTHETIC"} {
		if b, ok, err := EnvBool(key); err != nil {
			return err
		} else if ok {
			cfg.AllowSynthetic = b
		}
	}
	if b, ok, err := EnvBool("SCRAPER_BROWSER"); err != nil {
		return err
	} else if ok {
		cfg.BrowserEnabled = b
	}
	if cfg.BrowserOverride == nil {
		cfg.BrowserOverride = map[string]bool{}
	}
	for _, source := range sources {
		key := "SCRAPER_BROWSER_" + strings.ToUpper(source)
		if b, ok, err := EnvBool(key); err != nil {
			return err
		} else if ok {
			cfg.BrowserOverride[strings.ToLower(source)] = b
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"SCRAPER_HTTP_PROXY", &cfg.HTTPProxy},
		{"SCRAPER_HTTPS_PROXY", &cfg.HTTPSProxy},
		{"SCRAPER_COOKIES", &cfg.Cookies},
		{"SCRAPER_CACHE_DIR", &cfg.CacheDir},
		{"SCRAPER_SOURCES_FILE", &cfg.SourcesFile},
		{"SCRAPER_METRICS_ADDR", &cfg.MetricsAddr},
		{"SCRAPER_BROWSER_BIN", &cfg.BrowserBin},
		{"EBAY_API_TOKEN", &cfg.EbayAPIToken},
		{"WALMART_API_KEY", &cfg.WalmartAPIKey},
	}
	for _, s := range strs {
		if value, ok := EnvString(s.key); ok {
			*s.dst = value
		}
	}
	return nil
}
