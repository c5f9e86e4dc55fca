package extractor

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aluiziolira/go-product-finder/config"
)

// desktopUserAgents is the rotation pool shared by the built-in sources.
var desktopUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

type constructor func(config.SourceConfig, Fetcher, Settings) *Scraper

type builtin struct {
	source func() config.SourceConfig
	build  constructor
}

var builtins = map[string]builtin{
	"amazon":  {source: AmazonSource, build: NewAmazon},
	"ebay":    {source: EbaySource, build: NewEbay},
	"walmart": {source: WalmartSource, build: NewWalmart},
}

// Known returns the names of the built-in sources in sorted order.
func Known() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns one extractor per name in cfg.Sources. Selector overrides
// from cfg.SourcesFile are merged over the built-in definitions; sources
// without their own timeout or retry count take the global ones.
func Build(cfg *config.Config, f Fetcher) ([]*Scraper, error) {
	overrides := map[string]config.SourceOverride{}
	if cfg.SourcesFile != "" {
		loaded, err := config.LoadSourceOverrides(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		overrides = loaded
	}

	scrapers := make([]*Scraper, 0, len(cfg.Sources))
	for _, raw := range cfg.Sources {
		name := strings.ToLower(strings.TrimSpace(raw))
		b, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %s)", raw, strings.Join(Known(), ", "))
		}
		src := b.source()
		if o, ok := overrides[name]; ok {
			src = src.Apply(o)
			slog.Debug("applied source overrides", slog.String("source", name))
		}
		if src.Timeout <= 0 {
			src.Timeout = cfg.Timeout
		}
		if src.MaxRetries <= 0 {
			src.MaxRetries = cfg.MaxRetries
		}
		if err := src.Validate(); err != nil {
			return nil, err
		}
		scrapers = append(scrapers, b.build(src, f, SettingsFor(cfg, name)))
	}
	return scrapers, nil
}
