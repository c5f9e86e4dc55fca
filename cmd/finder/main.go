package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-product-finder/aggregator"
	"github.com/aluiziolira/go-product-finder/apiclient"
	"github.com/aluiziolira/go-product-finder/browser"
	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/extractor"
	"github.com/aluiziolira/go-product-finder/fetcher"
	"github.com/aluiziolira/go-product-finder/metrics"
	"github.com/aluiziolira/go-product-finder/pipeline"
	"github.com/aluiziolira/go-product-finder/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(cfg, extractor.Known()); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	query := flag.String("q", "", "Search query (remaining arguments are used when empty)")
	limit := flag.Int("limit", cfg.DefaultLimit, "Maximum number of products to return")
	sources := flag.String("sources", strings.Join(cfg.Sources, ","), "Comma-separated sources to search")
	minPrice := flag.Float64("min-price", 0, "Minimum price, 0 disables")
	maxPrice := flag.Float64("max-price", 0, "Maximum price, 0 disables")
	brand := flag.String("brand", "", "Only keep products of this brand")
	fallback := flag.Bool("fallback", true, "Search every source when the requested ones return nothing")
	refresh := flag.Bool("refresh", false, "Ignore cached pages")
	sequential := flag.Bool("sequential", false, "Search sources one after another")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-request timeout")
	retries := flag.Int("retries", cfg.MaxRetries, "Attempts per URL")
	cacheDir := flag.String("cache-dir", cfg.CacheDir, "Directory of cached pages")
	sourcesFile := flag.String("sources-file", cfg.SourcesFile, "YAML file overriding source selectors")
	noBrowser := flag.Bool("no-browser", !cfg.BrowserEnabled, "Disable headless browser rendering")
	browserWorkers := flag.String("browser-workers", cfg.BrowserWorkers, "Concurrent browser pages: auto or a number")
	noSynthetic := flag.Bool("no-synthetic", !cfg.AllowSynthetic, "Never generate synthetic listings")
	outputFile := flag.String("output", cfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", cfg.OutputFormat, "Output format: stdout, csv, json or dual")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	listCategories := flag.String("categories", "", "Print the categories of a source (or \"all\") and exit")
	lookup := flag.String("lookup", "", "Print the source owning a product URL and exit")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	requested := splitList(*sources)
	cfg.Timeout = *timeout
	cfg.MaxRetries = *retries
	cfg.CacheDir = *cacheDir
	cfg.SourcesFile = *sourcesFile
	cfg.BrowserEnabled = !*noBrowser
	cfg.BrowserWorkers = *browserWorkers
	cfg.AllowSynthetic = !*noSynthetic
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logOut := os.Stdout
	if cfg.OutputFormat == "stdout" {
		logOut = os.Stderr
	}
	logger, _ := newLogger(logOut, cfg.Verbose)
	slog.SetDefault(logger)

	if *listCategories != "" {
		source := *listCategories
		if source == "all" {
			source = ""
		}
		printJSON(os.Stdout, search.Categories(source))
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	text := strings.TrimSpace(*query)
	if text == "" {
		text = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if text == "" && *lookup == "" {
		fmt.Fprintln(os.Stderr, "usage: finder [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	m := metrics.New()

	fetchOpts := []fetcher.Option{fetcher.WithMetrics(m)}
	if cfg.BrowserEnabled {
		renderer := browser.New(cfg)
		defer func() {
			if err := renderer.Close(); err != nil {
				slog.Warn("close browser", slog.Any("error", err))
			}
		}()
		fetchOpts = append(fetchOpts, fetcher.WithRenderer(renderer))
	}
	f, err := fetcher.New(cfg, fetchOpts...)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		os.Exit(1)
	}

	scrapers, err := extractor.Build(cfg, f)
	if err != nil {
		slog.Error("initialising extractors", slog.Any("error", err))
		os.Exit(1)
	}
	extractors := withAPIs(cfg, scrapers)
	if err := checkSources(requested, cfg.Sources); err != nil {
		slog.Error("invalid sources", slog.Any("error", err))
		os.Exit(1)
	}

	var managerOpts []aggregator.Option
	managerOpts = append(managerOpts, aggregator.WithMetrics(m))
	if *sequential {
		managerOpts = append(managerOpts, aggregator.Sequential())
	}
	manager := aggregator.NewManager(extractors, managerOpts...)

	if *lookup != "" {
		source, ok := manager.SourceForURL(*lookup)
		if !ok {
			slog.Error("no source owns url", slog.String("url", *lookup))
			os.Exit(1)
		}
		fmt.Println(source)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *refresh {
		ctx = fetcher.WithForceRefresh(ctx)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	writer, err := createWriter(cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting search",
		slog.String("query", text),
		slog.Int("limit", *limit),
		slog.Any("sources", requested),
	)

	svc := search.NewService(manager, cfg.DefaultLimit)
	startTime := time.Now()
	resp, err := svc.Search(ctx, search.Request{
		Query:                text,
		Limit:                *limit,
		Sources:              requested,
		MinPrice:             *minPrice,
		MaxPrice:             *maxPrice,
		Brand:                *brand,
		FallbackToAllSources: *fallback,
	})
	if err != nil {
		slog.Error("search failed", slog.Any("error", err))
		writer.Close()
		os.Exit(1)
	}

	if err := writer.Write(resp.Products); err != nil {
		slog.Error("writing products", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
	}
	if len(resp.Products) > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stderr, resp, time.Since(startTime), cfg)
}

// withAPIs puts the official API in front of sources that have credentials.
func withAPIs(cfg *config.Config, scrapers []*extractor.Scraper) []extractor.Extractor {
	extractors := make([]extractor.Extractor, 0, len(scrapers))
	for _, s := range scrapers {
		var api apiclient.Client
		switch {
		case s.Source() == "ebay" && cfg.EbayAPIToken != "":
			api = apiclient.NewEbay(cfg.EbayAPIToken)
		case s.Source() == "walmart" && cfg.WalmartAPIKey != "":
			api = apiclient.NewWalmart(cfg.WalmartAPIKey)
		}
		if api == nil {
			extractors = append(extractors, s)
			continue
		}
		slog.Info("api enabled", slog.String("source", s.Source()))
		extractors = append(extractors, aggregator.NewHybrid(api, s))
	}
	return extractors
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	if cfg.OutputFormat == "stdout" {
		return pipeline.NewStreamWriter(os.Stdout), nil
	}
	return pipeline.NewFileWriter(cfg.OutputFile, cfg.OutputFormat)
}

// checkSources rejects requested names outside of known.
func checkSources(requested, known []string) error {
	for _, name := range requested {
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(known, ", "))
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode output", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, resp *search.Response, duration time.Duration, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Search complete")
	fmt.Fprintf(w, "  Query:         %s\n", resp.Query)
	fmt.Fprintf(w, "  Sources:       %s\n", strings.Join(resp.Sources, ", "))
	if resp.Fallback {
		fmt.Fprintln(w, "  Fallback:      searched all sources")
	}
	if agg := resp.Aggregate; agg != nil {
		fmt.Fprintf(w, "  Merged:        %d\n", agg.MergedCount)
		fmt.Fprintf(w, "  Synthetic cut: %d\n", agg.DroppedSynthetic)
		fmt.Fprintf(w, "  Duplicates:    %d\n", agg.DroppedDuplicate)
		for name, stats := range agg.Sources {
			line := fmt.Sprintf("  %-14s %d listings (%d synthetic) in %v", name+":", stats.Listings, stats.Synthetic, stats.Duration.Round(time.Millisecond))
			if stats.Err != "" {
				line += " error: " + stats.Err
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "  Returned:      %d\n", len(resp.Products))
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	if cfg.OutputFormat != "stdout" {
		fmt.Fprintf(w, "  Output file:   %s\n", cfg.OutputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(out *os.File, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
