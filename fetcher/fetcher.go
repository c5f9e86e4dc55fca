// Package fetcher resolves a URL to HTML through the disk cache, plain HTTP
// attempts with jitter and user-agent rotation, and an optional headless
// browser for the final attempt.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-product-finder/config"
	"github.com/aluiziolira/go-product-finder/metrics"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	ctxBody   = "body"
	ctxStatus = "status"
)

// DefaultUserAgents is the rotation pool used when a source defines none.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
}

// Renderer loads a page in a real browser and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, url, userAgent string) (string, error)
}

// Options tune a single Fetch call.
type Options struct {
	Source          string
	ForceRefresh    bool
	UserAgents      []string
	BrowserActive   bool // render the final attempt in the browser
	AllowEscalation bool // switch the browser on after the second-to-last failure
	Timeout         time.Duration
	MaxRetries      int
}

type refreshKey struct{}

// WithForceRefresh marks every Fetch made with ctx as bypassing the cache read.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

func forceRefresh(ctx context.Context, opts Options) bool {
	if opts.ForceRefresh {
		return true
	}
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Fetcher is constructed once per process and shared by every extractor.
type Fetcher struct {
	cfg       *config.Config
	cache     *DiskCache
	renderer  Renderer
	metrics   *metrics.Metrics
	transport http.RoundTripper
	jar       http.CookieJar
	cookies   []*http.Cookie
	sleep     func(context.Context, time.Duration) error

	mu         sync.Mutex
	collectors map[time.Duration]*colly.Collector
	limiters   map[string]*rate.Limiter
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// WithRenderer enables the browser path.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithCache replaces the disk cache built from the config.
func WithCache(c *DiskCache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithSleep replaces the jitter sleeper.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New builds a Fetcher from cfg.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	f := &Fetcher{
		cfg:        cfg,
		cache:      NewDiskCache(cfg.CacheDir, cfg.CacheTTL, nil),
		jar:        jar,
		cookies:    config.ParseCookies(cfg.Cookies),
		sleep:      sleepContext,
		collectors: make(map[time.Duration]*colly.Collector),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = newTransport(cfg)
	}
	return f, nil
}

// HasRenderer reports whether browser rendering is available.
func (f *Fetcher) HasRenderer() bool {
	return f.renderer != nil
}

// Cache exposes the disk cache.
func (f *Fetcher) Cache() *DiskCache {
	return f.cache
}

// Fetch returns the HTML for rawURL. It never returns a transport error:
// exhausted attempts surface as ErrNotAvailable.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	if !forceRefresh(ctx, opts) {
		body, result := f.cache.Lookup(rawURL)
		f.metrics.IncCache(result)
		if result == "hit" {
			slog.Debug("using cached content", slog.String("url", rawURL), slog.String("source", opts.Source))
			return body, nil
		}
	}

	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = f.cfg.MaxRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	userAgents := opts.UserAgents
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	useBrowser := opts.BrowserActive && f.renderer != nil

	slog.Info("fetching content", slog.String("url", rawURL), slog.String("source", opts.Source))

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			f.metrics.IncRetries(opts.Source)
		}
		if err := f.sleep(ctx, f.jitter()); err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotAvailable, err)
		}
		if err := f.wait(ctx, rawURL); err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotAvailable, err)
		}

		ua := userAgents[rand.IntN(len(userAgents))]
		mode := "http"
		var (
			body string
			err  error
		)
		start := time.Now()
		if useBrowser && i == attempts-1 {
			mode = "browser"
			slog.Info("final attempt with headless browser", slog.String("url", rawURL))
			body, err = f.render(ctx, rawURL, ua, timeout)
		} else {
			body, err = f.get(rawURL, ua, timeout)
		}
		f.metrics.ObserveFetch(mode, time.Since(start))

		if err == nil && len(body) <= f.cfg.MinBodyLength {
			err = ErrShortBody{Length: len(body)}
		}
		if err == nil {
			f.metrics.IncFetch(opts.Source, mode, "ok")
			if perr := f.cache.Put(rawURL, body); perr != nil {
				slog.Warn("cache write failed", slog.String("url", rawURL), slog.Any("error", perr))
			}
			return body, nil
		}

		lastErr = err
		category := errorTypeLabel(err)
		f.metrics.IncFetch(opts.Source, mode, category)
		f.metrics.IncError(category)
		slog.Warn("fetch attempt failed",
			slog.String("url", rawURL),
			slog.Int("attempt", i+1),
			slog.Int("attempts", attempts),
			slog.String("mode", mode),
			slog.String("category", category),
			slog.Any("error", err),
		)

		if i == attempts-2 && !useBrowser && opts.AllowEscalation && f.renderer != nil {
			useBrowser = true
			f.metrics.IncEscalation(opts.Source)
			slog.Info("escalating to headless browser", slog.String("url", rawURL), slog.String("source", opts.Source))
		}
	}

	slog.Error("all fetch attempts failed",
		slog.String("url", rawURL),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr),
	)
	return "", ErrNotAvailable
}

func (f *Fetcher) get(rawURL, userAgent string, timeout time.Duration) (string, error) {
	c := f.collector(timeout)
	if len(f.cookies) > 0 {
		if err := c.SetCookies(rawURL, f.cookies); err != nil {
			slog.Debug("set cookies failed", slog.String("url", rawURL), slog.Any("error", err))
		}
	}

	hdr := http.Header{}
	hdr.Set("User-Agent", userAgent)
	hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	hdr.Set("Accept-Language", "en-US,en;q=0.9")
	hdr.Set("Referer", "https://www.google.com/")

	cctx := colly.NewContext()
	if err := c.Request(http.MethodGet, rawURL, nil, cctx, hdr); err != nil {
		return "", classifyError(err, 0)
	}
	status, _ := strconv.Atoi(cctx.Get(ctxStatus))
	if err := classifyError(nil, status); err != nil {
		return "", err
	}
	return cctx.Get(ctxBody), nil
}

func (f *Fetcher) render(ctx context.Context, rawURL, userAgent string, timeout time.Duration) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, err := f.renderer.Render(rctx, rawURL, userAgent)
	if err != nil {
		return "", classifyError(err, 0)
	}
	return body, nil
}

// collector returns the synchronous collector for a request timeout,
// building it on first use.
func (f *Fetcher) collector(timeout time.Duration) *colly.Collector {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collectors[timeout]; ok {
		return c
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(timeout)
	c.WithTransport(f.transport)
	c.SetCookieJar(f.jar)
	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, string(r.Body))
		r.Ctx.Put(ctxStatus, strconv.Itoa(r.StatusCode))
	})
	f.collectors[timeout] = c
	return c
}

func (f *Fetcher) jitter() time.Duration {
	lo, hi := f.cfg.JitterMin, f.cfg.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// wait applies the optional per-host rate limit.
func (f *Fetcher) wait(ctx context.Context, rawURL string) error {
	if f.cfg.RateLimit <= 0 {
		return nil
	}
	host := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		host = parsed.Host
	}

	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RateLimit), 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newTransport(cfg *config.Config) *http.Transport {
	proxy := http.ProxyFromEnvironment
	if cfg.HTTPProxy != "" || cfg.HTTPSProxy != "" {
		proxy = func(req *http.Request) (*url.URL, error) {
			raw := cfg.HTTPProxy
			if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
				raw = cfg.HTTPSProxy
			}
			if raw == "" {
				return nil, nil
			}
			return url.Parse(raw)
		}
	}
	return &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
