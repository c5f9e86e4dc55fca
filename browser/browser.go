// Package browser renders pages in a headless Chromium driven by go-rod.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-product-finder/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/shirou/gopsutil/v3/cpu"
)

const scrollPause = 2 * time.Second

// WorkerCount resolves the renderer concurrency from "auto" or an integer.
// Auto uses half the logical cores, clamped to 1..16.
func WorkerCount(value string) int {
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return n
	}
	if value != "auto" {
		slog.Warn("invalid browser workers value, using auto", slog.String("value", value))
	}

	cores, err := cpu.Counts(true)
	if err != nil {
		slog.Warn("could not detect cpu cores", slog.Any("error", err))
		return 2
	}
	n := cores / 2
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	return n
}

// Renderer launches the browser on first use and shares it between calls.
// Concurrent renders are bounded by a semaphore.
type Renderer struct {
	bin    string
	proxy  string
	settle time.Duration
	sem    chan struct{}

	mu      sync.Mutex
	browser *rod.Browser
}

// New builds a Renderer from cfg without starting a browser.
func New(cfg *config.Config) *Renderer {
	workers := WorkerCount(cfg.BrowserWorkers)
	slog.Debug("browser renderer configured", slog.Int("workers", workers))
	return &Renderer{
		bin:    cfg.BrowserBin,
		proxy:  proxyServer(cfg),
		settle: cfg.BrowserSettle,
		sem:    make(chan struct{}, workers),
	}
}

// Render navigates to rawURL in a stealth page, waits for the page to settle,
// scrolls halfway to trigger lazy content and returns the rendered DOM.
func (r *Renderer) Render(ctx context.Context, rawURL, userAgent string) (string, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-r.sem }()

	b, err := r.ensure()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("create stealth page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)
	if userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			slog.Debug("set user agent failed", slog.Any("error", err))
		}
	}
	if err := p.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		slog.Warn("wait load failed, continuing", slog.String("url", rawURL), slog.Any("error", err))
	}
	if err := pause(ctx, r.settle); err != nil {
		return "", err
	}
	if _, err := p.Eval(`() => window.scrollTo(0, document.body.scrollHeight / 2)`); err == nil {
		if err := pause(ctx, scrollPause); err != nil {
			return "", err
		}
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return html, nil
}

// Close shuts the browser down if it was started.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

func (r *Renderer) ensure() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true")
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	if r.proxy != "" {
		l = l.Proxy(r.proxy)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	slog.Info("browser started", slog.String("bin", r.bin), slog.Bool("proxy", r.proxy != ""))
	r.browser = b
	return b, nil
}

// proxyServer reduces the configured proxy to scheme://host, the form
// Chromium accepts on its command line.
func proxyServer(cfg *config.Config) string {
	raw := cfg.HTTPSProxy
	if raw == "" {
		raw = cfg.HTTPProxy
	}
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
