package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-product-finder/config"
	"github.com/jarcoal/httpmock"
)

const testURL = "http://shop.test/search/wireless-mouse"

var testPage = "<html><body>" + strings.Repeat("<div class=\"item\">listing</div>", 20) + "</body></html>"

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	body  string
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, url, userAgent string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.body, r.err
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestFetcher(t *testing.T, transport http.RoundTripper, opts ...Option) *Fetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	all := append([]Option{WithTransport(transport), WithSleep(noSleep)}, opts...)
	f, err := New(cfg, all...)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func TestFetchServesCacheWithinTTL(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, testPage))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewDiskCache(t.TempDir(), 24*time.Hour, func() time.Time { return now })
	f := newTestFetcher(t, transport, WithCache(cache))
	ctx := context.Background()

	body, err := f.Fetch(ctx, testURL, Options{Source: "shop"})
	if err != nil || body != testPage {
		t.Fatalf("first fetch = %q, %v", body, err)
	}

	now = now.Add(23 * time.Hour)
	body, err = f.Fetch(ctx, testURL, Options{Source: "shop"})
	if err != nil || body != testPage {
		t.Fatalf("cached fetch = %q, %v", body, err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("network calls after cached read = %d, want 1", got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := f.Fetch(ctx, testURL, Options{Source: "shop"}); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("network calls after stale read = %d, want 2", got)
	}
}

func TestFetchForceRefreshBypassesCache(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, testPage))
	f := newTestFetcher(t, transport)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), testURL, Options{ForceRefresh: true}); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestFetchForceRefreshFromContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, testPage))
	f := newTestFetcher(t, transport)

	if _, err := f.Fetch(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := f.Fetch(WithForceRefresh(context.Background()), testURL, Options{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestFetchRetries503(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", testURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, testPage), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, testPage), nil
	})
	f := newTestFetcher(t, transport)

	body, err := f.Fetch(context.Background(), testURL, Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != testPage {
		t.Fatalf("unexpected body %q", body)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if _, err := os.Stat(f.Cache().Path(testURL)); err != nil {
		t.Fatalf("accepted body should be cached: %v", err)
	}
}

func TestFetchShortBodyIsNotAvailable(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, "<html>robot check</html>"))
	f := newTestFetcher(t, transport)

	_, err := f.Fetch(context.Background(), testURL, Options{MaxRetries: 3})
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if _, err := os.Stat(f.Cache().Path(testURL)); !os.IsNotExist(err) {
		t.Fatalf("short body must not be cached, stat err = %v", err)
	}
}

func TestFetchEscalatesToBrowser(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	renderer := &fakeRenderer{body: testPage}
	f := newTestFetcher(t, transport, WithRenderer(renderer))

	body, err := f.Fetch(context.Background(), testURL, Options{MaxRetries: 3, AllowEscalation: true})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != testPage {
		t.Fatalf("unexpected body %q", body)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("http calls = %d, want 2", got)
	}
	if renderer.calls != 1 {
		t.Fatalf("renderer calls = %d, want 1", renderer.calls)
	}
}

func TestFetchWithoutEscalation(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	renderer := &fakeRenderer{body: testPage}
	f := newTestFetcher(t, transport, WithRenderer(renderer))

	_, err := f.Fetch(context.Background(), testURL, Options{MaxRetries: 3})
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("http calls = %d, want 3", got)
	}
	if renderer.calls != 0 {
		t.Fatalf("renderer should not run, calls = %d", renderer.calls)
	}
}

func TestFetchBrowserActiveUsesFinalAttempt(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, testPage))
	renderer := &fakeRenderer{body: testPage}
	f := newTestFetcher(t, transport, WithRenderer(renderer))

	if _, err := f.Fetch(context.Background(), testURL, Options{MaxRetries: 1, BrowserActive: true}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("http calls = %d, want 0", got)
	}
	if renderer.calls != 1 {
		t.Fatalf("renderer calls = %d, want 1", renderer.calls)
	}
}

func TestFetchSendsBrowserHeadersAndCookies(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var got *http.Request
	transport.RegisterResponder("GET", testURL, func(req *http.Request) (*http.Response, error) {
		got = req
		return httpmock.NewStringResponse(http.StatusOK, testPage), nil
	})

	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.Cookies = "session=abc; locale=en"
	f, err := New(cfg, WithTransport(transport), WithSleep(noSleep))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	agents := []string{"test-agent/1.0"}
	if _, err := f.Fetch(context.Background(), testURL, Options{UserAgents: agents}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got == nil {
		t.Fatalf("request not captured")
	}
	if ua := got.Header.Get("User-Agent"); ua != "test-agent/1.0" {
		t.Fatalf("user agent = %q", ua)
	}
	if ref := got.Header.Get("Referer"); ref != "https://www.google.com/" {
		t.Fatalf("referer = %q", ref)
	}
	if lang := got.Header.Get("Accept-Language"); !strings.HasPrefix(lang, "en-US") {
		t.Fatalf("accept-language = %q", lang)
	}
	cookie, err := got.Cookie("session")
	if err != nil || cookie.Value != "abc" {
		t.Fatalf("session cookie = %v, %v", cookie, err)
	}
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(http.StatusOK, testPage))
	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	f, err := New(cfg, WithTransport(transport))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, testURL, Options{})
	if !errors.Is(err, ErrNotAvailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrNotAvailable wrapping context.Canceled, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("http calls = %d, want 0", got)
	}
}

func TestCacheKey(t *testing.T) {
	got := CacheKey("https://www.ebay.com/sch/i.html?_nkw=wireless+mouse&_ipg=60")
	if got != "www_ebay_com_sch_i_html_nkw_wireless_mouse_ipg_60.html" {
		t.Fatalf("cache key = %q", got)
	}

	long := "https://www.walmart.com/search?q=" + strings.Repeat("x", 400)
	key := CacheKey(long)
	if len(key) > maxKeyLength+32 {
		t.Fatalf("long key not truncated: %d chars", len(key))
	}
	if key == CacheKey(long+"y") {
		t.Fatalf("truncated keys must differ for different URLs")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok status", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "service unavailable", err: nil, statusCode: http.StatusServiceUnavailable, expected: "unavailable"},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "unavailable"},
		{name: "bad request", err: nil, statusCode: http.StatusBadRequest, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}

	if got := errorTypeLabel(ErrShortBody{Length: 12}); got != "short_body" {
		t.Fatalf("short body label = %q", got)
	}
}
