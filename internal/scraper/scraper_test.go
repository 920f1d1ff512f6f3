package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/platform"
	"github.com/maltedev/product-scraper/internal/provider"
	"github.com/maltedev/product-scraper/internal/proxy"
	"github.com/maltedev/product-scraper/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu        sync.Mutex
	created   int
	closed    []string
	createErr error
	proxies   []*models.ProxyEndpoint
}

func (f *fakeSessions) CreateSession(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	var ep *models.ProxyEndpoint
	if len(f.proxies) > 0 {
		ep = f.proxies[f.created%len(f.proxies)]
	}
	f.created++
	return &session.Session{
		ID:        fmt.Sprintf("sess-%d", f.created),
		Proxy:     ep,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeSessions) CloseSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeSessions) CloseAll() {}

func (f *fakeSessions) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeSessions) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

// fakeVisitor replays scripted outcomes, one per visit.
type fakeVisitor struct {
	mu       sync.Mutex
	contents []string
	errs     []error
	calls    int
}

func (f *fakeVisitor) Visit(ctx context.Context, sess *session.Session, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.contents) {
		return f.contents[idx], nil
	}
	if len(f.contents) > 0 {
		return f.contents[len(f.contents)-1], nil
	}
	return "", errors.New("no scripted content")
}

func (f *fakeVisitor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	supports bool
	product  *models.ScrapedProduct
	err      error
	calls    int
}

func (f *fakeSource) Supports(id platform.ID) bool { return f.supports }

func (f *fakeSource) Fetch(ctx context.Context, url string, id platform.ID) (*models.ScrapedProduct, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.product, nil
}

type fakeSink struct {
	mu    sync.Mutex
	saved []*models.ScrapedProduct
	err   error
}

func (f *fakeSink) Save(ctx context.Context, p *models.ScrapedProduct) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, p)
	return f.err
}

type stampingPost struct{}

func (stampingPost) Submit(ctx context.Context, p *models.ScrapedProduct) *models.ScrapedProduct {
	out := *p
	out.SEOTitle = "enhanced: " + p.Title
	return &out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

const productHTML = `<html><body>
	<h1>Test Product</h1>
	<span class="price">$19.99</span>
	<img src="https://cdn.example.com/p.jpg">
</body></html>`

func newOrchestrator(cfg Config, sessions SessionSource, visitor Visitor, source provider.Source, post PostProcessor) (*Orchestrator, *metrics.Collector) {
	collector := metrics.NewCollector()
	pool := proxy.NewPool(rand.New(rand.NewSource(1)))
	o := NewOrchestrator(cfg, sessions, visitor, source, pool, post, collector, testLogger())
	return o, collector
}

func TestAcquireSuccess(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{productHTML}}
	o, collector := newOrchestrator(Config{MaxRetries: 3}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, result.Status)
	require.NotNil(t, result.Product)
	assert.Equal(t, "Test Product", result.Product.Title)
	require.NotNil(t, result.Product.Price)
	assert.InDelta(t, 19.99, *result.Product.Price, 0.001)
	assert.Greater(t, result.ProcessingTime, time.Duration(0))

	assert.Equal(t, 1, sessions.createdCount())
	assert.Equal(t, 1, sessions.closedCount(), "session closed after success")

	snapshot := collector.Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.SuccessCount)
	assert.InDelta(t, 1.0, snapshot.SuccessRate, 0.001)
}

func TestAcquireProviderShortCircuitsBrowser(t *testing.T) {
	product := models.NewProduct("https://www.amazon.com/dp/B01", "amazon")
	product.Title = "Provider Product"

	sessions := &fakeSessions{}
	visitor := &fakeVisitor{}
	source := &fakeSource{supports: true, product: product}
	o, _ := newOrchestrator(Config{MaxRetries: 3}, sessions, visitor, source, nil)

	result, err := o.Acquire(context.Background(), "https://www.amazon.com/dp/B01")
	require.NoError(t, err)

	assert.Equal(t, "Provider Product", result.Product.Title)
	assert.Equal(t, 1, source.calls)
	assert.Zero(t, sessions.createdCount(), "no browser session when the provider answers")
	assert.Zero(t, visitor.callCount())
}

func TestAcquireFallsBackWhenProviderFails(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{productHTML}}
	source := &fakeSource{supports: true, err: provider.StatusError{Code: 503}}
	o, _ := newOrchestrator(Config{MaxRetries: 3}, sessions, visitor, source, nil)

	result, err := o.Acquire(context.Background(), "https://www.amazon.com/dp/B01")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "Test Product", result.Product.Title)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, sessions.createdCount(), "browser fallback after provider failure")
}

func TestAcquireTimeoutClosesSessionAndRetries(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{errs: []error{
		errors.New("page.goto: Timeout 30000ms exceeded"),
		nil,
	}, contents: []string{"", productHTML}}
	o, _ := newOrchestrator(Config{MaxRetries: 3}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, 2, sessions.createdCount(), "a fresh session per attempt")
	assert.Equal(t, 2, sessions.closedCount(), "failed session closed before retry")
}

func TestAcquireExhaustsRetries(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{errs: []error{
		errors.New("Timeout exceeded"),
		errors.New("Timeout exceeded"),
		errors.New("Timeout exceeded"),
	}}
	o, collector := newOrchestrator(Config{MaxRetries: 3}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.Error(t, err)

	var timeoutErr NavigationTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 3, sessions.createdCount())
	assert.Equal(t, 3, sessions.closedCount())

	snapshot := collector.Snapshot()
	assert.Equal(t, int64(1), snapshot.FailureCount)
	assert.Zero(t, snapshot.SuccessRate)
}

func TestAcquireProxyFailureRotatesWithoutConsumingRetries(t *testing.T) {
	badProxy := &models.ProxyEndpoint{Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyHTTP}
	sessions := &fakeSessions{proxies: []*models.ProxyEndpoint{badProxy}}
	visitor := &fakeVisitor{errs: []error{
		errors.New("net::ERR_PROXY_CONNECTION_FAILED"),
		errors.New("net::ERR_PROXY_CONNECTION_FAILED"),
		nil,
	}, contents: []string{"", "", productHTML}}
	o, collector := newOrchestrator(Config{MaxRetries: 1, MaxProxyRetries: 3}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, 3, sessions.createdCount(), "each proxy failure gets a fresh session")
	assert.Equal(t, int64(2), collector.Snapshot().ProxyFailures)
}

func TestAcquireProxyRetriesExhausted(t *testing.T) {
	badProxy := &models.ProxyEndpoint{Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyHTTP}
	sessions := &fakeSessions{proxies: []*models.ProxyEndpoint{badProxy}}
	visitor := &fakeVisitor{errs: []error{
		errors.New("net::ERR_PROXY_CONNECTION_FAILED"),
		errors.New("net::ERR_PROXY_CONNECTION_FAILED"),
	}}
	o, _ := newOrchestrator(Config{MaxRetries: 3, MaxProxyRetries: 1}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.Error(t, err)

	var proxyErr ProxyFailureError
	assert.ErrorAs(t, err, &proxyErr)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestAcquireSessionCreationFailure(t *testing.T) {
	sessions := &fakeSessions{createErr: errors.New("browser refused to start")}
	visitor := &fakeVisitor{}
	o, _ := newOrchestrator(Config{MaxRetries: 2}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.Error(t, err)

	var sessionErr SessionCreationError
	assert.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestAcquireEmptyExtraction(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{"<html><body><p>nothing here</p></body></html>"}}
	o, _ := newOrchestrator(Config{MaxRetries: 1}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.Error(t, err)

	var emptyErr ExtractionEmptyError
	assert.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Nil(t, result.Product)
}

func TestAcquireBlockedPageReportsEmptyExtraction(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{
		"<html><body>Request unsuccessful. Incapsula incident ID: 123</body></html>",
	}}
	o, collector := newOrchestrator(Config{MaxRetries: 2}, sessions, visitor, nil, nil)

	_, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.Error(t, err)

	// Callers only ever see that the page produced no data.
	var emptyErr ExtractionEmptyError
	assert.ErrorAs(t, err, &emptyErr)
	var challengeErr ChallengeUnsolvedError
	assert.False(t, errors.As(err, &challengeErr), "unsolved challenges are handled internally")

	assert.Equal(t, float64(2), counterValue(t, collector, "scraper_errors_total", "challenge_unsolved"),
		"each blocked attempt still counts as an unsolved challenge")
}

func TestAcquireSucceedsWhenChallengeMarkerCoexistsWithData(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{`<html><head>
		<script src="https://www.google.com/recaptcha/api.js"></script>
	</head><body>
		<h1>Great Widget</h1>
		<span class="price">$19.99</span>
	</body></html>`}}
	o, _ := newOrchestrator(Config{MaxRetries: 1}, sessions, visitor, nil, nil)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err, "a captcha script on an otherwise readable page is not a block")

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "Great Widget", result.Product.Title)
	require.NotNil(t, result.Product.Price)
	assert.InDelta(t, 19.99, *result.Product.Price, 0.001)
}

func counterValue(t *testing.T, collector *metrics.Collector, name, label string) float64 {
	t.Helper()
	families, err := collector.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestAcquireAppliesPostProcessor(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{productHTML}}
	o, _ := newOrchestrator(Config{MaxRetries: 1}, sessions, visitor, nil, stampingPost{})

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, "enhanced: Test Product", result.Product.SEOTitle)
	assert.Equal(t, "Test Product", result.Product.Title)
}

func TestAcquireFeedsSinks(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{productHTML}}
	o, _ := newOrchestrator(Config{MaxRetries: 1}, sessions, visitor, nil, nil)

	good := &fakeSink{}
	failing := &fakeSink{err: errors.New("db down")}
	o.AddSink(failing)
	o.AddSink(good)

	result, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status, "sink failure never fails the acquisition")
	require.Len(t, good.saved, 1)
	assert.Equal(t, "Test Product", good.saved[0].Title)
}

func TestAcquireIsRepeatable(t *testing.T) {
	sessions := &fakeSessions{}
	visitor := &fakeVisitor{contents: []string{productHTML, productHTML}}
	o, _ := newOrchestrator(Config{MaxRetries: 1}, sessions, visitor, nil, nil)

	first, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)
	second, err := o.Acquire(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)

	assert.Equal(t, first.Product.Title, second.Product.Title)
	assert.Equal(t, first.Product.Price, second.Product.Price)
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"session", SessionCreationError{Err: errors.New("x")}, "session_creation"},
		{"proxy", ProxyFailureError{Err: errors.New("x")}, "proxy_failure"},
		{"timeout", NavigationTimeoutError{URL: "u", Err: errors.New("x")}, "navigation_timeout"},
		{"challenge", ChallengeUnsolvedError{URL: "u"}, "challenge_unsolved"},
		{"empty", ExtractionEmptyError{URL: "u"}, "extraction_empty"},
		{"provider", ProviderAPIError{Platform: "amazon", Status: 500, Err: errors.New("x")}, "provider_api"},
		{"enhancement", EnhancementFailureError{Err: errors.New("x")}, "enhancement_failure"},
		{"wrapped", fmt.Errorf("outer: %w", NavigationTimeoutError{URL: "u", Err: errors.New("x")}), "navigation_timeout"},
		{"plain", errors.New("x"), "other"},
		{"nil", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorTypeLabel(tt.err))
		})
	}
}
