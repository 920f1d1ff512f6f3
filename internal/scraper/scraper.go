package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/product-scraper/internal/automation"
	"github.com/maltedev/product-scraper/internal/extract"
	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/platform"
	"github.com/maltedev/product-scraper/internal/provider"
	"github.com/maltedev/product-scraper/internal/proxy"
	"github.com/maltedev/product-scraper/internal/session"
)

// SessionSource creates and tears down browsing sessions.
type SessionSource interface {
	CreateSession(ctx context.Context) (*session.Session, error)
	CloseSession(id string) error
	CloseAll()
}

// Visitor navigates a session to a page and returns its rendered content.
type Visitor interface {
	Visit(ctx context.Context, sess *session.Session, url string) (string, error)
}

// PostProcessor optionally rewrites a product after extraction. It must never
// fail the acquisition; on any problem it returns the input product.
type PostProcessor interface {
	Submit(ctx context.Context, product *models.ScrapedProduct) *models.ScrapedProduct
}

// Sink persists or forwards successfully acquired products. Sink failures are
// logged, never surfaced to the caller.
type Sink interface {
	Save(ctx context.Context, product *models.ScrapedProduct) error
}

// Config controls the acquisition loop.
type Config struct {
	MaxRetries      int
	MaxProxyRetries int
}

// Orchestrator runs the acquisition pipeline for one URL: provider lookup
// first, then a browser session with retries, then extraction and optional
// post-processing. It always returns a well-formed result, success or not.
type Orchestrator struct {
	cfg       Config
	sessions  SessionSource
	visitor   Visitor
	source    provider.Source
	proxies   *proxy.Pool
	post      PostProcessor
	sinks     []Sink
	collector *metrics.Collector
	logger    *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	sessions SessionSource,
	visitor Visitor,
	source provider.Source,
	proxies *proxy.Pool,
	post PostProcessor,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		visitor:   visitor,
		source:    source,
		proxies:   proxies,
		post:      post,
		collector: collector,
		logger:    logger.With("component", "orchestrator"),
	}
}

// AddSink registers a destination for successfully acquired products.
func (o *Orchestrator) AddSink(sink Sink) {
	o.sinks = append(o.sinks, sink)
}

// Metrics returns a point-in-time snapshot of the acquisition counters.
func (o *Orchestrator) Metrics() models.MetricsSnapshot {
	return o.collector.Snapshot()
}

// Acquire fetches product data for url. The returned result is always
// populated: on failure Status is failed and Error holds the reason; Acquire
// also returns the typed error for callers that branch on it.
func (o *Orchestrator) Acquire(ctx context.Context, url string) (*models.ScrapingResult, error) {
	start := time.Now()
	id := platform.Detect(url)

	product, err := o.acquire(ctx, url, id)

	result := &models.ScrapingResult{
		URL:            url,
		ScrapedAt:      time.Now(),
		ProcessingTime: time.Since(start),
	}

	if err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()
		o.collector.RecordRequest(false, result.ProcessingTime)
		o.collector.RecordError(ErrorTypeLabel(err))
		o.logger.Error("acquisition failed", "url", url, "platform", id, "error", err, "duration", result.ProcessingTime)
		return result, err
	}

	if o.post != nil {
		product = o.post.Submit(ctx, product)
	}

	result.Status = models.StatusSuccess
	result.Product = product
	o.collector.RecordRequest(true, result.ProcessingTime)
	o.logger.Info("acquisition succeeded", "url", url, "platform", id, "title", product.Title, "duration", result.ProcessingTime)

	for _, sink := range o.sinks {
		if err := sink.Save(ctx, product); err != nil {
			o.logger.Warn("sink rejected product", "url", url, "error", err)
		}
	}

	return result, nil
}

func (o *Orchestrator) acquire(ctx context.Context, url string, id platform.ID) (*models.ScrapedProduct, error) {
	// A configured provider for this platform short-circuits the browser
	// entirely; its failure just means we fall through.
	if o.source != nil && o.source.Supports(id) {
		product, err := o.source.Fetch(ctx, url, id)
		if err == nil {
			return product, nil
		}
		var status provider.StatusError
		providerErr := ProviderAPIError{Platform: string(id), Err: err}
		if errors.As(err, &status) {
			providerErr.Status = status.Code
		}
		o.collector.RecordError(ErrorTypeLabel(providerErr))
		o.logger.Warn("provider lookup failed, falling back to browser", "url", url, "error", providerErr)
	}

	var lastErr error
	proxyRetries := 0

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquisition cancelled: %w", ctx.Err())
		}

		product, err := o.attempt(ctx, url, id)
		if err == nil {
			return product, nil
		}
		lastErr = err

		var challengeErr ChallengeUnsolvedError
		if errors.As(err, &challengeErr) {
			o.collector.RecordError(ErrorTypeLabel(err))
		}

		var proxyErr ProxyFailureError
		if errors.As(err, &proxyErr) {
			proxyRetries++
			if proxyRetries > o.cfg.MaxProxyRetries {
				return nil, lastErr
			}
			// Proxy swaps do not consume regular retries.
			attempt--
		}

		o.logger.Warn("acquisition attempt failed", "url", url, "attempt", attempt+1, "error", err)
	}

	// An unsolved challenge is handled here, not by callers: what they see
	// is that the page produced no data.
	var challengeErr ChallengeUnsolvedError
	if errors.As(lastErr, &challengeErr) {
		lastErr = ExtractionEmptyError{URL: url}
	}

	return nil, lastErr
}

// attempt runs one full session lifecycle: create, visit, extract, close. The
// session is always closed before returning, on success and failure alike.
func (o *Orchestrator) attempt(ctx context.Context, url string, id platform.ID) (*models.ScrapedProduct, error) {
	sess, err := o.sessions.CreateSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquisition cancelled: %w", ctx.Err())
		}
		if looksLikeProxyError(err) {
			o.collector.ProxyFailure()
			return nil, ProxyFailureError{Err: err}
		}
		return nil, SessionCreationError{Err: err}
	}
	o.collector.SessionOpened()
	defer func() {
		if closeErr := o.sessions.CloseSession(sess.ID); closeErr != nil {
			o.logger.Warn("session close failed", "session_id", sess.ID, "error", closeErr)
		}
		o.collector.SessionClosed()
	}()

	content, err := o.visitor.Visit(ctx, sess, url)
	if err != nil {
		return nil, o.classifyVisitError(sess, url, err)
	}

	// A challenge marker on the page is not fatal by itself: plenty of
	// product pages embed captcha scripts. Extraction decides; only a page
	// that matched a marker AND yielded nothing counts as blocked.
	product, err := extract.Extract(content, id, url)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if isEmptyProduct(product) {
		if automation.IsChallengePage(content) {
			return nil, ChallengeUnsolvedError{URL: url}
		}
		return nil, ExtractionEmptyError{URL: url}
	}

	return product, nil
}

func (o *Orchestrator) classifyVisitError(sess *session.Session, url string, err error) error {
	if looksLikeProxyError(err) {
		o.collector.ProxyFailure()
		if sess.Proxy != nil {
			o.proxies.ReportFailure(*sess.Proxy)
			return ProxyFailureError{Proxy: sess.Proxy.Key(), Err: err}
		}
		return ProxyFailureError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return NavigationTimeoutError{URL: url, Err: err}
	}
	return fmt.Errorf("navigation failed: %w", err)
}

// looksLikeProxyError matches the error strings Chromium surfaces for broken
// proxies.
func looksLikeProxyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	for _, marker := range []string{
		"ERR_PROXY_CONNECTION_FAILED",
		"ERR_TUNNEL_CONNECTION_FAILED",
		"ERR_NO_SUPPORTED_PROXIES",
		"ERR_SOCKS_CONNECTION_FAILED",
		"PROXY",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isEmptyProduct reports whether extraction found nothing worth keeping: a
// placeholder title with neither price nor images.
func isEmptyProduct(p *models.ScrapedProduct) bool {
	return p.Title == "Unknown Product" && p.Price == nil && len(p.Images) == 0
}
