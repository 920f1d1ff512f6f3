package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/product-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightBackend drives a real Chromium instance per handle.
type PlaywrightBackend struct {
	mu     sync.Mutex
	pw     *playwright.Playwright
	logger *slog.Logger
}

func NewPlaywrightBackend(logger *slog.Logger) *PlaywrightBackend {
	return &PlaywrightBackend{
		logger: logger.With("component", "automation"),
	}
}

func (b *PlaywrightBackend) ensureRunning() (*playwright.Playwright, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw != nil {
		return b.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	b.pw = pw
	return pw, nil
}

func (b *PlaywrightBackend) Open(ctx context.Context, opts OpenOptions) (Handle, error) {
	pw, err := b.ensureRunning()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}
	if opts.Proxy != nil {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.Proxy.ServerURL(),
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightHandle{
		browser: browser,
		proxy:   opts.Proxy,
		logger:  b.logger,
	}, nil
}

func (b *PlaywrightBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw == nil {
		return nil
	}
	err := b.pw.Stop()
	b.pw = nil
	return err
}

// playwrightHandle defers context creation until the first navigation so the
// fingerprint and proxy credentials recorded beforehand become context
// launch options.
type playwrightHandle struct {
	browser playwright.Browser
	proxy   *models.ProxyEndpoint
	logger  *slog.Logger

	fp        *models.BrowserFingerprint
	proxyUser string
	proxyPass string

	context playwright.BrowserContext
	page    playwright.Page
	closed  bool
	mu      sync.Mutex
}

func (h *playwrightHandle) ApplyFingerprint(fp models.BrowserFingerprint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page != nil {
		return fmt.Errorf("fingerprint must be applied before first navigation")
	}
	h.fp = &fp
	return nil
}

func (h *playwrightHandle) AuthenticateProxy(username, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page != nil {
		return fmt.Errorf("proxy credentials must be set before first navigation")
	}
	h.proxyUser = username
	h.proxyPass = password
	return nil
}

func (h *playwrightHandle) ensurePage() (playwright.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("handle is closed")
	}
	if h.page != nil {
		return h.page, nil
	}

	contextOpts := playwright.BrowserNewContextOptions{
		JavaScriptEnabled: playwright.Bool(true),
	}
	if h.fp != nil {
		contextOpts.UserAgent = playwright.String(h.fp.UserAgent)
		contextOpts.Locale = playwright.String(h.fp.Locale)
		contextOpts.TimezoneId = playwright.String(h.fp.Timezone)
		contextOpts.Viewport = &playwright.Size{
			Width:  h.fp.ViewportWidth,
			Height: h.fp.ViewportHeight,
		}
	}
	if h.proxyUser != "" {
		contextOpts.HttpCredentials = &playwright.HttpCredentials{
			Username: h.proxyUser,
			Password: h.proxyPass,
		}
	}

	browserCtx, err := h.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	// Suppress the automation flag and pin the platform string before any
	// page script runs.
	script := `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`
	if h.fp != nil {
		script += fmt.Sprintf(`Object.defineProperty(navigator, 'platform', {get: () => %q});`, h.fp.Platform)
	}
	if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("failed to add init script: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	h.context = browserCtx
	h.page = page
	return page, nil
}

func (h *playwrightHandle) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page, err := h.ensurePage()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, gotoErr := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
		done <- gotoErr
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("navigation failed: %w", err)
		}
	}

	h.humanize(page)
	return nil
}

// humanize adds mouse movement and a small scroll so page loads do not look
// machine-driven.
func (h *playwrightHandle) humanize(page playwright.Page) {
	for i := 0; i < 3; i++ {
		page.Mouse().Move(float64(100+i*200), float64(100+i*150))
		page.WaitForTimeout(float64(150 + i*100))
	}
	page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
}

func (h *playwrightHandle) Content(ctx context.Context) (string, error) {
	h.mu.Lock()
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return page.Content()
}

func (h *playwrightHandle) Evaluate(ctx context.Context, script string) (interface{}, error) {
	h.mu.Lock()
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return page.Evaluate(script)
}

// challengeMarkers are page-content fragments that indicate an anti-bot
// interstitial rather than product content.
var challengeMarkers = []string{
	"Request unsuccessful. Incapsula",
	"Incapsula incident ID",
	"This request was blocked",
	"Access Denied",
	"captcha",
	"Verify you are a human",
	"Klicke auf die Schaltfläche unten",
}

var challengeClickSelectors = []string{
	"input[type='checkbox']",
	"[id*='checkbox']",
	"button:has-text('Verify')",
	"button:has-text('Continue')",
	"button:has-text('Weiter shoppen')",
	"div[class*='verify']",
	".a-button-primary",
}

func (h *playwrightHandle) AttemptChallengeSolve(ctx context.Context, timeout time.Duration) (bool, error) {
	h.mu.Lock()
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return false, fmt.Errorf("no page loaded")
	}

	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to read page content: %w", err)
	}
	if detectChallenge(content) == "" {
		return false, nil
	}

	h.logger.Info("challenge detected, attempting solve")
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		clicked := false
		for _, selector := range challengeClickSelectors {
			el := page.Locator(selector).First()
			if visible, _ := el.IsVisible(); visible {
				if err := el.Click(); err == nil {
					clicked = true
					page.WaitForTimeout(2000)
					break
				}
			}
		}

		// Challenges frequently live in an iframe.
		if !clicked {
			for _, frame := range page.Frames() {
				if frame == page.MainFrame() {
					continue
				}
				for _, selector := range challengeClickSelectors {
					el := frame.Locator(selector).First()
					if visible, _ := el.IsVisible(); visible {
						if err := el.Click(); err == nil {
							clicked = true
							page.WaitForTimeout(2000)
							break
						}
					}
				}
				if clicked {
					break
				}
			}
		}

		content, err = page.Content()
		if err != nil {
			return false, fmt.Errorf("failed to read page content: %w", err)
		}
		if detectChallenge(content) == "" {
			h.logger.Info("challenge solved")
			return true, nil
		}

		if !clicked {
			page.WaitForTimeout(1000)
		}
	}

	return false, nil
}

// IsChallengePage reports whether rendered content is an anti-bot
// interstitial rather than the requested page.
func IsChallengePage(content string) bool {
	return detectChallenge(content) != ""
}

func detectChallenge(content string) string {
	lower := strings.ToLower(content)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return marker
		}
	}
	return ""
}

func (h *playwrightHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.page != nil {
		if err := h.page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.context != nil {
		if err := h.context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.browser.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
