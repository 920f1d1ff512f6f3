package automation

import (
	"context"
	"time"

	"github.com/maltedev/product-scraper/internal/models"
)

// Handle is one exclusively-owned automation context. A handle is never
// shared across concurrent callers; the session manager enforces ownership.
type Handle interface {
	// ApplyFingerprint records the client identity presented on navigation.
	// Must be called before the first Navigate.
	ApplyFingerprint(fp models.BrowserFingerprint) error

	// AuthenticateProxy records credentials for the proxy the handle was
	// opened with. Must be called before the first Navigate.
	AuthenticateProxy(username, password string) error

	// Navigate loads the URL and waits for the page to settle within timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Content returns the rendered page markup.
	Content(ctx context.Context) (string, error)

	// Evaluate runs a script in the page and returns its result.
	Evaluate(ctx context.Context, script string) (interface{}, error)

	// AttemptChallengeSolve tries to resolve an anti-bot challenge on the
	// current page. Returns true only when a challenge was present and
	// cleared. A false return is not an error.
	AttemptChallengeSolve(ctx context.Context, timeout time.Duration) (bool, error)

	// Close releases the underlying resources. Idempotent.
	Close() error
}

// OpenOptions configures a new handle.
type OpenOptions struct {
	Headless bool
	Proxy    *models.ProxyEndpoint
}

// Backend opens automation handles. Implementations must be safe for
// concurrent Open calls.
type Backend interface {
	Open(ctx context.Context, opts OpenOptions) (Handle, error)
	Shutdown() error
}
