package scraper

import (
	"errors"
	"fmt"
)

// SessionCreationError indicates the browser session could not be opened.
type SessionCreationError struct {
	Err error
}

func (e SessionCreationError) Error() string {
	return fmt.Errorf("session_creation: %w", e.Err).Error()
}

func (e SessionCreationError) Unwrap() error {
	return e.Err
}

// ProxyFailureError indicates the selected proxy could not serve the request.
type ProxyFailureError struct {
	Proxy string
	Err   error
}

func (e ProxyFailureError) Error() string {
	return fmt.Errorf("proxy_failure (%s): %w", e.Proxy, e.Err).Error()
}

func (e ProxyFailureError) Unwrap() error {
	return e.Err
}

// NavigationTimeoutError indicates the target page did not settle in time.
type NavigationTimeoutError struct {
	URL string
	Err error
}

func (e NavigationTimeoutError) Error() string {
	return fmt.Errorf("navigation_timeout (%s): %w", e.URL, e.Err).Error()
}

func (e NavigationTimeoutError) Unwrap() error {
	return e.Err
}

// ChallengeUnsolvedError indicates an anti-bot challenge blocked the page and
// could not be cleared.
type ChallengeUnsolvedError struct {
	URL string
}

func (e ChallengeUnsolvedError) Error() string {
	return fmt.Sprintf("challenge_unsolved (%s)", e.URL)
}

// ExtractionEmptyError indicates the page loaded but no usable product data
// could be read from it.
type ExtractionEmptyError struct {
	URL string
}

func (e ExtractionEmptyError) Error() string {
	return fmt.Sprintf("extraction_empty (%s): no product data found", e.URL)
}

// ProviderAPIError indicates the structured-data provider returned a failure
// or malformed payload.
type ProviderAPIError struct {
	Platform string
	Status   int
	Err      error
}

func (e ProviderAPIError) Error() string {
	return fmt.Errorf("provider_api (%s, status %d): %w", e.Platform, e.Status, e.Err).Error()
}

func (e ProviderAPIError) Unwrap() error {
	return e.Err
}

// EnhancementFailureError indicates the optional enhancement step failed. It
// never surfaces to callers of Acquire; the original product is kept.
type EnhancementFailureError struct {
	Err error
}

func (e EnhancementFailureError) Error() string {
	return fmt.Errorf("enhancement_failure: %w", e.Err).Error()
}

func (e EnhancementFailureError) Unwrap() error {
	return e.Err
}

// ErrorTypeLabel maps an acquisition error to its metrics label.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var session SessionCreationError
	if errors.As(err, &session) {
		return "session_creation"
	}
	var proxy ProxyFailureError
	if errors.As(err, &proxy) {
		return "proxy_failure"
	}
	var nav NavigationTimeoutError
	if errors.As(err, &nav) {
		return "navigation_timeout"
	}
	var challenge ChallengeUnsolvedError
	if errors.As(err, &challenge) {
		return "challenge_unsolved"
	}
	var empty ExtractionEmptyError
	if errors.As(err, &empty) {
		return "extraction_empty"
	}
	var provider ProviderAPIError
	if errors.As(err, &provider) {
		return "provider_api"
	}
	var enhancement EnhancementFailureError
	if errors.As(err, &enhancement) {
		return "enhancement_failure"
	}
	return "other"
}
