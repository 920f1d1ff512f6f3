package models

import (
	"fmt"
	"time"
)

// ProxyProtocol is the wire protocol used to reach a proxy endpoint.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS5 ProxyProtocol = "socks5"
)

// ProxyEndpoint is one immutable proxy server entry in the pool.
type ProxyEndpoint struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Protocol ProxyProtocol `json:"protocol"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`
}

// ServerURL renders the endpoint as a proxy server URL without credentials.
func (p ProxyEndpoint) ServerURL() string {
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
}

// Key identifies the endpoint inside the pool.
func (p ProxyEndpoint) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// HasCredentials reports whether the proxy requires authentication.
func (p ProxyEndpoint) HasCredentials() bool {
	return p.Username != ""
}

// BrowserFingerprint is the set of client-identity signals presented to a
// remote server. Immutable for the lifetime of the session it is bound to.
type BrowserFingerprint struct {
	UserAgent      string `json:"user_agent"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	Locale         string `json:"locale"`
	Timezone       string `json:"timezone"`
	Platform       string `json:"platform"`
	WebGL          bool   `json:"webgl"`
	Canvas         bool   `json:"canvas"`
}

// MetricsSnapshot is a consistent point-in-time read of the process-wide
// acquisition counters.
type MetricsSnapshot struct {
	TotalRequests    int64     `json:"total_requests"`
	SuccessCount     int64     `json:"success_count"`
	FailureCount     int64     `json:"failure_count"`
	ChallengesSolved int64     `json:"challenges_solved"`
	ProxyFailures    int64     `json:"proxy_failures"`
	ActiveSessions   int64     `json:"active_sessions"`
	SuccessRate      float64   `json:"success_rate"`
	Timestamp        time.Time `json:"timestamp"`
}
