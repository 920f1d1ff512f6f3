package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-scraper/internal/automation"
	"github.com/maltedev/product-scraper/internal/fingerprint"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/proxy"
)

// Session is one isolated browsing context bound to a fingerprint and,
// optionally, a proxy endpoint. A session is owned by a single caller at a
// time.
type Session struct {
	ID          string
	Fingerprint models.BrowserFingerprint
	Proxy       *models.ProxyEndpoint
	Handle      automation.Handle
	CreatedAt   time.Time

	mu           sync.Mutex
	requestCount int
	closed       bool
}

// RecordRequest bumps the session's request counter.
func (s *Session) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
}

// RequestCount returns how many navigations the session has performed.
func (s *Session) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

// Config controls session creation.
type Config struct {
	MaxConcurrent        int
	Headless             bool
	RandomizeFingerprint bool
	ProxyRotation        bool
}

// Manager creates and tracks sessions, enforcing the concurrency ceiling.
// When the ceiling is reached, CreateSession blocks until a slot frees up or
// the caller's context is cancelled; it never fails because of load.
type Manager struct {
	cfg          Config
	backend      automation.Backend
	fingerprints *fingerprint.Generator
	proxies      *proxy.Pool
	logger       *slog.Logger

	slots chan struct{}

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config, backend automation.Backend, fingerprints *fingerprint.Generator, proxies *proxy.Pool, logger *slog.Logger) *Manager {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Manager{
		cfg:          cfg,
		backend:      backend,
		fingerprints: fingerprints,
		proxies:      proxies,
		logger:       logger.With("component", "session"),
		slots:        make(chan struct{}, cfg.MaxConcurrent),
		sessions:     make(map[string]*Session),
	}
}

// CreateSession opens a new session with a fresh fingerprint and a proxy from
// the pool. Blocks while the concurrency ceiling is reached.
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sess, err := m.open(ctx)
	if err != nil {
		<-m.slots
		return nil, err
	}
	return sess, nil
}

func (m *Manager) open(ctx context.Context) (*Session, error) {
	fp := fingerprint.Default()
	if m.cfg.RandomizeFingerprint {
		fp = m.fingerprints.Generate()
	}

	var endpoint *models.ProxyEndpoint
	if m.cfg.ProxyRotation {
		if ep, ok := m.proxies.SelectRandom(); ok {
			endpoint = &ep
		}
	}

	handle, err := m.backend.Open(ctx, automation.OpenOptions{
		Headless: m.cfg.Headless,
		Proxy:    endpoint,
	})
	if err != nil {
		if endpoint != nil {
			m.proxies.ReportFailure(*endpoint)
		}
		return nil, fmt.Errorf("failed to open automation handle: %w", err)
	}

	if err := handle.ApplyFingerprint(fp); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to apply fingerprint: %w", err)
	}
	if endpoint != nil && endpoint.HasCredentials() {
		if err := handle.AuthenticateProxy(endpoint.Username, endpoint.Password); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to authenticate proxy: %w", err)
		}
	}

	sess := &Session{
		ID:          uuid.New().String(),
		Fingerprint: fp,
		Proxy:       endpoint,
		Handle:      handle,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", sess.ID, "proxy", endpoint != nil)
	return sess, nil
}

// GetSession returns a tracked session by id.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// ActiveCount returns the number of currently open sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseSession tears down a session and frees its concurrency slot.
// Idempotent: closing an already-closed or unknown session is a no-op.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	sess.mu.Lock()
	alreadyClosed := sess.closed
	sess.closed = true
	sess.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	err := sess.Handle.Close()
	<-m.slots

	if err != nil {
		m.logger.Warn("session close reported error", "session_id", id, "error", err)
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}
	m.logger.Debug("session closed", "session_id", id, "requests", sess.RequestCount())
	return nil
}

// CloseAll closes every tracked session. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.CloseSession(id); err != nil {
			m.logger.Warn("failed to close session during shutdown", "session_id", id, "error", err)
		}
	}
}
