package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/product-scraper/internal/ratelimit"
)

// NavigatorConfig controls navigation timeouts and challenge handling.
type NavigatorConfig struct {
	RequestTimeout time.Duration
	SolveChallenge bool
	ChallengeWait  time.Duration
}

// ChallengeRecorder receives a callback for every challenge cleared during
// navigation.
type ChallengeRecorder interface {
	ChallengeSolved()
}

// Navigator drives a session to a page: it paces the request through the
// rate limiter, navigates, and clears anti-bot challenges when configured
// to. A failed challenge attempt is logged, never fatal; the caller decides
// based on what extraction finds.
type Navigator struct {
	cfg      NavigatorConfig
	limiter  ratelimit.Limiter
	recorder ChallengeRecorder
	logger   *slog.Logger
}

func NewNavigator(cfg NavigatorConfig, limiter ratelimit.Limiter, recorder ChallengeRecorder, logger *slog.Logger) *Navigator {
	return &Navigator{
		cfg:      cfg,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger.With("component", "navigator"),
	}
}

// Visit loads url in the session and returns the rendered page content.
func (n *Navigator) Visit(ctx context.Context, sess *Session, url string) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", err
	}

	sess.RecordRequest()
	if err := sess.Handle.Navigate(ctx, url, n.cfg.RequestTimeout); err != nil {
		n.limiter.RecordError()
		return "", fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if n.cfg.SolveChallenge {
		solved, err := sess.Handle.AttemptChallengeSolve(ctx, n.cfg.ChallengeWait)
		if err != nil {
			n.logger.Warn("challenge handling failed", "session_id", sess.ID, "url", url, "error", err)
			n.limiter.RecordError()
		} else if solved {
			n.logger.Info("challenge cleared", "session_id", sess.ID, "url", url)
			if n.recorder != nil {
				n.recorder.ChallengeSolved()
			}
		}
	}

	content, err := sess.Handle.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	n.limiter.RecordSuccess()
	return content, nil
}
