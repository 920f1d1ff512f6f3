package session

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maltedev/product-scraper/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	solved atomic.Int64
}

func (r *countingRecorder) ChallengeSolved() { r.solved.Add(1) }

func newTestNavigator(cfg NavigatorConfig, minDelay, maxDelay time.Duration, recorder ChallengeRecorder) *Navigator {
	limiter := ratelimit.NewAdaptive(minDelay, maxDelay, rand.New(rand.NewSource(1)))
	return NewNavigator(cfg, limiter, recorder, testLogger())
}

func TestVisitReturnsContent(t *testing.T) {
	handle := &fakeHandle{content: "<html><body>product</body></html>"}
	sess := &Session{ID: "s1", Handle: handle}

	n := newTestNavigator(NavigatorConfig{RequestTimeout: time.Second}, 0, 0, nil)
	content, err := n.Visit(context.Background(), sess, "https://example.com/p")
	require.NoError(t, err)
	assert.Contains(t, content, "product")
	assert.Equal(t, 1, sess.RequestCount())
}

func TestVisitPropagatesNavigationError(t *testing.T) {
	handle := &fakeHandle{navErr: errors.New("net::ERR_TIMED_OUT")}
	sess := &Session{ID: "s1", Handle: handle}

	n := newTestNavigator(NavigatorConfig{RequestTimeout: time.Second}, 0, 0, nil)
	_, err := n.Visit(context.Background(), sess, "https://example.com/p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_TIMED_OUT")
}

func TestVisitRecordsSolvedChallenge(t *testing.T) {
	recorder := &countingRecorder{}
	handle := &fakeHandle{content: "<html></html>", challenge: true}
	sess := &Session{ID: "s1", Handle: handle}

	n := newTestNavigator(NavigatorConfig{
		RequestTimeout: time.Second,
		SolveChallenge: true,
		ChallengeWait:  time.Second,
	}, 0, 0, recorder)

	_, err := n.Visit(context.Background(), sess, "https://example.com/p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), recorder.solved.Load())
}

func TestVisitSkipsChallengeHandlingWhenDisabled(t *testing.T) {
	recorder := &countingRecorder{}
	handle := &fakeHandle{content: "<html></html>", challenge: true}
	sess := &Session{ID: "s1", Handle: handle}

	n := newTestNavigator(NavigatorConfig{RequestTimeout: time.Second}, 0, 0, recorder)
	_, err := n.Visit(context.Background(), sess, "https://example.com/p")
	require.NoError(t, err)
	assert.Zero(t, recorder.solved.Load())
}

func TestVisitDelayRespectsCancellation(t *testing.T) {
	handle := &fakeHandle{content: "<html></html>"}
	sess := &Session{ID: "s1", Handle: handle}

	n := newTestNavigator(NavigatorConfig{RequestTimeout: time.Second}, time.Minute, 2*time.Minute, nil)

	// Prime the limiter so the second visit has to wait out the spacing.
	_, err := n.Visit(context.Background(), sess, "https://example.com/p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = n.Visit(ctx, sess, "https://example.com/p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, sess.RequestCount(), "cancelled visit never navigates")
}
