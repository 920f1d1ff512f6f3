package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/queue"
	"github.com/maltedev/product-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeAcquirer) Acquire(ctx context.Context, url string) (*models.ScrapingResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail {
		return &models.ScrapingResult{
			URL:       url,
			Status:    models.StatusFailed,
			Error:     "extraction_empty",
			ScrapedAt: time.Now(),
		}, scraper.ExtractionEmptyError{URL: url}
	}

	product := models.NewProduct(url, "generic")
	product.Title = "API Test Product"
	return &models.ScrapingResult{
		URL:       url,
		Status:    models.StatusSuccess,
		Product:   product,
		ScrapedAt: time.Now(),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T, acquirer Acquirer) (*httptest.Server, *JobManager) {
	t.Helper()

	q := queue.NewInMemoryQueue()
	jobs := NewJobManager(acquirer, q, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	jobs.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Close()
		jobs.Wait()
	})

	collector := metrics.NewCollector()
	handlers := NewHandlers(acquirer, jobs, collector, testLogger())
	server := httptest.NewServer(NewRouter(handlers, collector))
	t.Cleanup(server.Close)

	return server, jobs
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func TestScrapeEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	resp := postJSON(t, server.URL+"/api/v1/scrape", ScrapeRequest{URL: "https://example.com/p"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.ScrapingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, models.StatusSuccess, result.Status)
	require.NotNil(t, result.Product)
	assert.Equal(t, "API Test Product", result.Product.Title)
}

func TestScrapeEndpointReturnsFailedResult(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{fail: true})

	resp := postJSON(t, server.URL+"/api/v1/scrape", ScrapeRequest{URL: "https://example.com/p"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "failed acquisitions are results, not HTTP errors")

	var result models.ScrapingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestScrapeEndpointRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{{{"},
		{"missing url", `{}`},
		{"relative url", `{"url":"/products/1"}`},
		{"unsupported scheme", `{"url":"ftp://example.com/p"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/api/v1/scrape", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	resp, err := http.Get(server.URL + "/api/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot models.MetricsSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.False(t, snapshot.Timestamp.IsZero())
}

func TestPrometheusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestJobLifecycle(t *testing.T) {
	server, jobs := newTestServer(t, &fakeAcquirer{})

	resp := postJSON(t, server.URL+"/api/v1/jobs", CreateJobRequest{URL: "https://example.com/p"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created JobRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, JobPending, created.Status)

	// The single worker should finish the job shortly.
	require.Eventually(t, func() bool {
		record, err := jobs.GetJob(created.ID)
		return err == nil && record.Status == JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	getResp, err := http.Get(server.URL + "/api/v1/jobs/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched JobRecord
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	assert.Equal(t, JobCompleted, fetched.Status)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, models.StatusSuccess, fetched.Result.Status)
}

func TestGetUnknownJob(t *testing.T) {
	server, _ := newTestServer(t, &fakeAcquirer{})

	resp, err := http.Get(server.URL + "/api/v1/jobs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	server, jobs := newTestServer(t, &fakeAcquirer{})

	_, err := jobs.CreateJob("https://example.com/a", 0)
	require.NoError(t, err)
	_, err = jobs.CreateJob("https://example.com/b", 0)
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/api/v1/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []JobRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Len(t, records, 2)
}

func TestFailedJobMarkedFailed(t *testing.T) {
	_, jobs := newTestServer(t, &fakeAcquirer{fail: true})

	record, err := jobs.CreateJob("https://example.com/p", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := jobs.GetJob(record.ID)
		return err == nil && got.Status == JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := jobs.GetJob(record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, models.StatusFailed, got.Result.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestJobManagerUnknownJob(t *testing.T) {
	jobs := NewJobManager(&fakeAcquirer{}, queue.NewInMemoryQueue(), 1, testLogger())
	_, err := jobs.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
