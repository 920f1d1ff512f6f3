package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/queue"
)

// Acquirer runs the acquisition pipeline for one URL.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*models.ScrapingResult, error)
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobRecord tracks one queued acquisition through its lifecycle.
type JobRecord struct {
	ID         string                 `json:"id"`
	URL        string                 `json:"url"`
	Status     JobStatus              `json:"status"`
	Result     *models.ScrapingResult `json:"result,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

var ErrJobNotFound = errors.New("job not found")

// JobManager queues acquisition jobs and runs them on a fixed set of workers.
// Records are kept in memory for the life of the process.
type JobManager struct {
	acquirer Acquirer
	queue    queue.Queue
	workers  int
	logger   *slog.Logger

	mu      sync.RWMutex
	records map[string]*JobRecord
	wg      sync.WaitGroup
}

func NewJobManager(acquirer Acquirer, q queue.Queue, workers int, logger *slog.Logger) *JobManager {
	if workers < 1 {
		workers = 1
	}
	return &JobManager{
		acquirer: acquirer,
		queue:    q,
		workers:  workers,
		logger:   logger.With("component", "jobs"),
		records:  make(map[string]*JobRecord),
	}
}

// CreateJob enqueues a URL for background acquisition.
func (m *JobManager) CreateJob(url string, priority int) (*JobRecord, error) {
	record := &JobRecord{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    JobPending,
		CreatedAt: time.Now(),
	}

	if err := m.queue.Push(&queue.Job{
		ID:        record.ID,
		URL:       url,
		Priority:  priority,
		CreatedAt: record.CreatedAt,
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()

	m.logger.Info("job queued", "job_id", record.ID, "url", url)
	return record, nil
}

// GetJob returns a copy of the record for id.
func (m *JobManager) GetJob(id string) (*JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

// ListJobs returns copies of all records, newest first.
func (m *JobManager) ListJobs() []*JobRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*JobRecord, 0, len(m.records))
	for _, record := range m.records {
		snapshot := *record
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// Start launches the workers. They exit when ctx ends or the queue closes.
func (m *JobManager) Start(ctx context.Context) {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.logger.Info("job workers started", "workers", m.workers)
}

// Wait blocks until all workers have exited.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		job, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			m.logger.Error("failed to pop job", "error", err)
			continue
		}
		m.run(ctx, job)
	}
}

func (m *JobManager) run(ctx context.Context, job *queue.Job) {
	now := time.Now()
	m.update(job.ID, func(r *JobRecord) {
		r.Status = JobRunning
		r.StartedAt = &now
	})

	result, err := m.acquirer.Acquire(ctx, job.URL)

	finished := time.Now()
	m.update(job.ID, func(r *JobRecord) {
		r.Result = result
		r.FinishedAt = &finished
		if err != nil {
			r.Status = JobFailed
		} else {
			r.Status = JobCompleted
		}
	})
}

func (m *JobManager) update(id string, fn func(*JobRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		fn(record)
	}
}
