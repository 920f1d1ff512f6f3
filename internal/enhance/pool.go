package enhance

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/maltedev/product-scraper/internal/models"
)

// Job carries a product through the enhancement pool. Done receives the
// enhanced (or, on failure, original) product exactly once.
type Job struct {
	Product *models.ScrapedProduct
	Done    chan *models.ScrapedProduct
}

// Pool runs enhancement on a fixed set of workers with a bounded queue so a
// slow generator cannot stall acquisition.
type Pool struct {
	enhancer *Enhancer
	jobs     chan Job
	workers  int
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPool(enhancer *Enhancer, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &Pool{
		enhancer: enhancer,
		jobs:     make(chan Job, queueSize),
		workers:  workers,
		logger:   logger.With("component", "enhance-pool"),
	}
}

// Start launches the workers. Safe to call once.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		p.logger.Info("enhancement pool started", "workers", p.workers, "queue", cap(p.jobs))
	})
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job.Done <- p.enhancer.Enhance(ctx, job.Product)
		}
	}
}

// Submit queues a product for enhancement and waits for the result. When the
// queue is full or the pool is stopped, the product comes back untouched:
// enhancement never blocks or fails acquisition.
func (p *Pool) Submit(ctx context.Context, product *models.ScrapedProduct) *models.ScrapedProduct {
	if p.stopped.Load() {
		return product
	}
	done := make(chan *models.ScrapedProduct, 1)

	select {
	case p.jobs <- Job{Product: product, Done: done}:
	default:
		p.logger.Warn("enhancement queue full, skipping", "url", product.SourceURL)
		return product
	}

	select {
	case enhanced := <-done:
		return enhanced
	case <-ctx.Done():
		return product
	}
}

// Stop shuts the workers down and waits for in-flight jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}
