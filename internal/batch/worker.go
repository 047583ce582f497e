package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/metrics"
)

// Processor is satisfied by *Controller.
type Processor interface {
	Process(ctx context.Context, batchID uuid.UUID) error
}

// Pool drains the priority queue with a fixed number of workers.
type Pool struct {
	proc    Processor
	queue   *PriorityQueue
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	timeout time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type PoolOption func(*Pool)

func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithProcessTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

func NewPool(proc Processor, queue *PriorityQueue, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		proc:    proc,
		queue:   queue,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers once. They stop when ctx is done or on Shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run(ctx, i+1)
		}
	})
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	p.logger.Info("worker started", "worker_id", workerID)
	defer p.logger.Info("worker stopped", "worker_id", workerID)

	for {
		item, err := p.queue.Wait(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth(p.queue.Len())

		// in-flight batches finish even while shutting down
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		err = p.proc.Process(pctx, item.BatchID)
		cancel()

		switch {
		case err == nil:
			p.logger.Info("batch processed", "worker_id", workerID, "batch_id", item.BatchID, "priority", item.Priority)
		case errors.Is(err, common.ErrConflict), errors.Is(err, common.ErrNotFound):
			p.logger.Warn("batch skipped", "worker_id", workerID, "batch_id", item.BatchID, "error", err)
		default:
			p.logger.Error("processing failed", "worker_id", workerID, "batch_id", item.BatchID, "error", err)
		}
	}
}

// Submit queues a batch for the workers.
func (p *Pool) Submit(batchID uuid.UUID, priority int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: queue is shutting down", "batch_id", batchID)
		return common.NewAppError("UNAVAILABLE", "batch queue is shutting down", common.ErrConflict)
	}
	p.queue.Enqueue(batchID, priority)
	p.metrics.QueueDepth(p.queue.Len())
	p.logger.Info("queued batch for processing", "batch_id", batchID, "priority", priority)
	return nil
}

// Shutdown stops accepting work and waits for running batches, or for ctx.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("workers drained, shutdown complete", "pending", p.queue.Len())
	}
}
