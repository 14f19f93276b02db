package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dsrph/payment-disbursement/internal"
	batchmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
)

// Job is one payment dispatch queued during a batch run.
type Job struct {
	PaymentID string
	BatchID   string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {

			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "payment_id", job.PaymentID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Processor fans a batch's payments out to the disbursement engine through a
// fixed worker pool. Enqueue never blocks: a full queue rejects the job and
// the payment stays PENDING until the batch is resumed.
type Processor struct {
	engine  PaymentEngineAPI
	batches RepositoryAPI
	logger  *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewProcessor(engine PaymentEngineAPI, batches RepositoryAPI, cfg internal.PaymentConfig, logger *slog.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.WorkerPoolSize
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	queueSize := cfg.JobQueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	p := &Processor{
		engine:  engine,
		batches: batches,
		logger:  logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, queueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.startWorkerPool()

	return p
}

func (p *Processor) startWorkerPool() {
	p.once.Do(func() {

		for i := 0; i < p.maxWorkers; i++ {
			worker := NewWorker(i, p.workerPool, p.logger)
			worker.Start(p.ctx, &p.wg, p.processJob)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("batch worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *Processor) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:

			select {
			case jobChannel := <-p.workerPool:

				select {
				case jobChannel <- job:

				case <-p.ctx.Done():
					p.logger.Info("dispatcher shutting down")
					return
				}
			case <-p.ctx.Done():
				p.logger.Info("dispatcher shutting down")
				return
			}
		case <-p.ctx.Done():
			p.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Enqueue hands one payment to the pool without blocking the caller.
func (p *Processor) Enqueue(job Job) error {
	select {
	case p.jobQueue <- job:
		p.logger.Debug("payment job queued",
			"payment_id", job.PaymentID,
			"batch_id", job.BatchID,
			"queue_length", len(p.jobQueue))
		return nil
	default:
		p.logger.Warn("job queue full, rejecting payment",
			"payment_id", job.PaymentID,
			"batch_id", job.BatchID,
			"queue_capacity", cap(p.jobQueue))
		return internal.NewServiceUnavailableError("payment queue full", internal.ErrCodeQueueFull)
	}
}

// processJob runs one queued payment. The batch is re-read first so a pause
// or cancel issued after enqueue is honored; skipped payments stay PENDING.
func (p *Processor) processJob(job Job) {
	b, err := p.batches.GetByID(job.BatchID)
	if err != nil {
		p.logger.Error("batch lookup failed for queued job",
			"batch_id", job.BatchID, "payment_id", job.PaymentID, "error", err)
		return
	}
	if b.Status != batchmodel.StatusProcessing {
		p.logger.Debug("skipping job, batch no longer processing",
			"batch_id", job.BatchID, "payment_id", job.PaymentID, "batch_status", b.Status)
		return
	}

	if _, err := p.engine.ProcessPayment(p.ctx, job.PaymentID); err != nil {
		p.logger.Warn("queued payment did not reach the provider",
			"payment_id", job.PaymentID, "batch_id", job.BatchID, "error", err)
	}
}

func (p *Processor) Shutdown() {
	p.logger.Info("shutting down batch processor")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("batch processor shutdown complete")
}
