package worker

import (
	"context"
	"sync"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/processing"
	"github.com/mlindner/invoicescan/internal/repository"
	"go.uber.org/zap"
)

// BatchProcessor drains the batch queue in the background. Entries are
// claimed one at a time so multiple instances never process the same
// file twice.
type BatchProcessor struct {
	pollInterval time.Duration
	batches      *repository.BatchRepository
	processor    *processing.Processor
	retry        *RetryStrategy
	logger       *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	processed int
	failed    int
}

func NewBatchProcessor(
	batches *repository.BatchRepository,
	processor *processing.Processor,
	pollInterval time.Duration,
	logger *zap.Logger,
) *BatchProcessor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &BatchProcessor{
		pollInterval: pollInterval,
		batches:      batches,
		processor:    processor,
		retry:        NewRetryStrategy(),
		logger:       logger,
	}
}

func (p *BatchProcessor) Name() string { return "batch-processor" }

// Start launches the poll loop. It runs until Stop or context cancel.
func (p *BatchProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

// Stop cancels the loop and waits for the in-flight entry to finish.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *BatchProcessor) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes queue entries until the queue is empty or the context
// is cancelled.
func (p *BatchProcessor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		entry, err := p.batches.ClaimNextPending(ctx)
		if err != nil {
			p.logger.Error("failed to claim batch entry", zap.Error(err))
			return
		}
		if entry == nil {
			return
		}
		p.handle(ctx, entry)
	}
}

func (p *BatchProcessor) handle(ctx context.Context, entry *entity.BatchEntry) {
	var res *processing.ProcessResult
	var err error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		res, err = p.processor.ProcessFile(ctx, entry.FilePath, "batch_upload", entry.BatchID, entry.ID)
		if err == nil {
			break
		}
		p.logger.Warn("batch entry processing failed",
			zap.String("filename", entry.Filename),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < p.retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retry.Backoff(attempt)):
			}
		}
	}

	switch {
	case err != nil:
		p.failed++
		p.setStatus(ctx, entry.ID, entity.BatchStatusFailed)
	case res.Duplicate:
		p.processed++
		p.setStatus(ctx, entry.ID, entity.BatchStatusDuplicate)
	default:
		// ProcessFile already moved the entry to pending_validation.
		p.processed++
	}
}

func (p *BatchProcessor) setStatus(ctx context.Context, id int64, status string) {
	if err := p.batches.SetStatus(ctx, id, status); err != nil {
		p.logger.Error("failed to update batch entry status",
			zap.Int64("id", id), zap.Error(err))
	}
}
