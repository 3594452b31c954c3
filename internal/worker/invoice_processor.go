package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/fiscion/fiscion/internal/ocr"
)

// InvoiceStore persists processed invoices.
type InvoiceStore interface {
	Update(ctx context.Context, invoice *models.Invoice) error
	MarkFailed(ctx context.Context, id string) error
}

// ExtractionLogStore records raw extraction output for later debugging.
type ExtractionLogStore interface {
	Create(ctx context.Context, invoiceID, rawText string, entities []models.Entity) error
}

// UsageCounter tracks monthly upload usage per user.
type UsageCounter interface {
	IncrementInvoiceCount(ctx context.Context, userID string) error
}

// ExtractionJob is one queued invoice awaiting field extraction.
type ExtractionJob struct {
	InvoiceID string
	Document  ocr.Document
}

// ProcessorStatus reports current processor state.
type ProcessorStatus struct {
	IsRunning      bool
	QueueDepth     int
	ProcessedCount int
	FailedCount    int
	LastProcessed  time.Time
}

// InvoiceProcessor consumes queued extraction jobs, runs them through the
// pipeline and persists the result. Extraction failures never crash the
// worker; the row is marked failed and the loop moves on.
type InvoiceProcessor struct {
	pipeline       *ocr.Pipeline
	invoices       InvoiceStore
	extractionLogs ExtractionLogStore
	usage          UsageCounter
	retry          *RetryStrategy
	logger         *zap.Logger

	jobs           chan ExtractionJob
	concurrency    int
	processTimeout time.Duration

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      bool
	processedCount int
	failedCount    int
	lastProcessed  time.Time
}

// NewInvoiceProcessor creates a new invoice processor
func NewInvoiceProcessor(
	pipeline *ocr.Pipeline,
	invoices InvoiceStore,
	extractionLogs ExtractionLogStore,
	usage UsageCounter,
	logger *zap.Logger,
) *InvoiceProcessor {
	return &InvoiceProcessor{
		pipeline:       pipeline,
		invoices:       invoices,
		extractionLogs: extractionLogs,
		usage:          usage,
		retry:          NewRetryStrategy(),
		logger:         logger,
		jobs:           make(chan ExtractionJob, 100),
		concurrency:    2,
		processTimeout: 120 * time.Second,
	}
}

// Name implements Worker.
func (p *InvoiceProcessor) Name() string { return "invoice-processor" }

// Start launches the consumer goroutines.
func (p *InvoiceProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("processor already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consumeLoop()
	}

	p.logger.Info("InvoiceProcessor started",
		zap.Int("concurrency", p.concurrency),
		zap.Int("queue_capacity", cap(p.jobs)))
	return nil
}

// Stop drains the consumers and waits for in-flight jobs.
func (p *InvoiceProcessor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// Enqueue queues a job for processing. It fails fast when the queue is
// full so the upload handler can tell the client to retry.
func (p *InvoiceProcessor) Enqueue(job ExtractionJob) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("extraction queue full")
	}
}

// Status returns a snapshot of processor state.
func (p *InvoiceProcessor) Status() ProcessorStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProcessorStatus{
		IsRunning:      p.isRunning,
		QueueDepth:     len(p.jobs),
		ProcessedCount: p.processedCount,
		FailedCount:    p.failedCount,
		LastProcessed:  p.lastProcessed,
	}
}

func (p *InvoiceProcessor) consumeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.processJob(job)
		}
	}
}

func (p *InvoiceProcessor) processJob(job ExtractionJob) {
	ctx, cancel := context.WithTimeout(p.ctx, p.processTimeout)
	defer cancel()

	invoice, result, err := p.processWithRetry(ctx, job)
	if err != nil {
		p.logger.Error("Invoice extraction failed",
			zap.String("invoice_id", job.InvoiceID),
			zap.String("file", job.Document.FileName),
			zap.Error(err))
		if markErr := p.invoices.MarkFailed(ctx, job.InvoiceID); markErr != nil {
			p.logger.Error("Failed to mark invoice as failed",
				zap.String("invoice_id", job.InvoiceID),
				zap.Error(markErr))
		}
		p.recordOutcome(false)
		return
	}

	// The row was created at upload time; keep its identity.
	invoice.ID = job.InvoiceID

	if err := p.invoices.Update(ctx, invoice); err != nil {
		p.logger.Error("Failed to persist processed invoice",
			zap.String("invoice_id", job.InvoiceID),
			zap.Error(err))
		p.recordOutcome(false)
		return
	}

	if result != nil {
		if err := p.extractionLogs.Create(ctx, job.InvoiceID, result.Text, result.Entities); err != nil {
			p.logger.Warn("Failed to record extraction log",
				zap.String("invoice_id", job.InvoiceID),
				zap.Error(err))
		}
	}

	if err := p.usage.IncrementInvoiceCount(ctx, job.Document.UserID); err != nil {
		p.logger.Warn("Failed to increment usage counter",
			zap.String("user_id", job.Document.UserID),
			zap.Error(err))
	}

	p.logger.Info("Invoice processed",
		zap.String("invoice_id", job.InvoiceID),
		zap.String("vendor", invoice.VendorName),
		zap.Bool("needs_review", invoice.NeedsReview))
	p.recordOutcome(true)
}

// processWithRetry retries the whole pipeline run on transient errors.
// A missing country ruleset is permanent and fails immediately.
func (p *InvoiceProcessor) processWithRetry(ctx context.Context, job ExtractionJob) (*models.Invoice, *ocr.ExtractionResult, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		invoice, result, err := p.pipeline.Process(ctx, job.Document)
		if err == nil {
			return invoice, result, nil
		}
		lastErr = err

		if errors.Is(err, models.ErrUnknownCountry) || !p.retry.IsTemporaryError(err) {
			return nil, nil, err
		}

		backoff := p.retry.CalculateBackoff(attempt)
		p.logger.Warn("Transient extraction error, backing off",
			zap.String("invoice_id", job.InvoiceID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, nil, lastErr
}

func (p *InvoiceProcessor) recordOutcome(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.processedCount++
	} else {
		p.failedCount++
	}
	p.lastProcessed = time.Now()
}
