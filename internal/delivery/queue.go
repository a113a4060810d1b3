// Package delivery runs the durable outbound message pipeline: jobs persist
// in storage, a worker pool drains them through the WhatsApp session under a
// rate limit, and failed sends retry with exponential backoff.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

// JobStore persists delivery jobs and their transition log.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.DeliveryJob) error
	GetJob(ctx context.Context, id string) (*model.DeliveryJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, attempts int, errMsg string, metadata map[string]string) error
	ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]model.DeliveryJob, error)
	PruneJobs(ctx context.Context, sentBefore time.Time, maxSent int, failedBefore time.Time) (int64, error)
}

// Sender delivers a single message over the chat transport.
type Sender interface {
	SendMessage(ctx context.Context, recipient, text string) error
}

// Config tunes the delivery pipeline.
type Config struct {
	Concurrency    int
	RatePerMinute  int
	MaxAttempts    int
	InitialBackoff time.Duration
	SentRetention  time.Duration
	FailRetention  time.Duration
	MaxSentKept    int
	JanitorPeriod  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 60
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.SentRetention <= 0 {
		c.SentRetention = time.Hour
	}
	if c.FailRetention <= 0 {
		c.FailRetention = 24 * time.Hour
	}
	if c.MaxSentKept <= 0 {
		c.MaxSentKept = 1000
	}
	if c.JanitorPeriod <= 0 {
		c.JanitorPeriod = 10 * time.Minute
	}
}

// Request is an outbound message to enqueue.
type Request struct {
	UserID     string
	Recipient  string
	Body       string
	TemplateID string
}

// BulkResult reports the outcome of one item in an EnqueueBulk call.
type BulkResult struct {
	JobID     string `json:"id,omitempty"`
	Recipient string `json:"phoneNumber"`
	Accepted  bool   `json:"queued"`
	Error     string `json:"error,omitempty"`
}

// Queue is the durable delivery pipeline. Jobs are persisted before they are
// dispatched, so messages accepted before a crash are recovered on startup.
type Queue struct {
	store   JobStore
	sender  Sender
	logger  *slog.Logger
	cfg     Config
	limiter *rateLimiter
	dedup   *errorDedup

	jobs   chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool

	// sleep is swappable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewQueue creates a delivery queue. Call Start before enqueueing.
func NewQueue(store JobStore, sender Sender, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Queue{
		store:  store,
		sender: sender,
		logger: logger,
		cfg:    cfg,
		dedup:  newErrorDedup(),
		jobs:   make(chan string, 1024),
		sleep:  sleepCtx,
	}
}

// Start launches the worker pool and the retention janitor, then requeues
// any jobs that were accepted but not finished before the last shutdown.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue already started or closed")
	}
	q.started = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	q.limiter = newRateLimiter(q.cfg.RatePerMinute)

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}

	q.wg.Add(1)
	go q.janitor(runCtx)

	if err := q.recover(runCtx); err != nil {
		return fmt.Errorf("failed to recover unfinished jobs: %w", err)
	}

	return nil
}

// recover requeues jobs left in a non-terminal state by a previous run.
func (q *Queue) recover(ctx context.Context) error {
	unfinished, err := q.store.ListJobsByStatus(ctx, model.StatusPending, model.StatusQueued)
	if err != nil {
		return err
	}

	for i := range unfinished {
		select {
		case q.jobs <- unfinished[i].ID:
		default:
			q.logger.Warn("dispatch buffer full during recovery, job waits for next restart", "job_id", unfinished[i].ID)
		}
	}

	if len(unfinished) > 0 {
		q.logger.Info("requeued unfinished delivery jobs", "count", len(unfinished))
	}
	return nil
}

// Enqueue persists a new job and hands it to the worker pool. The returned
// job is in PENDING status; delivery happens asynchronously.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*model.DeliveryJob, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, common.ErrQueueClosed
	}
	q.mu.Unlock()

	if req.Recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if req.Body == "" {
		return nil, fmt.Errorf("message body is required")
	}

	job := &model.DeliveryJob{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Recipient:  req.Recipient,
		Body:       req.Body,
		TemplateID: req.TemplateID,
		Status:     model.StatusPending,
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	metricEnqueued.Inc()

	select {
	case q.jobs <- job.ID:
	default:
		// Buffer full; the job is durable and recovery or the janitor
		// cycle picks it up on restart.
		q.logger.Warn("dispatch buffer full, job persisted but not dispatched", "job_id", job.ID)
	}

	return job, nil
}

// EnqueueBulk enqueues many messages, reporting per-item outcomes. One bad
// item does not stop the rest.
func (q *Queue) EnqueueBulk(ctx context.Context, reqs []Request) []BulkResult {
	results := make([]BulkResult, 0, len(reqs))
	for _, req := range reqs {
		job, err := q.Enqueue(ctx, req)
		if err != nil {
			results = append(results, BulkResult{
				Recipient: req.Recipient,
				Accepted:  false,
				Error:     err.Error(),
			})
			continue
		}
		results = append(results, BulkResult{
			JobID:     job.ID,
			Recipient: req.Recipient,
			Accepted:  true,
		})
	}
	return results
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.jobs:
			q.process(ctx, jobID)
		}
	}
}

// process drives one job through its delivery attempts. Every status
// transition is recorded in the delivery log.
func (q *Queue) process(ctx context.Context, jobID string) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		q.logger.Error("failed to load job", "job_id", jobID, "error", err)
		return
	}
	if job.Terminal() {
		return
	}

	backoff := q.cfg.InitialBackoff
	attempts := job.AttemptsMade

	for attempts < q.cfg.MaxAttempts {
		attempts++

		if err := q.transition(ctx, job.ID, model.StatusQueued, attempts, "", map[string]string{
			"attempt": fmt.Sprintf("%d", attempts),
		}); err != nil {
			q.logger.Error("failed to record attempt", "job_id", job.ID, "error", err)
			return
		}

		if err := q.limiter.wait(ctx); err != nil {
			return
		}

		sendErr := q.sender.SendMessage(ctx, job.Recipient, job.Body)
		if sendErr == nil {
			if err := q.transition(ctx, job.ID, model.StatusSent, attempts, "", nil); err != nil {
				q.logger.Error("message sent but status update failed", "job_id", job.ID, "error", err)
			}
			metricSent.Inc()
			return
		}

		final := attempts >= q.cfg.MaxAttempts || !retryable(sendErr)

		if err := q.transition(ctx, job.ID, model.StatusFailed, attempts, sendErr.Error(), map[string]string{
			"attempt": fmt.Sprintf("%d", attempts),
			"final":   fmt.Sprintf("%t", final),
		}); err != nil {
			q.logger.Error("failed to record failure", "job_id", job.ID, "error", err)
			return
		}

		if final {
			metricFailed.Inc()
			q.logFailure(job, attempts, sendErr)
			return
		}

		metricRetried.Inc()
		if !q.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
	}
}

func (q *Queue) transition(ctx context.Context, jobID string, status model.JobStatus, attempts int, errMsg string, metadata map[string]string) error {
	return q.store.UpdateJobStatus(ctx, jobID, status, attempts, errMsg, metadata)
}

// retryable reports whether a send error is worth retrying. A logged-out
// session needs manual re-pairing, so retries cannot help.
func retryable(err error) bool {
	if errors.Is(err, common.ErrLoggedOut) {
		return false
	}
	return true
}

// logFailure logs a terminal delivery failure, collapsing repeats of the
// same error so a dead session does not flood the log.
func (q *Queue) logFailure(job *model.DeliveryJob, attempts int, err error) {
	should, count := q.dedup.shouldLog(err.Error())
	if !should {
		return
	}
	q.logger.Error("delivery failed permanently",
		"job_id", job.ID,
		"recipient", job.Recipient,
		"attempts", attempts,
		"occurrences", count,
		"error", err,
	)
}

// janitor prunes delivered and dead jobs past their retention windows.
func (q *Queue) janitor(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.JanitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			pruned, err := q.store.PruneJobs(ctx,
				now.Add(-q.cfg.SentRetention),
				q.cfg.MaxSentKept,
				now.Add(-q.cfg.FailRetention),
			)
			if err != nil {
				q.logger.Error("retention prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				q.logger.Debug("pruned delivered jobs", "count", pruned)
			}
		}
	}
}

// Close stops accepting new jobs and waits for in-flight workers to finish
// their current step.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	if q.limiter != nil {
		q.limiter.stop()
	}
	return nil
}

// sleepCtx waits for d, returning false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
