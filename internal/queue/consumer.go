package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"team-activity-pipeline/internal/logging"
	"team-activity-pipeline/internal/redis"
)

// JobHandler processes one job. Errors that implement
// RetryDelay() time.Duration re-queue the job with that delay.
type JobHandler interface {
	HandleJob(ctx context.Context, job *Job) error
}

// ConsumerOptions tunes polling, retries and unique-job locking
type ConsumerOptions struct {
	Concurrency       int
	PollTimeout       time.Duration
	RetryBackoff      time.Duration
	PromotionInterval time.Duration
	// LockTTL must outlive the longest job holding a unique key
	LockTTL        time.Duration
	LockRetryDelay time.Duration
}

// Consumer handles consuming jobs from Redis
type Consumer struct {
	queue    *Queue
	handler  JobHandler
	opts     ConsumerOptions
	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewConsumer creates a consumer
func NewConsumer(redisClient *redis.Client, queueName string, handler JobHandler, opts ConsumerOptions) *Consumer {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.PromotionInterval <= 0 {
		opts.PromotionInterval = time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	if opts.LockRetryDelay <= 0 {
		opts.LockRetryDelay = 30 * time.Second
	}
	return &Consumer{
		queue:    NewQueue(redisClient, queueName),
		handler:  handler,
		opts:     opts,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins consuming jobs (runs goroutines)
func (c *Consumer) Start(ctx context.Context) error {
	if c.opts.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	slog.Info("Starting consumer", "workers", c.opts.Concurrency, "queue", c.queue.queueName)

	c.wg.Add(1)
	go c.promoter(ctx)

	for i := 0; i < c.opts.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	return nil
}

func (c *Consumer) promoter(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PromotionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.queue.PromoteDue(ctx, c.now())
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("Promoting delayed jobs failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Debug("Promoted delayed jobs", "count", n)
			}
		}
	}
}

// worker is a goroutine that processes jobs from the queue
func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	logger := slog.With("worker", id)
	logger.Info("Worker started")

	for {
		select {
		case <-c.stopChan:
			logger.Info("Worker stopping")
			return
		case <-ctx.Done():
			logger.Info("Worker context cancelled")
			return
		default:
			job, err := c.queue.Pop(ctx, c.opts.PollTimeout)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("Error popping job", "error", err)
				}
				continue
			}
			if job == nil {
				continue
			}
			c.process(ctx, job)
		}
	}
}

// process runs one job and applies the retry policy to its outcome
func (c *Consumer) process(ctx context.Context, job *Job) {
	logger := slog.With("jobId", job.ID, "jobType", job.Type)

	if job.UniqueKey != "" {
		acquired, err := c.queue.AcquireLock(ctx, job.UniqueKey, job.ID, c.opts.LockTTL)
		if err != nil {
			logger.Error("Failed to acquire job lock", "key", job.UniqueKey, "error", err)
			c.requeue(ctx, job, c.opts.LockRetryDelay)
			return
		}
		if !acquired {
			logger.Debug("Job lock held elsewhere, deferring", "key", job.UniqueKey)
			c.requeue(ctx, job, c.opts.LockRetryDelay)
			return
		}
		defer func() {
			// the job context may already be cancelled on shutdown
			if err := c.queue.ReleaseLock(context.WithoutCancel(ctx), job.UniqueKey, job.ID); err != nil {
				logger.Error("Failed to release job lock", "key", job.UniqueKey, "error", err)
			}
		}()
	}

	logger.Info("Processing job", "retries", job.Retries)
	start := c.now()

	err := c.handle(ctx, job)
	if err == nil {
		logger.Info("Completed job", "duration", c.now().Sub(start))
		return
	}

	var delayed interface{ RetryDelay() time.Duration }
	switch {
	case errors.As(err, &delayed) && !IsPermanent(err):
		logger.Warn("Job asked to be retried", "delay", delayed.RetryDelay(), "error", err)
		c.requeue(ctx, job, delayed.RetryDelay())
	case !IsPermanent(err) && job.Retries < job.MaxRetries:
		job.Retries++
		delay := c.opts.RetryBackoff * time.Duration(1<<(job.Retries-1))
		logger.Warn("Job failed, retrying", "attempt", job.Retries, "delay", delay, "error", err)
		c.requeue(ctx, job, delay)
	default:
		logger.Error("Job failed permanently", "error", err)
		if err := c.queue.PushDead(context.WithoutCancel(ctx), job); err != nil {
			logger.Error("Failed to park dead job", "error", err)
		}
		logging.CaptureError(err, map[string]string{"job_type": string(job.Type), "job_id": job.ID})
	}
}

// handle invokes the handler, turning a panic into a permanent failure
func (c *Consumer) handle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job handler panicked", "jobId", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = Permanent(fmt.Errorf("panic: %v", r))
		}
	}()
	return c.handler.HandleJob(ctx, job)
}

func (c *Consumer) requeue(ctx context.Context, job *Job, delay time.Duration) {
	if err := c.queue.PushDelayed(context.WithoutCancel(ctx), job, delay); err != nil {
		slog.Error("Failed to requeue job", "jobId", job.ID, "error", err)
		logging.CaptureError(err, map[string]string{"job_type": string(job.Type), "job_id": job.ID})
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	slog.Info("Stopping consumer...")
	close(c.stopChan)
	c.wg.Wait()
	slog.Info("Consumer stopped")
}
