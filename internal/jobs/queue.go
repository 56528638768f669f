package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"receivables/internal/config"
)

// AsynqQueue enqueues tasks on Redis for the worker process.
type AsynqQueue struct {
	client            *asynq.Client
	maxRetry          int
	settlementTimeout time.Duration
	logger            zerolog.Logger
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewAsynqQueue(redisCfg config.RedisConfig, queuing config.QueuingConfig, settlementTimeout time.Duration, logger zerolog.Logger) *AsynqQueue {
	return &AsynqQueue{
		client:            asynq.NewClient(RedisOpt(redisCfg)),
		maxRetry:          queuing.MaxRetry,
		settlementTimeout: settlementTimeout,
		logger:            logger,
	}
}

func (q *AsynqQueue) EnqueueSettlement(ctx context.Context, onlinePaymentID uuid.UUID) error {
	task, err := NewSettlementTask(onlinePaymentID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueSettlement),
		asynq.MaxRetry(q.maxRetry),
		asynq.TaskID("settlement:" + onlinePaymentID.String()),
	}
	if q.settlementTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.settlementTimeout))
	}
	return q.enqueue(ctx, task, opts...)
}

func (q *AsynqQueue) EnqueueReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) error {
	task, err := NewReceiptTask(invoiceID, paymentID)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task,
		asynq.Queue(QueueReceipts),
		asynq.MaxRetry(q.maxRetry),
		asynq.TaskID("receipt:"+paymentID.String()),
	)
}

func (q *AsynqQueue) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Debug().Str("type", task.Type()).Msg("task already queued")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to enqueue %s task", task.Type())
	}
	q.logger.Debug().Str("type", task.Type()).Str("task_id", info.ID).Str("queue", info.Queue).Msg("task enqueued")
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

type pendingTask struct {
	task     *asynq.Task
	attempts int
}

// MemoryQueue keeps tasks in process until Drain runs them. It backs local
// runs without Redis and the tests.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []pendingTask
	maxRetry int
	logger   zerolog.Logger
}

func NewMemoryQueue(maxRetry int, logger zerolog.Logger) *MemoryQueue {
	return &MemoryQueue{maxRetry: maxRetry, logger: logger}
}

func (q *MemoryQueue) EnqueueSettlement(ctx context.Context, onlinePaymentID uuid.UUID) error {
	task, err := NewSettlementTask(onlinePaymentID)
	if err != nil {
		return err
	}
	q.push(pendingTask{task: task})
	return nil
}

func (q *MemoryQueue) EnqueueReceipt(ctx context.Context, invoiceID, paymentID uuid.UUID) error {
	task, err := NewReceiptTask(invoiceID, paymentID)
	if err != nil {
		return err
	}
	q.push(pendingTask{task: task})
	return nil
}

func (q *MemoryQueue) push(p pendingTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, p)
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainResult counts the outcome of one Drain.
type DrainResult struct {
	Processed int
	Failed    int
}

// Drain runs pending tasks, including the ones they enqueue, until the queue
// is empty. A failed task is retried up to maxRetry times unless it is marked
// with asynq.SkipRetry.
func (q *MemoryQueue) Drain(ctx context.Context, handler asynq.Handler) DrainResult {
	var result DrainResult
	for {
		if ctx.Err() != nil {
			return result
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return result
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := handler.ProcessTask(withAttempt(ctx, next.attempts, q.maxRetry), next.task)
		if err == nil {
			result.Processed++
			continue
		}

		next.attempts++
		if errors.Is(err, asynq.SkipRetry) || next.attempts > q.maxRetry {
			result.Failed++
			q.logger.Error().Err(err).Str("type", next.task.Type()).Int("attempts", next.attempts).Msg("task dropped")
			continue
		}
		q.push(next)
	}
}

// Run drains the queue every interval until ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, handler asynq.Handler, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if result := q.Drain(ctx, handler); result.Processed+result.Failed > 0 {
				q.logger.Debug().Int("processed", result.Processed).Int("failed", result.Failed).Msg("memory queue drained")
			}
		}
	}
}
