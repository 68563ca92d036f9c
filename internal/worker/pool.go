package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueStock = "jobs:stock"

	JobReconcileAggregate = "reconcile_aggregate"
	JobRecomputeOrder     = "recompute_order"

	MaxJobAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReconcilePayload targets one box; an empty box means every catalog entry.
type ReconcilePayload struct {
	BoxBarcode string `json:"box_barcode,omitempty"`
}

type RecomputePayload struct {
	OrderID string `json:"order_id"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueReconcile pushes an aggregate reconcile job.
func (d *Dispatcher) EnqueueReconcile(ctx context.Context, box string) error {
	return d.enqueue(ctx, QueueStock, JobReconcileAggregate, ReconcilePayload{BoxBarcode: box})
}

// EnqueueRecompute pushes a loan order status recompute job.
func (d *Dispatcher) EnqueueRecompute(ctx context.Context, orderID string) error {
	if orderID == "" {
		return apierror.InvalidInput("order id is required")
	}
	return d.enqueue(ctx, QueueStock, JobRecomputeOrder, RecomputePayload{OrderID: orderID})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// ── Processing ────────────────────────────────────────────────────────────────

// StockJobs is the part of the stock service the worker drives.
type StockJobs interface {
	SyncAggregate(ctx context.Context, box string) (*dto.StockSnapshot, error)
	ReconcileAll(ctx context.Context) (*dto.ReconcileReport, error)
}

// OrderJobs is the part of the loan order service the worker drives.
type OrderJobs interface {
	RecomputeStatus(ctx context.Context, orderID string) (string, error)
}

// Processor executes jobs popped from QueueStock.
type Processor struct {
	rdb     *redis.Client
	stock   StockJobs
	orders  OrderJobs
	metrics *metrics.Metrics
	backoff time.Duration
}

func NewProcessor(rdb *redis.Client, stock StockJobs, orders OrderJobs, m *metrics.Metrics) *Processor {
	return &Processor{rdb: rdb, stock: stock, orders: orders, metrics: m, backoff: time.Second}
}

// StartWorkerPool launches numWorkers goroutines consuming the stock queue.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, p *Processor) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, p)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, p *Processor) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, QueueStock).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			p.Process(ctx, result[0], []byte(result[1]))
		}
	}
}

// Process runs one raw job with retries. Jobs that still fail, or that can
// never succeed, go to the dead letter queue.
func (p *Processor) Process(ctx context.Context, queue string, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, queue, "unknown", raw, "malformed job: "+err.Error(), 0)
		p.metrics.RecordJob("unknown", false)
		return
	}

	attempts := 0
	err := withRetry(ctx, MaxJobAttempts, p.backoff, func(attempt int) error {
		attempts = attempt + 1
		return p.handle(ctx, job)
	})
	p.metrics.RecordJob(job.Type, err == nil)
	if err != nil {
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, err.Error(), attempts)
		return
	}
	log.Debug().Str("type", job.Type).Int("attempts", attempts).Msg("job done")
}

func (p *Processor) handle(ctx context.Context, job Job) error {
	switch job.Type {
	case JobReconcileAggregate:
		var pl ReconcilePayload
		if err := json.Unmarshal(job.Payload, &pl); err != nil {
			return permanent(err)
		}
		if pl.BoxBarcode == "" {
			report, err := p.stock.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("checked", report.Checked).Int("synced", report.Synced).
				Strs("drift", report.Drift).Msg("reconcile job finished")
			return nil
		}
		_, err := p.stock.SyncAggregate(ctx, pl.BoxBarcode)
		return err
	case JobRecomputeOrder:
		var pl RecomputePayload
		if err := json.Unmarshal(job.Payload, &pl); err != nil {
			return permanent(err)
		}
		_, err := p.orders.RecomputeStatus(ctx, pl.OrderID)
		return err
	}
	return permanent(fmt.Errorf("unknown job type %q", job.Type))
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func retryable(err error) bool {
	if _, ok := err.(permanentError); ok {
		return false
	}
	switch apierror.KindOf(err) {
	case apierror.KindInvalidInput, apierror.KindNotFound, apierror.KindInconsistentState:
		return false
	}
	return true
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// (base, 2*base, ...). It stops early on errors retrying cannot fix.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			if !retryable(err) {
				return err
			}
			continue
		}
		return nil
	}
	return lastErr
}
