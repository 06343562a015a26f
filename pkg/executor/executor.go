// Package executor drives optimized batches of tuple mutations through the
// remote write API in bounded chunks, retrying each chunk with linear backoff
// and aggregating partial-failure information.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openfga/fgabatch/internal/build"
	"github.com/openfga/fgabatch/pkg/events"
	"github.com/openfga/fgabatch/pkg/logger"
	"github.com/openfga/fgabatch/pkg/optimizer"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

var tracer = otel.Tracer("pkg/executor")

var (
	chunkRetryCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "chunk_retry_count",
		Help:      "The total number of chunk write attempts that failed and were retried.",
	})

	chunksExecutedCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "chunks_executed_count",
		Help:      "The total number of chunks submitted to the remote write API.",
	})
)

// ErrParallelUnsupported is returned by ProcessParallel when the
// ParallelProcessing flag is set, so callers are never misled about
// concurrency guarantees they did not get.
var ErrParallelUnsupported = errors.New("parallel batch processing is not supported")

// TupleWriter is the remote write operation the executor depends on. One
// chunk is one call. The call is atomic on the remote side: either the whole
// mutation set is applied or none of it is.
type TupleWriter interface {
	WriteTuples(ctx context.Context, writes *openfgav1.WriteRequestWrites, deletes *openfgav1.WriteRequestDeletes) error
}

// Executor processes batches of tuple mutations. Chunks within one batch are
// executed strictly sequentially on the calling goroutine; callers that cannot
// tolerate blocking should invoke ProcessBatch from a background goroutine.
type Executor struct {
	cfg        Config
	optimizer  *optimizer.Optimizer
	writer     TupleWriter
	sink       events.Sink
	logger     logger.Logger
	progressFn ProgressFn

	mu    sync.Mutex
	stats Stats
}

type ExecutorOpt func(*Executor)

func WithLogger(l logger.Logger) ExecutorOpt {
	return func(e *Executor) {
		e.logger = l
	}
}

func WithSink(s events.Sink) ExecutorOpt {
	return func(e *Executor) {
		e.sink = s
	}
}

func WithProgressFn(fn ProgressFn) ExecutorOpt {
	return func(e *Executor) {
		e.progressFn = fn
	}
}

func New(cfg Config, opt *optimizer.Optimizer, writer TupleWriter, opts ...ExecutorOpt) (*Executor, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:       cfg,
		optimizer: opt,
		writer:    writer,
		sink:      events.NewNoopSink(),
		logger:    logger.NewNoopLogger(),
	}

	for _, o := range opts {
		o(e)
	}

	return e, nil
}

// ProcessBatch optimizes the given writes and deletes, partitions them into
// chunks and executes each chunk against the remote write API with retries.
//
// With FailFast disabled (the default), a chunk whose retries are exhausted is
// recorded in the result and processing continues with the next chunk; the
// returned result has Success true because the batch itself ran to completion.
// With FailFast enabled, the first exhausted chunk aborts the batch: the
// result has Success false and the chunk's error is returned.
func (e *Executor) ProcessBatch(ctx context.Context, writes, deletes []*openfgav1.TupleKey) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "executor.ProcessBatch")
	defer span.End()

	start := time.Now()

	optimizedWrites, optimizedDeletes := e.optimizer.OptimizeMixed(writes, deletes)
	totalOperations := len(optimizedWrites) + len(optimizedDeletes)

	writeChunks := e.optimizer.ChunkOperations(optimizedWrites)
	deleteChunks := e.optimizer.ChunkOperations(optimizedDeletes)

	chunksTotal := len(writeChunks)
	if len(deleteChunks) > chunksTotal {
		chunksTotal = len(deleteChunks)
	}

	span.SetAttributes(
		attribute.Int("total_operations", totalOperations),
		attribute.Int("chunks_total", chunksTotal),
	)

	var (
		processed int
		failed    int
		errs      []string
	)

	for i := 0; i < chunksTotal; i++ {
		var chunkWrites, chunkDeletes []*openfgav1.TupleKey
		if i < len(writeChunks) {
			chunkWrites = writeChunks[i]
		}
		if i < len(deleteChunks) {
			chunkDeletes = deleteChunks[i]
		}

		chunkOperations := len(chunkWrites) + len(chunkDeletes)

		if err := e.executeChunk(ctx, chunkWrites, chunkDeletes); err != nil {
			if e.cfg.FailFast {
				result := e.failBatch(ctx, totalOperations, time.Since(start), err)
				return result, err
			}

			failed += chunkOperations
			errs = append(errs, fmt.Sprintf("chunk %d: %s", i, err))
			e.logger.ErrorWithContext(ctx, "chunk failed",
				zap.Int("chunk", i),
				zap.Int("operations", chunkOperations),
				zap.Error(err),
			)
		} else {
			processed += chunkOperations
		}

		if e.progressFn != nil {
			e.progressFn(i+1, chunksTotal, processed)
		}
	}

	result := &BatchResult{
		Success:             true,
		TotalOperations:     totalOperations,
		ProcessedOperations: processed,
		FailedOperations:    failed,
		Duration:            time.Since(start),
		OptimizationStats:   e.optimizer.GetStats(),
		Errors:              errs,
	}

	e.recordBatch(result, true)
	e.emit(func() { e.sink.BatchProcessed(ctx, result) })

	return result, nil
}

// failBatch builds the short-circuit result for a batch abandoned by FailFast.
func (e *Executor) failBatch(ctx context.Context, totalOperations int, duration time.Duration, err error) *BatchResult {
	result := &BatchResult{
		Success:             false,
		TotalOperations:     totalOperations,
		ProcessedOperations: 0,
		FailedOperations:    totalOperations,
		Duration:            duration,
		OptimizationStats:   e.optimizer.GetStats(),
		Errors:              []string{err.Error()},
	}

	e.recordBatch(result, false)
	e.emit(func() { e.sink.BatchFailed(ctx, result, err) })

	return result
}

// executeChunk converts one chunk into the remote API's native mutation sets
// and writes it, retrying with linear backoff (attempt n sleeps n*RetryDelay)
// until the attempt budget is exhausted. The last error is returned, never
// swallowed.
func (e *Executor) executeChunk(ctx context.Context, chunkWrites, chunkDeletes []*openfgav1.TupleKey) error {
	var writes *openfgav1.WriteRequestWrites
	if len(chunkWrites) > 0 {
		writes = &openfgav1.WriteRequestWrites{
			TupleKeys: tupleUtils.ConvertTupleKeysToWriteRequestTupleKeys(chunkWrites),
		}
	}

	var deletes *openfgav1.WriteRequestDeletes
	if len(chunkDeletes) > 0 {
		deletes = &openfgav1.WriteRequestDeletes{
			TupleKeys: tupleUtils.ConvertTupleKeysToDeleteRequestTupleKeys(chunkDeletes),
		}
	}

	chunksExecutedCount.Inc()

	attempt := 0
	operation := func() error {
		attempt++
		err := e.writer.WriteTuples(ctx, writes, deletes)
		if err != nil {
			chunkRetryCount.Inc()
			e.logger.WarnWithContext(ctx, "chunk write attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", e.cfg.MaxRetries),
				zap.Error(err),
			)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{delay: e.cfg.RetryDelay}, uint64(e.cfg.MaxRetries-1)),
		ctx,
	)

	return backoff.Retry(operation, policy)
}

// ProcessParallel is a documented extension point. With ParallelProcessing
// disabled it delegates to ProcessBatch; with it enabled it fails explicitly
// rather than silently running sequentially.
func (e *Executor) ProcessParallel(ctx context.Context, writes, deletes []*openfgav1.TupleKey) (*BatchResult, error) {
	if e.cfg.ParallelProcessing {
		return nil, ErrParallelUnsupported
	}

	return e.ProcessBatch(ctx, writes, deletes)
}

func (e *Executor) recordBatch(result *BatchResult, succeeded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalBatches++
	if succeeded {
		e.stats.SuccessfulBatches++
	} else {
		e.stats.FailedBatches++
	}
	e.stats.TotalOperations += result.TotalOperations
	e.stats.TotalTime += result.Duration
}

// emit delivers a notification best-effort. A panicking sink is logged and
// never fails the batch.
func (e *Executor) emit(notify func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification sink panicked", zap.Any("panic", r))
		}
	}()

	notify()
}

// GetStats returns a snapshot of the counters accumulated across all batches
// executed by this instance.
func (e *Executor) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats
}

// ResetStats zeroes the accumulated counters.
func (e *Executor) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = Stats{}
}

// linearBackOff grows the wait proportionally to the attempt count, matching
// the retry curve attempt*delay.
type linearBackOff struct {
	delay   time.Duration
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
