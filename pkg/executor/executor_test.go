package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"github.com/stretchr/testify/require"

	"github.com/openfga/fgabatch/pkg/events"
	"github.com/openfga/fgabatch/pkg/optimizer"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

type capturedCall struct {
	writes  []*openfgav1.TupleKey
	deletes []*openfgav1.TupleKeyWithoutCondition
}

// fakeWriter records every WriteTuples call and answers with whatever failFn
// decides for it.
type fakeWriter struct {
	mu     sync.Mutex
	calls  []capturedCall
	failFn func(call int, writes *openfgav1.WriteRequestWrites) error
}

func (f *fakeWriter) WriteTuples(_ context.Context, writes *openfgav1.WriteRequestWrites, deletes *openfgav1.WriteRequestDeletes) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, capturedCall{
		writes:  writes.GetTupleKeys(),
		deletes: deletes.GetTupleKeys(),
	})

	if f.failFn != nil {
		return f.failFn(len(f.calls), writes)
	}
	return nil
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type recordingSink struct {
	processed []events.BatchReport
	failed    []events.BatchReport
}

func (s *recordingSink) BatchProcessed(_ context.Context, report events.BatchReport) {
	s.processed = append(s.processed, report)
}

func (s *recordingSink) BatchFailed(_ context.Context, report events.BatchReport, _ error) {
	s.failed = append(s.failed, report)
}

type panickingSink struct{}

func (panickingSink) BatchProcessed(context.Context, events.BatchReport) { panic("sink down") }
func (panickingSink) BatchFailed(context.Context, events.BatchReport, error) {
	panic("sink down")
}

func newTestExecutor(t *testing.T, cfg Config, chunkSize int, writer TupleWriter, opts ...ExecutorOpt) *Executor {
	t.Helper()

	optCfg := optimizer.DefaultConfig()
	optCfg.ChunkSize = chunkSize
	opt, err := optimizer.New(optCfg)
	require.NoError(t, err)

	e, err := New(cfg, opt, writer, opts...)
	require.NoError(t, err)
	return e
}

func testWrites(n int) []*openfgav1.TupleKey {
	writes := make([]*openfgav1.TupleKey, 0, n)
	for i := 0; i < n; i++ {
		writes = append(writes, tupleUtils.NewTupleKey(fmt.Sprintf("document:%d", i), "reader", "user:anne"))
	}
	return writes
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	opt, err := optimizer.New(optimizer.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	_, err = New(cfg, opt, &fakeWriter{})
	require.ErrorContains(t, err, "MaxRetries")

	cfg = DefaultConfig()
	cfg.RetryDelay = -1
	_, err = New(cfg, opt, &fakeWriter{})
	require.ErrorContains(t, err, "RetryDelay")
}

func TestProcessBatchSuccess(t *testing.T) {
	writer := &fakeWriter{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 5, writer)

	result, err := e.ProcessBatch(context.Background(), testWrites(10), nil)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, 10, result.TotalOperations)
	require.Equal(t, 10, result.ProcessedOperations)
	require.Zero(t, result.FailedOperations)
	require.Empty(t, result.Errors)
	require.False(t, result.IsPartialSuccess())
	require.InDelta(t, 100.0, result.SuccessRate(), 0.001)
	require.Equal(t, 2, writer.callCount())

	stats := e.GetStats()
	require.Equal(t, 1, stats.TotalBatches)
	require.Equal(t, 1, stats.SuccessfulBatches)
	require.Zero(t, stats.FailedBatches)
	require.Equal(t, 10, stats.TotalOperations)
}

func TestProcessBatchPartialFailure(t *testing.T) {
	// the second chunk fails on every attempt
	writer := &fakeWriter{
		failFn: func(_ int, writes *openfgav1.WriteRequestWrites) error {
			if writes.GetTupleKeys()[0].GetObject() == "document:5" {
				return errors.New("transient network failure")
			}
			return nil
		},
	}

	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 5, writer)

	result, err := e.ProcessBatch(context.Background(), testWrites(10), nil)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, 10, result.TotalOperations)
	require.Equal(t, 5, result.ProcessedOperations)
	require.Equal(t, 5, result.FailedOperations)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "chunk 1")
	require.Contains(t, result.Errors[0], "transient network failure")
	require.True(t, result.IsPartialSuccess())
	require.InDelta(t, 50.0, result.SuccessRate(), 0.001)

	// 1 attempt for the first chunk, MaxRetries attempts for the second
	require.Equal(t, 1+DefaultMaxRetries, writer.callCount())
}

func TestProcessBatchRetriesUntilSuccess(t *testing.T) {
	writer := &fakeWriter{
		failFn: func(call int, _ *openfgav1.WriteRequestWrites) error {
			if call < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}

	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 500, writer)

	result, err := e.ProcessBatch(context.Background(), testWrites(2), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.ProcessedOperations)
	require.Equal(t, 3, writer.callCount())
}

func TestProcessBatchFailFast(t *testing.T) {
	writer := &fakeWriter{
		failFn: func(_ int, _ *openfgav1.WriteRequestWrites) error {
			return errors.New("remote unavailable")
		},
	}

	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	cfg.FailFast = true
	e := newTestExecutor(t, cfg, 5, writer, WithSink(sink))

	result, err := e.ProcessBatch(context.Background(), testWrites(10), nil)
	require.ErrorContains(t, err, "remote unavailable")

	require.False(t, result.Success)
	require.Zero(t, result.ProcessedOperations)
	require.Equal(t, 10, result.FailedOperations)
	require.Equal(t, []string{"remote unavailable"}, result.Errors)

	// the second chunk was abandoned
	require.Equal(t, DefaultMaxRetries, writer.callCount())

	stats := e.GetStats()
	require.Equal(t, 1, stats.TotalBatches)
	require.Equal(t, 1, stats.FailedBatches)
	require.Len(t, sink.failed, 1)
	require.Empty(t, sink.processed)
}

func TestProcessBatchZipsWriteAndDeleteChunks(t *testing.T) {
	writer := &fakeWriter{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 2, writer)

	deletes := []*openfgav1.TupleKey{tupleUtils.NewTupleKey("folder:1", "viewer", "user:zoe")}

	result, err := e.ProcessBatch(context.Background(), testWrites(3), deletes)
	require.NoError(t, err)
	require.Equal(t, 4, result.TotalOperations)
	require.Equal(t, 4, result.ProcessedOperations)

	// chunk 0 carries writes and deletes, chunk 1 is writes-only
	require.Equal(t, 2, writer.callCount())
	require.Len(t, writer.calls[0].writes, 2)
	require.Len(t, writer.calls[0].deletes, 1)
	require.Len(t, writer.calls[1].writes, 1)
	require.Empty(t, writer.calls[1].deletes)
}

func TestProcessBatchProgressCallback(t *testing.T) {
	writer := &fakeWriter{}

	type progress struct{ completed, total, processed int }
	var seen []progress

	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 5, writer, WithProgressFn(func(completed, total, processed int) {
		seen = append(seen, progress{completed, total, processed})
	}))

	_, err := e.ProcessBatch(context.Background(), testWrites(10), nil)
	require.NoError(t, err)

	require.Equal(t, []progress{{1, 2, 5}, {2, 2, 10}}, seen)
}

func TestProcessBatchEmpty(t *testing.T) {
	writer := &fakeWriter{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 500, writer)

	result, err := e.ProcessBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Zero(t, result.TotalOperations)
	require.Zero(t, writer.callCount())
	require.Zero(t, result.SuccessRate())
	require.Zero(t, result.OperationsPerSecond())
}

func TestProcessBatchNotifiesSink(t *testing.T) {
	writer := &fakeWriter{}
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 500, writer, WithSink(sink))

	_, err := e.ProcessBatch(context.Background(), testWrites(1), nil)
	require.NoError(t, err)
	require.Len(t, sink.processed, 1)
	require.Empty(t, sink.failed)
}

func TestProcessBatchSurvivesPanickingSink(t *testing.T) {
	writer := &fakeWriter{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 500, writer, WithSink(panickingSink{}))

	result, err := e.ProcessBatch(context.Background(), testWrites(1), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestProcessParallel(t *testing.T) {
	writer := &fakeWriter{}

	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	cfg.ParallelProcessing = true
	e := newTestExecutor(t, cfg, 500, writer)

	_, err := e.ProcessParallel(context.Background(), testWrites(1), nil)
	require.ErrorIs(t, err, ErrParallelUnsupported)

	cfg.ParallelProcessing = false
	e = newTestExecutor(t, cfg, 500, writer)

	result, err := e.ProcessParallel(context.Background(), testWrites(1), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestExecutorStatsAccumulateAndReset(t *testing.T) {
	writer := &fakeWriter{}
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	e := newTestExecutor(t, cfg, 500, writer)

	_, err := e.ProcessBatch(context.Background(), testWrites(3), nil)
	require.NoError(t, err)
	_, err = e.ProcessBatch(context.Background(), testWrites(5), nil)
	require.NoError(t, err)

	stats := e.GetStats()
	require.Equal(t, 2, stats.TotalBatches)
	require.Equal(t, 8, stats.TotalOperations)
	require.InDelta(t, 4.0, stats.AverageOperationsPerBatch(), 0.001)
	require.InDelta(t, 100.0, stats.SuccessRate(), 0.001)

	e.ResetStats()
	require.Equal(t, Stats{}, e.GetStats())
	require.Zero(t, Stats{}.AverageBatchTime())
	require.Zero(t, Stats{}.SuccessRate())
}
