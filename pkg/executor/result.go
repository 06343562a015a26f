package executor

import (
	"time"

	"github.com/openfga/fgabatch/pkg/events"
	"github.com/openfga/fgabatch/pkg/optimizer"
)

// BatchResult is the immutable outcome of one ProcessBatch call.
type BatchResult struct {
	// Success reports that the batch ran to completion. Individual chunks may
	// still have failed; see IsPartialSuccess.
	Success bool

	TotalOperations     int
	ProcessedOperations int
	FailedOperations    int

	Duration time.Duration

	// OptimizationStats is a snapshot of the optimizer counters for this batch.
	OptimizationStats optimizer.Stats

	// Errors holds one formatted message per failed chunk, in chunk order.
	Errors []string
}

// OperationsPerSecond returns the processing throughput of the batch.
func (r *BatchResult) OperationsPerSecond() float64 {
	if r.Duration == 0 {
		return 0
	}

	return float64(r.ProcessedOperations) / r.Duration.Seconds()
}

// SuccessRate returns the percentage of operations that were processed.
func (r *BatchResult) SuccessRate() float64 {
	if r.TotalOperations == 0 {
		return 0
	}

	return float64(r.ProcessedOperations) / float64(r.TotalOperations) * 100
}

// IsPartialSuccess reports that some chunks succeeded and some failed.
func (r *BatchResult) IsPartialSuccess() bool {
	return r.ProcessedOperations > 0 && r.FailedOperations > 0
}

var _ events.BatchReport = (*BatchResult)(nil)

func (r *BatchResult) OperationCounts() (total, processed, failed int) {
	return r.TotalOperations, r.ProcessedOperations, r.FailedOperations
}

func (r *BatchResult) DurationSeconds() float64 {
	return r.Duration.Seconds()
}

func (r *BatchResult) ErrorMessages() []string {
	return r.Errors
}

// Stats accumulates counters across all batches executed by one Executor
// instance. It is owned by that instance and reset on demand.
type Stats struct {
	TotalBatches      int
	SuccessfulBatches int
	FailedBatches     int
	TotalOperations   int
	TotalTime         time.Duration
}

// AverageBatchTime returns the mean duration of a batch.
func (s Stats) AverageBatchTime() time.Duration {
	if s.TotalBatches == 0 {
		return 0
	}

	return s.TotalTime / time.Duration(s.TotalBatches)
}

// AverageOperationsPerBatch returns the mean number of operations per batch.
func (s Stats) AverageOperationsPerBatch() float64 {
	if s.TotalBatches == 0 {
		return 0
	}

	return float64(s.TotalOperations) / float64(s.TotalBatches)
}

// SuccessRate returns the percentage of batches that ran to completion.
func (s Stats) SuccessRate() float64 {
	if s.TotalBatches == 0 {
		return 0
	}

	return float64(s.SuccessfulBatches) / float64(s.TotalBatches) * 100
}
