// Package events defines the notification sink the batch executor reports to.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/openfga/fgabatch/pkg/logger"
)

// BatchReport is the observable outcome of one processed batch, carried on
// every notification.
type BatchReport interface {
	OperationCounts() (total, processed, failed int)
	DurationSeconds() float64
	ErrorMessages() []string
}

// Sink receives batch lifecycle notifications. Delivery is best-effort:
// implementations must not block, and a misbehaving sink never fails the batch
// that emitted the notification.
type Sink interface {
	BatchProcessed(context.Context, BatchReport)
	BatchFailed(context.Context, BatchReport, error)
}

type NoopSink struct {
}

var _ Sink = (*NoopSink)(nil)

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) BatchProcessed(_ context.Context, _ BatchReport) {
}

func (n *NoopSink) BatchFailed(_ context.Context, _ BatchReport, _ error) {
}

// LogSink writes batch notifications to the structured log.
type LogSink struct {
	logger logger.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(l logger.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) BatchProcessed(ctx context.Context, report BatchReport) {
	total, processed, failed := report.OperationCounts()
	s.logger.InfoWithContext(
		ctx,
		"batch processed",
		zap.Int("total_operations", total),
		zap.Int("processed_operations", processed),
		zap.Int("failed_operations", failed),
		zap.Float64("duration_seconds", report.DurationSeconds()),
	)
}

func (s *LogSink) BatchFailed(ctx context.Context, report BatchReport, err error) {
	total, _, failed := report.OperationCounts()
	s.logger.ErrorWithContext(
		ctx,
		"batch failed",
		zap.Error(err),
		zap.Int("total_operations", total),
		zap.Int("failed_operations", failed),
		zap.Strings("errors", report.ErrorMessages()),
	)
}
