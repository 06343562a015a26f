package executor

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries is the number of attempts a chunk write gets before
	// its error is surfaced.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay between chunk write attempts. The
	// actual sleep grows linearly with the attempt number.
	DefaultRetryDelay = 1 * time.Second
)

// ProgressFn is invoked after every chunk with the number of chunks completed
// so far, the total number of chunks, and the operations processed so far. It
// runs synchronously between chunks and must not block.
type ProgressFn func(chunksCompleted, chunksTotal, operationsProcessed int)

// Config contains all knobs used to configure an Executor.
type Config struct {
	// MaxRetries is the maximum number of attempts per chunk. It must be positive.
	MaxRetries int

	// RetryDelay is the base backoff delay; attempt n sleeps n*RetryDelay.
	RetryDelay time.Duration

	// FailFast aborts the whole batch on the first chunk whose retries are
	// exhausted. When false, failed chunks are recorded and processing
	// continues with the next chunk.
	FailFast bool

	// ParallelProcessing is an extension point that is not implemented.
	// Setting it makes ProcessParallel return ErrParallelUnsupported instead
	// of silently running sequentially.
	ParallelProcessing bool
}

// DefaultConfig returns the Executor config with retry enabled and
// continue-on-error chunk handling.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Verify reports config values that would produce silently wrong behavior downstream.
func (c Config) Verify() error {
	if c.MaxRetries <= 0 {
		return fmt.Errorf("config 'MaxRetries' must be greater than zero, got %d", c.MaxRetries)
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("config 'RetryDelay' must not be negative, got %s", c.RetryDelay)
	}

	return nil
}
