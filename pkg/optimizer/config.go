package optimizer

import "fmt"

const (
	// DefaultChunkSize is the maximum number of operations submitted in one
	// remote write call.
	DefaultChunkSize = 500
)

// Config contains all knobs used to configure an Optimizer.
type Config struct {
	// ChunkSize is the maximum number of operations per chunk. It must be positive.
	ChunkSize int

	// RemoveDuplicates collapses operations that target the same tuple.
	RemoveDuplicates bool

	// ResolveConflicts keeps only the latest of multiple operations surviving
	// on the same tuple.
	ResolveConflicts bool

	// MergeRelated counts operations sharing a user and object that a backend
	// could potentially combine. It never changes which operations are emitted.
	MergeRelated bool

	// SortOperations orders the final operation list by (object type, object
	// id, user, relation) to co-locate operations on the same resource.
	SortOperations bool
}

// DefaultConfig returns the Optimizer config with all optimization steps enabled.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        DefaultChunkSize,
		RemoveDuplicates: true,
		ResolveConflicts: true,
		MergeRelated:     true,
		SortOperations:   true,
	}
}

// Verify reports config values that would produce silently wrong behavior downstream.
func (c Config) Verify() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config 'ChunkSize' must be greater than zero, got %d", c.ChunkSize)
	}

	return nil
}
