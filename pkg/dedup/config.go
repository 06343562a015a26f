package dedup

import (
	"fmt"
	"time"
)

const (
	// DefaultTTL is how long a computed result stays in the cache.
	DefaultTTL = 60 * time.Second

	// DefaultInFlightTTL bounds both the lifetime of an in-flight marker and
	// how long a coalesced caller waits for the computer to finish.
	DefaultInFlightTTL = 5 * time.Second

	// DefaultPrefix namespaces the cache keys written by a Deduplicator.
	DefaultPrefix = "openfga_dedup"

	// DefaultPollInterval is how often a waiting caller re-checks the cache
	// for the computer's result.
	DefaultPollInterval = 50 * time.Millisecond
)

// Config contains all knobs used to configure a Deduplicator.
type Config struct {
	// Enabled turns deduplication on. When false, Execute invokes the compute
	// function directly with no caching or coalescing.
	Enabled bool

	// TTL is the lifetime of cached results.
	TTL time.Duration

	// InFlightTTL is the lifetime of the in-flight marker and the wait budget
	// of coalesced callers.
	InFlightTTL time.Duration

	// Prefix namespaces every cache key this instance writes.
	Prefix string

	// PollInterval is the wait-loop poll period of coalesced callers.
	PollInterval time.Duration
}

// DefaultConfig returns the Deduplicator config with deduplication enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		TTL:          DefaultTTL,
		InFlightTTL:  DefaultInFlightTTL,
		Prefix:       DefaultPrefix,
		PollInterval: DefaultPollInterval,
	}
}

// Verify reports config values that would produce silently wrong behavior downstream.
func (c Config) Verify() error {
	if c.TTL <= 0 {
		return fmt.Errorf("config 'TTL' must be greater than zero, got %s", c.TTL)
	}

	if c.InFlightTTL <= 0 {
		return fmt.Errorf("config 'InFlightTTL' must be greater than zero, got %s", c.InFlightTTL)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("config 'PollInterval' must be greater than zero, got %s", c.PollInterval)
	}

	if c.Prefix == "" {
		return fmt.Errorf("config 'Prefix' must not be empty")
	}

	return nil
}
