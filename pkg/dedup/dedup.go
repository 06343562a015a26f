// Package dedup coalesces concurrent identical read requests so that only one
// underlying call is in flight per unique request fingerprint at any time.
//
// Callers in the same process are coalesced through a singleflight group and
// never poll. Callers in other processes sharing the same cache backend
// observe a short-lived in-flight marker and wait for the computer's result
// with a bounded poll loop. The cross-process guarantee is only as strong as
// the backend's write atomicity: a backend without atomic set-if-absent
// semantics admits a narrow race in which two processes compute the same
// fingerprint once each.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/openfga/fgabatch/internal/build"
	"github.com/openfga/fgabatch/internal/keys"
	"github.com/openfga/fgabatch/pkg/cache"
	"github.com/openfga/fgabatch/pkg/logger"
)

var tracer = otel.Tracer("pkg/dedup")

var (
	dedupCacheHitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "dedup_cache_hit_count",
		Help:      "The total number of requests answered from the result cache.",
	})

	dedupCacheMissCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "dedup_cache_miss_count",
		Help:      "The total number of requests that missed the result cache.",
	})

	deduplicatedRequestCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "deduplicated_request_count",
		Help:      "The total number of compute invocations that were prevented by coalescing onto an identical in-flight request.",
	})
)

var (
	// ErrInFlightFailed is returned to waiting callers when the in-flight
	// marker disappears without a result appearing: the computer failed or was
	// abandoned.
	ErrInFlightFailed = errors.New("in-flight request failed or timed out")

	// ErrWaitTimeout is returned to waiting callers whose wait budget elapses
	// before the in-flight computation resolves.
	ErrWaitTimeout = errors.New("timed out waiting for in-flight request")
)

const inFlightSuffix = ":inflight"

// Stats counts the requests seen by a Deduplicator since construction or the
// last ResetStats call.
type Stats struct {
	TotalRequests int
	CacheHits     int
	CacheMisses   int
	Deduplicated  int
}

// HitRate returns the percentage of requests answered from the cache, rounded
// to two decimals.
func (s Stats) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}

	return math.Round(float64(s.CacheHits)/float64(s.TotalRequests)*100*100) / 100
}

// DeduplicationRate returns the percentage of requests coalesced onto an
// identical in-flight request, rounded to two decimals.
func (s Stats) DeduplicationRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}

	return math.Round(float64(s.Deduplicated)/float64(s.TotalRequests)*100*100) / 100
}

// Deduplicator coalesces identical requests through a shared cache backend.
// It owns no state besides its stats and a local record of the in-flight keys
// it set; all contention goes through the cache.
type Deduplicator struct {
	cfg    Config
	cache  cache.Cache
	logger logger.Logger
	group  singleflight.Group

	mu       sync.Mutex
	stats    Stats
	inFlight map[string]struct{}
}

type DeduplicatorOpt func(*Deduplicator)

func WithLogger(l logger.Logger) DeduplicatorOpt {
	return func(d *Deduplicator) {
		d.logger = l
	}
}

func New(cfg Config, c cache.Cache, opts ...DeduplicatorOpt) (*Deduplicator, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	d := &Deduplicator{
		cfg:      cfg,
		cache:    c,
		logger:   logger.NewNoopLogger(),
		inFlight: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// CacheKey computes the canonical cache key for an operation and its
// parameters: 'prefix:operationName:fingerprint'. The fingerprint hashes the
// parameters sorted by name, so key insertion order does not matter.
func (d *Deduplicator) CacheKey(operationName string, params map[string]any) (string, error) {
	fingerprint, err := keys.ParamsFingerprint(params)
	if err != nil {
		return "", fmt.Errorf("computing fingerprint for operation '%s': %w", operationName, err)
	}

	return d.cfg.Prefix + ":" + operationName + ":" + strconv.FormatUint(fingerprint, 16), nil
}

// Execute runs compute at most once per unique (operationName, params)
// fingerprint across all callers sharing the Deduplicator's cache backend.
// Concurrent callers with the same fingerprint receive either the cached
// result or the outcome of the single in-flight computation.
func Execute[T any](ctx context.Context, d *Deduplicator, operationName string, params map[string]any, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	if !d.cfg.Enabled {
		return compute(ctx)
	}

	raw, err := d.execute(ctx, operationName, params, func(ctx context.Context) (string, error) {
		value, err := compute(ctx)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("serializing result of operation '%s': %w", operationName, err)
		}
		return string(data), nil
	})
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return zero, fmt.Errorf("deserializing result of operation '%s': %w", operationName, err)
	}

	return result, nil
}

func (d *Deduplicator) execute(ctx context.Context, operationName string, params map[string]any, compute func(context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, "dedup.Execute")
	defer span.End()

	span.SetAttributes(attribute.String("operation", operationName))

	key, err := d.CacheKey(operationName, params)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.stats.TotalRequests++
	d.mu.Unlock()

	if value, ok := d.cache.Get(key); ok {
		dedupCacheHitCount.Inc()
		d.mu.Lock()
		d.stats.CacheHits++
		d.mu.Unlock()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return value, nil
	}

	dedupCacheMissCount.Inc()
	d.mu.Lock()
	d.stats.CacheMisses++
	d.mu.Unlock()

	isUnique := false
	value, err, shared := d.group.Do(key, func() (interface{}, error) {
		isUnique = true
		return d.computeOrWait(ctx, key, compute)
	})
	if shared && !isUnique {
		deduplicatedRequestCount.Inc()
		d.mu.Lock()
		d.stats.Deduplicated++
		d.mu.Unlock()
	}
	if err != nil {
		return "", err
	}

	return value.(string), nil
}

// computeOrWait is the cross-process arm of Execute. Exactly one goroutine per
// process runs it for a given key at a time.
func (d *Deduplicator) computeOrWait(ctx context.Context, key string, compute func(context.Context) (string, error)) (string, error) {
	// another goroutine may have stored the result while this caller was
	// queued on the singleflight group
	if value, ok := d.cache.Get(key); ok {
		return value, nil
	}

	inFlightKey := key + inFlightSuffix

	if d.cache.Has(inFlightKey) {
		// another process is computing this fingerprint
		deduplicatedRequestCount.Inc()
		d.mu.Lock()
		d.stats.Deduplicated++
		d.mu.Unlock()

		return d.waitForResult(ctx, key, inFlightKey)
	}

	d.cache.Set(inFlightKey, "1", d.cfg.InFlightTTL)
	d.mu.Lock()
	d.inFlight[inFlightKey] = struct{}{}
	d.mu.Unlock()

	value, err := compute(ctx)

	d.cache.Forget(inFlightKey)
	d.mu.Lock()
	delete(d.inFlight, inFlightKey)
	d.mu.Unlock()

	if err != nil {
		// clearing the marker first lets waiters fail fast instead of
		// timing out
		return "", err
	}

	d.cache.Set(key, value, d.cfg.TTL)

	return value, nil
}

// waitForResult polls the cache until the computer's result appears, the
// in-flight marker disappears without one, the wait budget elapses, or the
// context is cancelled.
func (d *Deduplicator) waitForResult(ctx context.Context, key, inFlightKey string) (string, error) {
	deadline := time.NewTimer(d.cfg.InFlightTTL)
	defer deadline.Stop()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if value, ok := d.cache.Get(key); ok {
			return value, nil
		}

		if !d.cache.Has(inFlightKey) {
			// the computer may have stored the result and cleared the marker
			// between the two checks above
			if value, ok := d.cache.Get(key); ok {
				return value, nil
			}

			d.logger.WarnWithContext(ctx, "in-flight marker disappeared without a result", zap.String("key", key))
			return "", ErrInFlightFailed
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// GetStats returns a snapshot of the request counters.
func (d *Deduplicator) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stats
}

// ResetStats zeroes all counters.
func (d *Deduplicator) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats = Stats{}
}

// InFlightCount returns the number of in-flight markers set by this instance
// that have not resolved yet.
func (d *Deduplicator) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.inFlight)
}

// Clear drops the local bookkeeping of in-flight keys. Cache entries are left
// to expire through their TTLs.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inFlight = make(map[string]struct{})
}
