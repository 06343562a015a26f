// Package client composes the deduplicator, optimizer and executor into the
// full pipeline an application talks to: checks are coalesced and cached,
// batch mutations are optimized, chunked and retried before reaching the
// remote authorization service.
package client

import (
	"context"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/fgabatch/pkg/cache"
	"github.com/openfga/fgabatch/pkg/dedup"
	"github.com/openfga/fgabatch/pkg/events"
	"github.com/openfga/fgabatch/pkg/executor"
	"github.com/openfga/fgabatch/pkg/logger"
	"github.com/openfga/fgabatch/pkg/optimizer"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

// Checker is the remote single-permission evaluation the read path depends on.
type Checker interface {
	Check(ctx context.Context, user, relation, object string, contextualTuples []*openfgav1.TupleKey, requestContext *structpb.Struct) (bool, error)
}

// Backend is the remote authorization service as seen by the pipeline.
type Backend interface {
	Checker
	executor.TupleWriter
}

// Config aggregates the configuration of all pipeline components.
type Config struct {
	Optimizer optimizer.Config
	Executor  executor.Config
	Dedup     dedup.Config
}

// DefaultConfig returns the pipeline config with every component at its defaults.
func DefaultConfig() Config {
	return Config{
		Optimizer: optimizer.DefaultConfig(),
		Executor:  executor.DefaultConfig(),
		Dedup:     dedup.DefaultConfig(),
	}
}

// Client is the application-facing pipeline. Checks flow through the
// deduplicator to the backend; batch mutations flow through the optimizer and
// the executor.
type Client struct {
	backend   Backend
	dedup     *dedup.Deduplicator
	optimizer *optimizer.Optimizer
	executor  *executor.Executor
	logger    logger.Logger
}

type ClientOpt func(*clientOpts)

type clientOpts struct {
	logger       logger.Logger
	sink         events.Sink
	progressFn   executor.ProgressFn
	haveSink     bool
	haveProgress bool
}

func WithLogger(l logger.Logger) ClientOpt {
	return func(o *clientOpts) {
		o.logger = l
	}
}

func WithSink(s events.Sink) ClientOpt {
	return func(o *clientOpts) {
		o.sink = s
		o.haveSink = true
	}
}

func WithProgressFn(fn executor.ProgressFn) ClientOpt {
	return func(o *clientOpts) {
		o.progressFn = fn
		o.haveProgress = true
	}
}

func NewClient(cfg Config, backend Backend, c cache.Cache, opts ...ClientOpt) (*Client, error) {
	o := &clientOpts{logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	d, err := dedup.New(cfg.Dedup, c, dedup.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	opt, err := optimizer.New(cfg.Optimizer, optimizer.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	execOpts := []executor.ExecutorOpt{executor.WithLogger(o.logger)}
	if o.haveSink {
		execOpts = append(execOpts, executor.WithSink(o.sink))
	}
	if o.haveProgress {
		execOpts = append(execOpts, executor.WithProgressFn(o.progressFn))
	}

	exec, err := executor.New(cfg.Executor, opt, backend, execOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		backend:   backend,
		dedup:     d,
		optimizer: opt,
		executor:  exec,
		logger:    o.logger,
	}, nil
}

type checkRequest struct {
	contextualTuples []*openfgav1.TupleKey
	requestContext   *structpb.Struct
}

type CheckOption func(*checkRequest)

// WithContextualTuples adds tuples evaluated as if they were written, for the
// duration of the check only.
func WithContextualTuples(tks ...*openfgav1.TupleKey) CheckOption {
	return func(r *checkRequest) {
		r.contextualTuples = append(r.contextualTuples, tks...)
	}
}

// WithRequestContext attaches condition context to the check.
func WithRequestContext(c *structpb.Struct) CheckOption {
	return func(r *checkRequest) {
		r.requestContext = c
	}
}

// Check evaluates a single permission. Concurrent identical checks are
// coalesced into one backend call and results are cached per the dedup config.
func (c *Client) Check(ctx context.Context, user, relation, object string, opts ...CheckOption) (bool, error) {
	req := &checkRequest{}
	for _, opt := range opts {
		opt(req)
	}

	params := map[string]any{
		"user":     user,
		"relation": relation,
		"object":   object,
	}
	if len(req.contextualTuples) > 0 {
		tuples := make([]string, 0, len(req.contextualTuples))
		for _, tk := range req.contextualTuples {
			tuples = append(tuples, tupleUtils.TupleKeyToString(tk))
		}
		params["contextual_tuples"] = tuples
	}
	if req.requestContext != nil {
		params["context"] = req.requestContext.AsMap()
	}

	return dedup.Execute(ctx, c.dedup, "check", params, func(ctx context.Context) (bool, error) {
		return c.backend.Check(ctx, user, relation, object, req.contextualTuples, req.requestContext)
	})
}

// WriteBatch optimizes and executes a batch of tuple grants and revokes.
func (c *Client) WriteBatch(ctx context.Context, writes, deletes []*openfgav1.TupleKey) (*executor.BatchResult, error) {
	return c.executor.ProcessBatch(ctx, writes, deletes)
}

// OptimizerStats returns the counters of the last optimization pass.
func (c *Client) OptimizerStats() optimizer.Stats {
	return c.optimizer.GetStats()
}

// DedupStats returns the read-path counters.
func (c *Client) DedupStats() dedup.Stats {
	return c.dedup.GetStats()
}

// ExecutorStats returns the write-path counters.
func (c *Client) ExecutorStats() executor.Stats {
	return c.executor.GetStats()
}
