// Package optimizer rewrites batches of tuple mutations before they are sent
// over the wire: duplicate operations are collapsed, contradictory operations
// on the same tuple are resolved by last write wins, and the surviving
// operations are deterministically ordered for backend cache locality.
package optimizer

import (
	"sort"
	"sync"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"go.uber.org/zap"

	"github.com/openfga/fgabatch/internal/utils"
	"github.com/openfga/fgabatch/pkg/logger"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

type operationKind int

const (
	kindWrite operationKind = iota
	kindDelete
)

// operation is a tuple mutation tagged with its kind and arrival position.
// Operations only live for the duration of one optimization pass.
type operation struct {
	kind  operationKind
	tuple *openfgav1.TupleKey
	seq   int
}

// Stats counts the work done by an Optimizer since construction or the last
// ResetStats call. Only OptimizeWrites updates the per-step counters.
type Stats struct {
	OriginalOperations  int
	OptimizedOperations int
	DuplicatesRemoved   int
	ConflictsResolved   int
	OperationsMerged    int
}

// ReductionPercentage returns how much of the original batch the optimization
// pass eliminated, as a percentage.
func (s Stats) ReductionPercentage() float64 {
	if s.OriginalOperations == 0 {
		return 0
	}

	return (1 - float64(s.OptimizedOperations)/float64(s.OriginalOperations)) * 100
}

// Optimizer de-conflicts batches of tuple mutations. Its stats are guarded so
// that instances may be shared across goroutines, but callers interleaving
// batches on one instance will observe interleaved counters; use one instance
// per logical batch when per-batch stats matter.
type Optimizer struct {
	cfg    Config
	logger logger.Logger

	mu    sync.Mutex
	stats Stats
}

type OptimizerOpt func(*Optimizer)

func WithLogger(l logger.Logger) OptimizerOpt {
	return func(o *Optimizer) {
		o.logger = l
	}
}

func New(cfg Config, opts ...OptimizerOpt) (*Optimizer, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	o := &Optimizer{
		cfg:    cfg,
		logger: logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// OptimizeMixed de-conflicts a combined batch of writes and deletes. Within
// the batch, a write and a delete targeting the same tuple cancel down to
// whichever arrived later, and repeated operations of one kind collapse to the
// latest occurrence. The returned lists preserve the arrival order of the
// surviving operations.
//
// This entry point does not update the per-step Stats counters.
func (o *Optimizer) OptimizeMixed(writes, deletes []*openfgav1.TupleKey) ([]*openfgav1.TupleKey, []*openfgav1.TupleKey) {
	ops := make([]operation, 0, len(writes)+len(deletes))
	for _, tk := range writes {
		ops = append(ops, operation{kind: kindWrite, tuple: tk, seq: len(ops)})
	}
	for _, tk := range deletes {
		ops = append(ops, operation{kind: kindDelete, tuple: tk, seq: len(ops)})
	}

	// last write wins: for every tuple only the operation in the latest
	// arrival position survives, regardless of kind
	latest := make(map[string]int, len(ops))
	for _, op := range ops {
		latest[tupleUtils.CanonicalKey(op.tuple)] = op.seq
	}

	optimizedWrites := make([]*openfgav1.TupleKey, 0, len(writes))
	optimizedDeletes := make([]*openfgav1.TupleKey, 0, len(deletes))
	for _, op := range ops {
		if latest[tupleUtils.CanonicalKey(op.tuple)] != op.seq {
			continue
		}

		if op.kind == kindWrite {
			optimizedWrites = append(optimizedWrites, op.tuple)
		} else {
			optimizedDeletes = append(optimizedDeletes, op.tuple)
		}
	}

	if removed := len(ops) - len(optimizedWrites) - len(optimizedDeletes); removed > 0 {
		o.logger.Debug(
			"optimized mixed batch",
			zap.Int("original_operations", len(ops)),
			zap.Int("operations_removed", removed),
		)
	}

	return optimizedWrites, optimizedDeletes
}

// OptimizeWrites runs the full optimization pipeline over a write-only batch:
// duplicate removal, conflict resolution, merge bookkeeping and the final
// deterministic sort. Each step can be disabled individually through the
// Config and operates on whatever list the previous step produced.
func (o *Optimizer) OptimizeWrites(writes []*openfgav1.TupleKey) []*openfgav1.TupleKey {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stats.OriginalOperations = len(writes)

	result := writes

	if o.cfg.RemoveDuplicates {
		result = o.removeDuplicates(result)
	}

	if o.cfg.ResolveConflicts {
		result = o.resolveConflicts(result)
	}

	if o.cfg.MergeRelated {
		o.countMergeable(result)
	}

	if o.cfg.SortOperations {
		result = sortOperations(result)
	}

	o.stats.OptimizedOperations = len(result)

	return result
}

// removeDuplicates collapses operations sharing a canonical tuple key to the
// last occurrence, preserving the relative order of the survivors.
func (o *Optimizer) removeDuplicates(writes []*openfgav1.TupleKey) []*openfgav1.TupleKey {
	latest := make(map[string]int, len(writes))
	for i, tk := range writes {
		latest[tupleUtils.CanonicalKey(tk)] = i
	}

	result := make([]*openfgav1.TupleKey, 0, len(latest))
	for i, tk := range writes {
		if latest[tupleUtils.CanonicalKey(tk)] == i {
			result = append(result, tk)
		}
	}

	o.stats.DuplicatesRemoved += len(writes) - len(result)

	return result
}

// resolveConflicts keeps the last operation of every group that still has more
// than one entry per canonical key, counting one resolved conflict per such
// group. When duplicate removal already ran this is a no-op.
func (o *Optimizer) resolveConflicts(writes []*openfgav1.TupleKey) []*openfgav1.TupleKey {
	counts := make(map[string]int, len(writes))
	latest := make(map[string]int, len(writes))
	for i, tk := range writes {
		key := tupleUtils.CanonicalKey(tk)
		counts[key]++
		latest[key] = i
	}

	result := make([]*openfgav1.TupleKey, 0, len(latest))
	for i, tk := range writes {
		if latest[tupleUtils.CanonicalKey(tk)] == i {
			result = append(result, tk)
		}
	}

	for _, count := range counts {
		if count > 1 {
			o.stats.ConflictsResolved++
		}
	}

	return result
}

// countMergeable groups operations by object and user and counts, per group
// with more than one relation, the operations a smarter backend could combine
// into one wire call. It never modifies the list.
func (o *Optimizer) countMergeable(writes []*openfgav1.TupleKey) {
	groups := make(map[string]int, len(writes))
	for _, tk := range writes {
		groups[tk.GetObject()+"|"+tk.GetUser()]++
	}

	for _, count := range groups {
		if count > 1 {
			o.stats.OperationsMerged += count - 1
		}
	}
}

// sortOperations orders operations by (object type, object id, user, relation)
// ascending. The ordering is a locality hint only and is stable for identical
// input.
func sortOperations(writes []*openfgav1.TupleKey) []*openfgav1.TupleKey {
	result := append([]*openfgav1.TupleKey(nil), writes...)

	sort.SliceStable(result, func(i, j int) bool {
		iType, iID := tupleUtils.SplitObject(result[i].GetObject())
		jType, jID := tupleUtils.SplitObject(result[j].GetObject())

		if iType != jType {
			return iType < jType
		}
		if iID != jID {
			return iID < jID
		}
		if result[i].GetUser() != result[j].GetUser() {
			return result[i].GetUser() < result[j].GetUser()
		}
		return result[i].GetRelation() < result[j].GetRelation()
	})

	return result
}

// ChunkOperations partitions operations into consecutive groups no larger than
// the configured chunk size, preserving order. The final chunk may be smaller.
func (o *Optimizer) ChunkOperations(operations []*openfgav1.TupleKey) [][]*openfgav1.TupleKey {
	return utils.Chunk(operations, o.cfg.ChunkSize)
}

// GetStats returns a snapshot of the optimization counters.
func (o *Optimizer) GetStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.stats
}

// ResetStats zeroes all counters, for reuse of the instance across unrelated batches.
func (o *Optimizer) ResetStats() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stats = Stats{}
}
