package client

import (
	"context"
	"sync"
	"testing"
	"time"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/fgabatch/pkg/cache"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

type fakeBackend struct {
	mu         sync.Mutex
	checkCalls int
	writeCalls []struct {
		writes  int
		deletes int
	}
	allowed  bool
	checkErr error
	writeErr error
}

func (f *fakeBackend) Check(_ context.Context, _, _, _ string, _ []*openfgav1.TupleKey, _ *structpb.Struct) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.checkCalls++
	return f.allowed, f.checkErr
}

func (f *fakeBackend) WriteTuples(_ context.Context, writes *openfgav1.WriteRequestWrites, deletes *openfgav1.WriteRequestDeletes) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writeCalls = append(f.writeCalls, struct {
		writes  int
		deletes int
	}{len(writes.GetTupleKeys()), len(deletes.GetTupleKeys())})
	return f.writeErr
}

func newTestClient(t *testing.T, backend Backend, opts ...ClientOpt) *Client {
	t.Helper()

	c := cache.NewInMemoryCache()
	t.Cleanup(c.Stop)

	cfg := DefaultConfig()
	cfg.Executor.RetryDelay = 0

	client, err := NewClient(cfg, backend, c, opts...)
	require.NoError(t, err)
	return client
}

func TestCheckCachesRepeatedCalls(t *testing.T) {
	backend := &fakeBackend{allowed: true}
	client := newTestClient(t, backend)

	allowed, err := client.Check(context.Background(), "user:anne", "reader", "document:1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = client.Check(context.Background(), "user:anne", "reader", "document:1")
	require.NoError(t, err)
	require.True(t, allowed)

	require.Equal(t, 1, backend.checkCalls)

	stats := client.DedupStats()
	require.Equal(t, 2, stats.TotalRequests)
	require.Equal(t, 1, stats.CacheHits)
}

func TestCheckDistinguishesContextualTuples(t *testing.T) {
	backend := &fakeBackend{allowed: true}
	client := newTestClient(t, backend)

	_, err := client.Check(context.Background(), "user:anne", "reader", "document:1")
	require.NoError(t, err)

	_, err = client.Check(context.Background(), "user:anne", "reader", "document:1",
		WithContextualTuples(tupleUtils.NewTupleKey("document:1", "reader", "user:anne")))
	require.NoError(t, err)

	require.Equal(t, 2, backend.checkCalls)
}

func TestCheckDistinguishesRequestContext(t *testing.T) {
	backend := &fakeBackend{allowed: true}
	client := newTestClient(t, backend)

	requestContext, err := structpb.NewStruct(map[string]any{"ip": "10.0.0.1"})
	require.NoError(t, err)

	_, err = client.Check(context.Background(), "user:anne", "reader", "document:1")
	require.NoError(t, err)

	_, err = client.Check(context.Background(), "user:anne", "reader", "document:1",
		WithRequestContext(requestContext))
	require.NoError(t, err)

	require.Equal(t, 2, backend.checkCalls)
}

func TestWriteBatchCancelsGrantAgainstLaterRevoke(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)

	tk := tupleUtils.NewTupleKey("document:1", "reader", "user:1")

	result, err := client.WriteBatch(
		context.Background(),
		[]*openfgav1.TupleKey{tk},
		[]*openfgav1.TupleKey{tupleUtils.NewTupleKey("document:1", "reader", "user:1")},
	)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, 1, result.TotalOperations)
	require.Len(t, backend.writeCalls, 1)
	require.Zero(t, backend.writeCalls[0].writes)
	require.Equal(t, 1, backend.writeCalls[0].deletes)
}

func TestWriteBatchUpdatesExecutorStats(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)

	_, err := client.WriteBatch(context.Background(), []*openfgav1.TupleKey{
		tupleUtils.NewTupleKey("document:1", "reader", "user:anne"),
		tupleUtils.NewTupleKey("document:2", "reader", "user:anne"),
	}, nil)
	require.NoError(t, err)

	stats := client.ExecutorStats()
	require.Equal(t, 1, stats.TotalBatches)
	require.Equal(t, 2, stats.TotalOperations)
	require.GreaterOrEqual(t, stats.TotalTime, time.Duration(0))
}
