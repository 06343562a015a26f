package client

import (
	"context"
	"fmt"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

// GRPCBackend talks to an OpenFGA server over gRPC, with the store and
// authorization model bound at construction.
type GRPCBackend struct {
	api     openfgav1.OpenFGAServiceClient
	storeID string
	modelID string
}

var _ Backend = (*GRPCBackend)(nil)

func NewGRPCBackend(conn grpc.ClientConnInterface, storeID, modelID string) *GRPCBackend {
	return &GRPCBackend{
		api:     openfgav1.NewOpenFGAServiceClient(conn),
		storeID: storeID,
		modelID: modelID,
	}
}

func (b *GRPCBackend) Check(ctx context.Context, user, relation, object string, contextualTuples []*openfgav1.TupleKey, requestContext *structpb.Struct) (bool, error) {
	req := &openfgav1.CheckRequest{
		StoreId:              b.storeID,
		AuthorizationModelId: b.modelID,
		TupleKey:             tupleUtils.NewCheckRequestTupleKey(object, relation, user),
		Context:              requestContext,
	}

	if len(contextualTuples) > 0 {
		req.ContextualTuples = &openfgav1.ContextualTupleKeys{TupleKeys: contextualTuples}
	}

	resp, err := b.api.Check(ctx, req)
	if err != nil {
		return false, fmt.Errorf("check failed: %w", err)
	}

	return resp.GetAllowed(), nil
}

func (b *GRPCBackend) WriteTuples(ctx context.Context, writes *openfgav1.WriteRequestWrites, deletes *openfgav1.WriteRequestDeletes) error {
	_, err := b.api.Write(ctx, &openfgav1.WriteRequest{
		StoreId:              b.storeID,
		AuthorizationModelId: b.modelID,
		Writes:               writes,
		Deletes:              deletes,
	})
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}
