package receiver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/rpc"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/ingest"
)

// Ingester runs a reading through the pipeline. *ingest.Coordinator
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, r types.Reading) (ingest.Result, error)
}

// Receiver implements rpc.IngestServer on top of an Ingester.
type Receiver struct {
	ing Ingester
	log *zap.Logger
}

// New creates a Receiver that hands readings to ing.
func New(ing Ingester, log *zap.Logger) *Receiver {
	return &Receiver{ing: ing, log: logging.OrNop(log)}
}

// Ingest is the unary RPC handler called by pulsewatch-agent instances.
func (r *Receiver) Ingest(ctx context.Context, in *types.Reading) (*rpc.IngestResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "reading is required")
	}
	res, err := r.ing.Ingest(ctx, *in)
	if err != nil {
		return nil, toStatus(err)
	}

	r.log.Debug("receiver: reading ingested",
		zap.String("sample_id", res.Sample.ID),
		zap.String("device_id", res.Sample.DeviceID),
		zap.Int("alerts", len(res.Alerts)),
	)
	return &rpc.IngestResponse{Sample: res.Sample, Alerts: res.Alerts}, nil
}

// toStatus maps pipeline errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, types.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var _ rpc.IngestServer = (*Receiver)(nil)
