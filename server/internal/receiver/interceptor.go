package receiver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
)

// RequestIDHeader is the metadata key agents may set to correlate logs.
const RequestIDHeader = "x-request-id"

// LoggingInterceptor returns a UnaryServerInterceptor that logs every call
// with its method, code and latency, and turns handler panics into
// codes.Internal.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	log = logging.OrNop(log)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		fields := []zap.Field{zap.String("method", info.FullMethod)}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				fields = append(fields, zap.String("request_id", vals[0]))
			}
		}

		defer func() {
			if r := recover(); r != nil {
				log.Error("receiver: handler panic", append(fields, zap.Any("panic", r))...)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			fields = append(fields, zap.Stringer("code", code), zap.Duration("duration", time.Since(start)))
			switch code {
			case codes.OK:
				log.Debug("receiver: call", fields...)
			case codes.Internal, codes.Unknown:
				log.Error("receiver: call failed", append(fields, zap.Error(err))...)
			default:
				log.Info("receiver: call rejected", append(fields, zap.Error(err))...)
			}
		}()

		return handler(ctx, req)
	}
}
