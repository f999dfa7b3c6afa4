package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "pulsewatch.v1.IngestService"

	// IngestMethod is the full method path of IngestService.Ingest.
	IngestMethod = "/" + ServiceName + "/Ingest"
)

// IngestResponse is the reply to a successful ingestion.
type IngestResponse struct {
	Sample types.Sample  `json:"sample"`
	Alerts []types.Alert `json:"alerts"`
}

// IngestServer is the server API for IngestService.
type IngestServer interface {
	Ingest(ctx context.Context, in *types.Reading) (*IngestResponse, error)
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes IngestService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: ingestHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pulsewatch/v1/ingest",
}

func ingestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.Reading)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IngestMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Ingest(ctx, req.(*types.Reading))
	}
	return interceptor(ctx, in, info, handler)
}

// IngestClient calls IngestService over a client connection.
type IngestClient struct {
	cc grpc.ClientConnInterface
}

// NewIngestClient returns a client bound to cc.
func NewIngestClient(cc grpc.ClientConnInterface) *IngestClient {
	return &IngestClient{cc: cc}
}

// Ingest sends one reading to the server.
func (c *IngestClient) Ingest(ctx context.Context, in *types.Reading, opts ...grpc.CallOption) (*IngestResponse, error) {
	out := new(IngestResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Codec)}, opts...)
	if err := c.cc.Invoke(ctx, IngestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
