package rpc_test

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pulsewatch/pulsewatch/pkg/rpc"
	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// --- helpers ---

type echoServer struct {
	got *types.Reading
}

func (s *echoServer) Ingest(_ context.Context, in *types.Reading) (*rpc.IngestResponse, error) {
	s.got = in
	if in.SpO2 == nil {
		return nil, status.Error(codes.InvalidArgument, "spo2 is required")
	}
	return &rpc.IngestResponse{
		Sample: types.Sample{ID: "s-1", PulseRate: *in.PulseRate, SpO2: *in.SpO2, DeviceID: in.DeviceID},
		Alerts: []types.Alert{},
	}, nil
}

func startServer(t *testing.T, srv rpc.IngestServer, opts ...grpc.ServerOption) *rpc.IngestClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(opts...)
	rpc.RegisterIngestServer(s, srv)
	go s.Serve(lis) //nolint:errcheck
	t.Cleanup(s.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return rpc.NewIngestClient(conn)
}

func f(v float64) *float64 { return &v }

// --- tests ---

func TestIngest_RoundTrip(t *testing.T) {
	srv := &echoServer{}
	client := startServer(t, srv)

	resp, err := client.Ingest(context.Background(), &types.Reading{PulseRate: f(72), SpO2: f(98), DeviceID: "band-1"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.Sample.ID != "s-1" || resp.Sample.PulseRate != 72 || resp.Sample.DeviceID != "band-1" {
		t.Errorf("sample: got %+v", resp.Sample)
	}
	if srv.got == nil || srv.got.Steps != nil {
		t.Errorf("server reading: got %+v, want steps unset", srv.got)
	}
}

func TestIngest_StatusPropagates(t *testing.T) {
	client := startServer(t, &echoServer{})

	_, err := client.Ingest(context.Background(), &types.Reading{PulseRate: f(72)})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", status.Code(err))
	}
}

func TestIngest_InterceptorSeesMethod(t *testing.T) {
	var method string
	intercept := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, h grpc.UnaryHandler) (interface{}, error) {
		method = info.FullMethod
		return h(ctx, req)
	}
	client := startServer(t, &echoServer{}, grpc.UnaryInterceptor(intercept))

	if _, err := client.Ingest(context.Background(), &types.Reading{PulseRate: f(60), SpO2: f(95)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if method != rpc.IngestMethod {
		t.Errorf("FullMethod: got %q, want %q", method, rpc.IngestMethod)
	}
}
