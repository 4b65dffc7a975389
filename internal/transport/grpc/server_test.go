package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type flakyStore struct {
	down atomic.Bool
}

func (f *flakyStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("storage down")
	}
	return nil
}

func startServer(t *testing.T, store Pinger, every time.Duration) (*Server, healthpb.HealthClient) {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	srv := New("bufnet", store, every)
	srv.Serve(context.Background(), ln)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_ServingByDefault(t *testing.T) {
	srv, c := startServer(t, nil, 0)
	defer srv.Stop(context.Background())

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	_, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth_FollowsStorageProbe(t *testing.T) {
	store := &flakyStore{}
	srv, c := startServer(t, store, 10*time.Millisecond)
	defer srv.Stop(context.Background())

	statusOf := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	store.down.Store(true)
	require.Eventually(t, func() bool {
		return statusOf("") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	store.down.Store(false)
	require.Eventually(t, func() bool {
		return statusOf(ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnaryInterceptor_EchoesRequestID(t *testing.T) {
	srv, c := startServer(t, nil, 0)
	defer srv.Stop(context.Background())

	ctx := metadata.AppendToOutgoingContext(context.Background(), mdRequestID, "req-42")
	var header metadata.MD
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	require.Equal(t, []string{"req-42"}, header.Get(mdRequestID))
}

func TestUnaryInterceptor_RecoversPanic(t *testing.T) {
	ic := UnaryServerInterceptor()
	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) { panic("boom") })
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryInterceptor_AddsDeadline(t *testing.T) {
	ic := UnaryServerInterceptor()
	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Deadline"},
		func(ctx context.Context, _ any) (any, error) {
			_, ok := ctx.Deadline()
			require.True(t, ok)
			return nil, nil
		})
	require.NoError(t, err)
}
