package grpc_server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthFollowsProbe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var connected atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewGRPCServer(ctx, lis, connected.Load)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		defer rcancel()
		resp, err := client.Check(rctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	assert.Eventually(t, func() bool {
		return check("") == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(PipelineService))

	connected.Store(true)
	assert.Eventually(t, func() bool {
		return check(PipelineService) == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}
