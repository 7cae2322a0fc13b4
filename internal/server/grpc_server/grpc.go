package grpc_server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// PipelineService is the health service name reporting the broker connection.
const PipelineService = "greenhouse.Pipeline"

func getGRPCPort() int {
	port := viper.GetInt(config.AgentGRPCPort)
	if port <= 0 {
		return constants.AgentDefaultGRPCPort
	}
	return port
}

// HealthProbe reports whether the service is able to serve.
type HealthProbe func() bool

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// watchHealth mirrors probe into the health server until ctx is done.
func watchHealth(ctx context.Context, hs *health.Server, probe HealthProbe, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := servingStatus(probe())
	hs.SetServingStatus(PipelineService, last)
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			cur := servingStatus(probe())
			if cur != last {
				log.Default().Info(fmt.Sprintf("%s health changed: %s -> %s", PipelineService, last, cur))
				hs.SetServingStatus(PipelineService, cur)
				last = cur
			}
		}
	}
}

func serverOptions() ([]grpc.ServerOption, error) {
	recovery := grpc_recovery.WithRecoveryHandler(func(p any) error {
		log.Default().Error(fmt.Sprintf("panic recovered: %v", p))
		return status.Error(codes.Internal, "internal server error")
	})

	var serverOpts []grpc.ServerOption

	if viper.GetString(config.AgentTLSCertFile) != "" && viper.GetString(config.AgentTLSKeyFile) != "" {
		cert, err := tls.LoadX509KeyPair(viper.GetString(config.AgentTLSCertFile), viper.GetString(config.AgentTLSKeyFile))
		if err != nil {
			return nil, errors.Wrap(err, "failed to load server cert file")
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		if viper.GetString(config.AgentTLSClientCAFile) != "" {
			caBytes, err := os.ReadFile(viper.GetString(config.AgentTLSClientCAFile))
			if err != nil {
				return nil, errors.Wrap(err, "failed to read client CA file")
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caBytes) {
				return nil, errors.New("failed to append client CA to pool")
			}
			tlsCfg.ClientCAs = pool
			tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	serverOpts = append(serverOpts,
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      2 * time.Hour,
			MaxConnectionAgeGrace: 30 * time.Second,
			Time:                  2 * time.Minute,
			Timeout:               20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(
			keepalive.EnforcementPolicy{
				MinTime:             1 * time.Minute,
				PermitWithoutStream: true,
			}),
		grpc.ChainUnaryInterceptor(grpc_recovery.UnaryServerInterceptor(recovery)),
		grpc.ChainStreamInterceptor(grpc_recovery.StreamServerInterceptor(recovery)),
	)
	return serverOpts, nil
}

// NewGRPCServer serves the standard health service on lis until ctx is done.
// The overall status is always SERVING; PipelineService follows probe.
func NewGRPCServer(ctx context.Context, lis net.Listener, probe HealthProbe) error {
	opts, err := serverOptions()
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		if probe != nil {
			watchHealth(watchCtx, hs, probe, time.Second)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Default().Info(fmt.Sprintf("Starting gRPC server on %s", lis.Addr()))
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Default().Info("Shutting down gRPC server")
		<-watched
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		// hard stop if graceful takes too long
		t := time.NewTimer(3 * time.Second)
		defer t.Stop()
		select {
		case <-stopped:
			return nil
		case <-t.C:
			log.Default().Info("Graceful stop timed out, forcing shutdown")
			grpcServer.Stop()
			return nil
		}
	case err = <-errCh:
		stopWatch()
		<-watched
		return errors.Wrap(err, "failed to start gRPC server")
	}
}

// ListenAndServe opens the configured port and calls NewGRPCServer.
func ListenAndServe(ctx context.Context, probe HealthProbe) error {
	log.Default().Info("Initializing gRPC server")
	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", getGRPCPort()))
	if err != nil {
		wErr := errors.Wrap(err, "failed to listen")
		log.Default().Error(wErr.Error())
		return wErr
	}
	return NewGRPCServer(ctx, lis, probe)
}
