package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arl/statsviz"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func getMonitoringPort() int {
	port := viper.GetInt(config.AgentMonitoringPort)
	if port <= 0 {
		return constants.AgentDefaultMonitoringPort
	}
	return port
}

// NewMux serves the statsviz dashboard under /debug/statsviz and the
// Prometheus collectors under /metrics.
func NewMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return nil, err
	}
	mux.Handle("/metrics", promhttp.Handler())
	return mux, nil
}

func NewMonitoringServer(ctx context.Context) error {
	log.Default().Info("Starting monitoring server")
	mux, err := NewMux()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", getMonitoringPort()),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if sErr := srv.ListenAndServe(); sErr != nil && !errors.Is(sErr, http.ErrServerClosed) {
			errCh <- sErr
		}
	}()

	select {
	case <-ctx.Done():
		log.Default().Info("Shutting down monitoring server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
			_ = srv.Close()
		}
		return nil
	case err = <-errCh:
		log.Default().Error(errors.Wrap(err, "failed to start monitoring server").Error())
		return err
	}
}
