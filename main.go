package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/agent/calibration"
	"github.com/okieraised/greenhouse-agent/internal/agent/file_log_writer"
	"github.com/okieraised/greenhouse-agent/internal/agent/log_archiver"
	"github.com/okieraised/greenhouse-agent/internal/agent/mqtt_logger"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/local_cache"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/mqtt_client"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/s3_client"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/tracer_client"
	"github.com/okieraised/greenhouse-agent/internal/server/grpc_server"
	"github.com/okieraised/greenhouse-agent/internal/server/monitoring"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/routers"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/services/v1/restful"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/services/v1/ws"
	"github.com/okieraised/greenhouse-agent/internal/signaling"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var once sync.Once

func mirrorEnvCase() {
	for _, kv := range os.Environ() {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		k, v := kv[:i], kv[i+1:]
		_ = os.Setenv(strings.ToUpper(k), v)
		_ = os.Setenv(strings.ToLower(k), v)
	}
}

func loadDotenvIfExists(filename string, overload bool) (bool, error) {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if overload {
		return true, godotenv.Overload(filename)
	}
	return true, godotenv.Load(filename)
}

func readConfigIfExists(path string, merge bool) (bool, error) {
	viper.SetConfigFile(path)
	var err error
	if merge {
		err = viper.MergeInConfig()
	} else {
		err = viper.ReadInConfig()
	}
	if err == nil {
		return true, nil
	}
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) || os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func detectProfile() string {
	from := func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return strings.ToLower(v), true
		}
		if v, ok := os.LookupEnv(strings.ToUpper(k)); ok {
			return strings.ToLower(v), true
		}
		if v, ok := os.LookupEnv(strings.ToLower(k)); ok {
			return strings.ToLower(v), true
		}
		return "", false
	}
	if v, ok := from("APP_ENV"); ok {
		return v
	}
	return "dev"
}

func Load() error {
	envFound, err := loadDotenvIfExists(".env", false)
	if err != nil {
		return err
	}
	if envFound {
		mirrorEnvCase()
	}
	profile := detectProfile()

	if pfFound, err := func() (bool, error) {
		found, e := loadDotenvIfExists("."+profile+".env", true)
		if found {
			mirrorEnvCase()
		}
		return found, e
	}(); err != nil {
		return err
	} else if pfFound {
	}

	cfgFound, err := readConfigIfExists("conf/config.toml", false)
	if err != nil {
		return err
	}

	if !envFound && !cfgFound {
		return fmt.Errorf("no configuration sources found: missing both .env and conf/config.toml")
	}

	if _, err := readConfigIfExists("conf/"+profile+".config.toml", true); err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	return nil
}

func init() {
	once.Do(func() {
		err := Load()
		if err != nil {
			panic(fmt.Sprintf("Failed to setup service configuration: %v", err))
		}

		// Init default logger
		err = log.InitDefault()
		if err != nil {
			panic(err)
		}
	})
}

// agent holds the long-lived components shared by the pipeline and the
// HTTP, gRPC and websocket surfaces.
type agent struct {
	id         string
	logRoot    string
	channels   *log.Channels
	store      *store.GormStore
	sensors    *local_cache.SensorCache
	hub        *signaling.WebsocketHub
	transport  *mqtt_client.Client
	calibrator *calibration.Engine
	configs    *alert_evaluator.ConfigCache
	refresher  *alert_evaluator.Refresher
	pipeline   *mqtt_logger.Pipeline
	archiver   *log_archiver.Archiver
	closers    []func()
}

func newAgent(ctx context.Context) (*agent, error) {
	a := &agent{
		id:      config.GetString(config.AgentID, constants.MqttDefaultClientID),
		logRoot: config.GetString(config.FileLogRootDir, constants.FileLogDefaultRootDir),
	}

	channels, err := log.NewChannels(a.logRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log channels")
	}
	a.channels = channels
	a.closers = append(a.closers, func() { _ = channels.Sync() })

	log.Default().Info("Started initializing persistent store")
	a.store, err = store.New(store.WithLogger(channels.Database))
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to initialize persistent store")
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })
	log.Default().Info("Finished initializing persistent store")

	a.sensors, err = local_cache.NewSensorCache(
		local_cache.WithTTL(config.GetDuration(config.PipelineSensorCacheTTL, constants.PipelineDefaultSensorCacheTTL)),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to initialize sensor cache")
	}
	a.closers = append(a.closers, a.sensors.Close)

	a.transport = mqtt_client.NewClient(
		config.GetString(config.MqttEndpoint, constants.MqttDefaultEndpoint),
		config.GetString(config.MqttClientId, constants.MqttDefaultClientID),
		mqtt_client.WithLogger(channels.Service),
	)

	a.hub = signaling.NewWebsocketHub(a.id, channels.Service)
	a.calibrator = calibration.NewEngine(channels.Calibration)
	a.configs = alert_evaluator.NewConfigCache()

	evalOpts := []alert_evaluator.Option{
		alert_evaluator.WithLogger(channels.Alerts),
		alert_evaluator.WithEmailNotifier(alert_evaluator.NewEmailRequestLogger(channels.Alerts)),
	}
	if config.GetBool(config.AgentEnablePush, true) {
		push := alert_evaluator.Notifiers{a.hub}
		if topic := config.GetString(config.MqttNotificationTopic, ""); topic != "" {
			push = append(push, signaling.NewMQTTPublisher(a.transport, topic, a.id))
		}
		evalOpts = append(evalOpts, alert_evaluator.WithPushNotifier(push))
	}
	evaluator := alert_evaluator.NewEvaluator(a.store, a.configs, evalOpts...)

	a.refresher = alert_evaluator.NewRefresher(a.store, a.configs,
		alert_evaluator.WithRefreshLogger(channels.Service),
		alert_evaluator.WithCalibrationPruner(a.calibrator),
		alert_evaluator.WithClearer(a.sensors),
	)

	files := file_log_writer.New(a.logRoot,
		file_log_writer.WithErrorLog(channels.Error),
		file_log_writer.WithRetry(
			config.GetInt(config.FileLogWriteAttempts, constants.FileLogDefaultWriteAttempts),
			config.GetDuration(config.FileLogWriteRetryDelay, constants.FileLogDefaultWriteRetryDelay),
		),
	)

	a.pipeline, err = mqtt_logger.New(a.transport, mqtt_logger.Components{
		Store:       a.store,
		Sensors:     a.sensors,
		Calibration: a.calibrator,
		Evaluator:   evaluator,
		Refresher:   a.refresher,
		Files:       files,
	}, mqtt_logger.WithChannels(channels))
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to initialize mqtt logger")
	}

	if viper.GetBool(config.AgentEnableS3) {
		log.Default().Info("Started initializing client connection to external S3 storage")
		if err = s3_client.NewS3Client(ctx); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to initialize client connection to external S3 storage")
		}
		a.archiver, err = log_archiver.New(a.logRoot, s3_client.Client(), log_archiver.WithLogger(channels.Service))
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to initialize log archiver")
		}
		log.Default().Info("Finished initializing client connection to external S3 storage")
	}

	return a, nil
}

// Close releases the resources in reverse order of acquisition.
func (a *agent) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *agent) registerRoutes() func(engine *gin.Engine) {
	appState := routers.NewAppState()

	v1RestState := routers.NewV1RestState()
	v1RestState.SetHealthcheckService(
		restful.NewHealthcheckService(restful.WithStatusProvider(a.pipeline)),
	)
	v1RestState.SetAlertService(
		restful.NewAlertService(
			restful.WithReadingChecker(a.pipeline),
			restful.WithAlertResolver(a.store),
			restful.WithConfigSnapshotter(a.configs),
		),
	)
	v1RestState.SetCalibrationService(
		restful.NewCalibrationService(restful.WithCalibrationEngine(a.calibrator)),
	)
	appState.SetV1RestState(v1RestState)

	websocketState := routers.NewWebsocketState()
	websocketState.SetWebsocketService(
		ws.NewWebsocketService(
			ws.WithWebsocketHub(a.hub),
		),
	)
	appState.SetWebsocketState(websocketState)

	return routers.NewRootRouter(appState).InitRouters
}

func initTracing() (func(ctx context.Context) error, error) {
	if !viper.GetBool(config.AgentEnableTracing) {
		return func(context.Context) error { return nil }, nil
	}
	log.Default().Info("Started initializing OTEL tracer")
	shutdown, err := tracer_client.NewTracerClient()
	if err != nil {
		return nil, err
	}
	log.Default().Info("Finished initializing OTEL tracer")
	return shutdown, nil
}

func main() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	parentCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := initTracing()
	if err != nil {
		log.Default().Fatal(fmt.Sprintf("Failed to initialize OTEL tracer: %v", err))
	}
	defer func() {
		tCtx, tCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tCancel()
		if tErr := shutdownTracing(tCtx); tErr != nil {
			log.Default().Error("failed to flush traces", zap.Error(tErr))
		}
	}()

	a, err := newAgent(parentCtx)
	if err != nil {
		log.Default().Fatal(err.Error())
	}
	defer a.Close()
	log.Default().Info("Finished initializing connection to external services")

	g, ctx := errgroup.WithContext(parentCtx)

	// MQTT ingestion pipeline
	g.Go(func() error {
		if pErr := a.pipeline.Run(ctx); pErr != nil {
			return pErr
		}
		return ctx.Err()
	})

	// Alert configuration refresh
	g.Go(func() error {
		if rErr := a.refresher.Run(ctx); rErr != nil {
			return rErr
		}
		return ctx.Err()
	})

	// Notification hub
	g.Go(func() error {
		if hErr := a.hub.Run(ctx); hErr != nil {
			return hErr
		}
		return ctx.Err()
	})

	// Init GRPC health server
	g.Go(func() error {
		if viper.GetBool(config.AgentEnableGRPC) {
			gErr := grpc_server.ListenAndServe(ctx, a.transport.IsConnected)
			if gErr != nil {
				return gErr
			}
		}
		return ctx.Err()
	})

	// Init profiling
	g.Go(func() error {
		if viper.GetBool(config.AgentEnableMonitoring) {
			mErr := monitoring.NewMonitoringServer(ctx)
			if mErr != nil {
				return mErr
			}
		}
		return ctx.Err()
	})

	// Log archive
	g.Go(func() error {
		if a.archiver != nil {
			if aErr := a.archiver.Run(ctx); aErr != nil {
				return aErr
			}
		}
		return ctx.Err()
	})

	// Init HTTP server
	g.Go(func() error {
		rErr := rest_server.NewHTTPServer(ctx, a.registerRoutes())
		if rErr != nil {
			return rErr
		}
		return ctx.Err()
	})

	select {
	case sig := <-sigCh:
		log.Default().Debug(fmt.Sprintf("Signal received: %v", sig))
		cancel()

		done := make(chan error, 1)
		go func() {
			done <- g.Wait()
		}()

		select {
		case <-done:
			log.Default().Info("All tasks exited, shutting down agent")
			return
		case sig2 := <-sigCh:
			log.Default().Debug(fmt.Sprintf("Second signal received: %v", sig2))
			return
		case <-time.After(constants.GraceWaitPeriod):
			log.Default().Info("Grace period timed out, forcing exit")
			return
		}

	case err = <-func() chan error {
		ch := make(chan error, 1)
		go func() {
			ch <- g.Wait()
		}()
		return ch
	}():
		log.Default().Info(fmt.Sprintf("Services finished early with error: %v", err))
	}
}
