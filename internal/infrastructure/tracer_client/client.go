package tracer_client

import (
	"context"
	"sync"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

var (
	tp   *sdktrace.TracerProvider
	once sync.Once
)

// Options configures NewTracerClient.
type Options struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	// InstanceID tells apart agents that share a service name, one per site.
	InstanceID  string
	SampleRatio float64
	Timeout     time.Duration
}

type Option func(*Options)

func WithEndpoint(ep string) Option {
	return func(o *Options) { o.Endpoint = ep }
}

func WithInsecure(insecure bool) Option {
	return func(o *Options) { o.Insecure = insecure }
}

func WithServiceName(name string) Option {
	return func(o *Options) { o.ServiceName = name }
}

func WithInstanceID(id string) Option {
	return func(o *Options) { o.InstanceID = id }
}

func WithSampleRatio(r float64) Option {
	return func(o *Options) { o.SampleRatio = r }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func defaultOptionsFromViper() Options {
	return Options{
		Endpoint:    config.GetString(config.TracingEndpoint, ""),
		Insecure:    config.GetBool(config.TracingInsecure, false),
		ServiceName: config.GetString(config.TracingServiceName, constants.TracingDefaultServiceName),
		InstanceID:  config.GetString(config.AgentID, constants.MqttDefaultClientID),
		SampleRatio: 1,
		Timeout:     constants.TracingDefaultInitTimeout,
	}
}

func buildOptions(opts []Option) Options {
	opt := defaultOptionsFromViper()
	for _, o := range opts {
		if o != nil {
			o(&opt)
		}
	}
	if opt.Timeout <= 0 {
		opt.Timeout = constants.TracingDefaultInitTimeout
	}
	if opt.SampleRatio <= 0 || opt.SampleRatio > 1 {
		opt.SampleRatio = 1
	}
	return opt
}

// NewTracerClient installs the process tracer provider, exporting spans of the
// HTTP handlers over OTLP/gRPC. Only the first call has an effect.
func NewTracerClient(opts ...Option) (func(ctx context.Context) error, error) {
	var initErr error
	once.Do(func() {
		opt := buildOptions(opts)
		if opt.Endpoint == "" {
			initErr = errors.New("tracing endpoint is not configured")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), opt.Timeout)
		defer cancel()

		grpcOpts := []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
		}
		if opt.Insecure {
			grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}

		traceClient := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(opt.Endpoint),
			otlptracegrpc.WithDialOption(grpcOpts...),
		)

		exp, err := otlptrace.New(ctx, traceClient)
		if err != nil {
			initErr = errors.Wrap(err, "create otlp trace exporter")
			return
		}

		res, err := resource.New(ctx,
			resource.WithFromEnv(),
			resource.WithProcess(),
			resource.WithTelemetrySDK(),
			resource.WithHost(),
			resource.WithAttributes(
				semconv.ServiceName(opt.ServiceName),
				semconv.ServiceInstanceID(opt.InstanceID),
			),
		)
		if err != nil {
			initErr = errors.Wrap(err, "create resource")
			return
		}

		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opt.SampleRatio))

		tp = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(
				exp,
				sdktrace.WithBatchTimeout(5*time.Second),
				sdktrace.WithExportTimeout(10*time.Second),
			),
		)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			),
		)
	})

	if initErr != nil {
		return nil, initErr
	}
	return Shutdown, nil
}

// MustTracerClient panics on error.
func MustTracerClient(opts ...Option) func(ctx context.Context) error {
	shutdown, err := NewTracerClient(opts...)
	if err != nil {
		panic(err)
	}
	return shutdown
}

func Provider() *sdktrace.TracerProvider { return tp }

func Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if tp == nil {
		return otel.Tracer(name, opts...)
	}
	return tp.Tracer(name, opts...)
}

func Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	err := tp.Shutdown(ctx)
	tp = nil
	return err
}
