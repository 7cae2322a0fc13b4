package restful

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/api_response"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReadingChecker runs a value through the alert path of the pipeline.
type ReadingChecker interface {
	CheckReading(ctx context.Context, topic string, value float64) (alert_evaluator.Result, error)
	SignalRefresh()
}

type AlertResolver interface {
	ResolveAlert(ctx context.Context, alertID int) error
}

type ConfigSnapshotter interface {
	Snapshot() []alert_evaluator.AlertConfig
}

type IAlertService interface {
	Evaluate(ctx *gin.Context, input *EvaluateReadingInput) (*api_response.BaseOutput, *cerrors.AppError)
	Refresh(ctx *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError)
	Resolve(ctx *gin.Context, input *ResolveAlertInput) (*api_response.BaseOutput, *cerrors.AppError)
	ListConfigs(ctx *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError)
	DefaultThresholds(ctx *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError)
}

type AlertService struct {
	logger   *log.Logger
	checker  ReadingChecker
	resolver AlertResolver
	configs  ConfigSnapshotter
}

func NewAlertService(options ...func(*AlertService)) *AlertService {
	svc := &AlertService{}
	for _, opt := range options {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = log.MustNewECSLogger()
	}
	return svc
}

func WithReadingChecker(c ReadingChecker) func(*AlertService) {
	return func(svc *AlertService) {
		svc.checker = c
	}
}

func WithAlertResolver(r AlertResolver) func(*AlertService) {
	return func(svc *AlertService) {
		svc.resolver = r
	}
}

func WithConfigSnapshotter(c ConfigSnapshotter) func(*AlertService) {
	return func(svc *AlertService) {
		svc.configs = c
	}
}

func WithAlertLogger(l *log.Logger) func(*AlertService) {
	return func(svc *AlertService) {
		svc.logger = l
	}
}

type AlertBaseInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
}

type EvaluateReadingInput struct {
	AlertBaseInput
	Topic string
	Value float64
}

type ResolveAlertInput struct {
	AlertBaseInput
	AlertID int
}

type DefaultThreshold struct {
	SensorType  models.SensorType `json:"sensor_type"`
	Name        string            `json:"name"`
	Unit        string            `json:"unit"`
	Threshold   string            `json:"threshold"`
	Description string            `json:"description"`
}

func (svc *AlertService) requestLogger(ctx *gin.Context) *log.Logger {
	return svc.logger.With(
		zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
	)
}

func (svc *AlertService) Evaluate(ctx *gin.Context, input *EvaluateReadingInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "evaluate-reading")
	defer span.End()

	lg := svc.requestLogger(ctx)
	if strings.TrimSpace(input.Topic) == "" {
		return nil, cerrors.ErrMissingSensorTopic
	}
	if math.IsNaN(input.Value) || math.IsInf(input.Value, 0) {
		return nil, cerrors.ErrInvalidReadingValue
	}
	if svc.checker == nil {
		return nil, cerrors.ErrGenericInternalServer
	}

	result, err := svc.checker.CheckReading(rootCtx, input.Topic, input.Value)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, cerrors.ErrSensorNotFound.WithCause(err)
		case errors.Is(err, cerrors.ErrMissingSensorTopic):
			return nil, cerrors.ErrMissingSensorTopic
		case cerrors.IsTransient(err):
			lg.Error("store unavailable while evaluating reading", zap.Error(err))
			return nil, cerrors.ErrStoreUnavailable.WithCause(err)
		default:
			lg.Error("failed to evaluate reading", zap.Error(err))
			return nil, cerrors.ErrGenericInternalServer.WithCause(err)
		}
	}

	resp := &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
		Data:    result,
	}
	if result.Outcome == alert_evaluator.OutcomeNoConfig {
		resp.Code = cerrors.ErrNoAlertConfiguration.Code
		resp.Message = cerrors.ErrNoAlertConfiguration.Message
	}
	return resp, nil
}

func (svc *AlertService) Refresh(ctx *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError) {
	_, span := input.Tracer.Start(input.TracerCtx, "signal-refresh")
	defer span.End()

	if svc.checker == nil {
		return nil, cerrors.ErrGenericInternalServer
	}
	svc.checker.SignalRefresh()
	svc.requestLogger(ctx).Info("alert configuration refresh requested")

	return &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
	}, nil
}

func (svc *AlertService) Resolve(ctx *gin.Context, input *ResolveAlertInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "resolve-alert")
	defer span.End()

	if input.AlertID <= 0 {
		return nil, cerrors.ErrGenericBadRequest.WithMessage("invalid alert id")
	}
	if svc.resolver == nil {
		return nil, cerrors.ErrGenericInternalServer
	}

	lg := svc.requestLogger(ctx)
	if err := svc.resolver.ResolveAlert(rootCtx, input.AlertID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, cerrors.ErrAlertNotFound
		case cerrors.IsTransient(err):
			lg.Error("store unavailable while resolving alert", zap.Int("alert_id", input.AlertID), zap.Error(err))
			return nil, cerrors.ErrStoreUnavailable.WithCause(err)
		default:
			lg.Error("failed to resolve alert", zap.Int("alert_id", input.AlertID), zap.Error(err))
			return nil, cerrors.ErrGenericInternalServer.WithCause(err)
		}
	}
	lg.Info("alert resolved", zap.Int("alert_id", input.AlertID))

	return &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
		Data:    map[string]int{"alert_id": input.AlertID},
	}, nil
}

func (svc *AlertService) ListConfigs(_ *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError) {
	_, span := input.Tracer.Start(input.TracerCtx, "list-alert-configs")
	defer span.End()

	configs := []alert_evaluator.AlertConfig{}
	if svc.configs != nil {
		configs = svc.configs.Snapshot()
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].SensorID < configs[j].SensorID })

	return &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
		Data:    configs,
		Count:   len(configs),
	}, nil
}

func (svc *AlertService) DefaultThresholds(_ *gin.Context, input *AlertBaseInput) (*api_response.BaseOutput, *cerrors.AppError) {
	_, span := input.Tracer.Start(input.TracerCtx, "default-thresholds")
	defer span.End()

	types := []models.SensorType{
		models.SensorTypeTemperature,
		models.SensorTypeCO2,
		models.SensorTypeBrightness,
		models.SensorTypeHumidity,
	}
	out := make([]DefaultThreshold, 0, len(types))
	for _, t := range types {
		out = append(out, DefaultThreshold{
			SensorType:  t,
			Name:        t.DisplayName(),
			Unit:        t.Unit(),
			Threshold:   t.DefaultThreshold(),
			Description: t.String(),
		})
	}

	return &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
		Data:    out,
		Count:   len(out),
	}, nil
}
