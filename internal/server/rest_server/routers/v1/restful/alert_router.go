package restful

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/api_response"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/tracer_client"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/services/v1/restful"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type AlertRouter struct {
	svc    restful.IAlertService
	logger *log.Logger
	tracer trace.Tracer
}

func NewAlertRouter(svc restful.IAlertService) *AlertRouter {
	logger := log.MustNewECSLogger()
	return &AlertRouter{
		svc:    svc,
		logger: logger,
		tracer: tracer_client.Tracer("alerts"),
	}
}

func (r *AlertRouter) Routes(engine *gin.RouterGroup) {
	readings := engine.Group("/readings")
	readings.POST("/evaluate", r.evaluate)

	alerts := engine.Group("/alerts")
	alerts.GET("/configs", r.listConfigs)
	alerts.GET("/default-thresholds", r.defaultThresholds)
	alerts.POST("/refresh", r.refresh)
	alerts.POST("/:id/resolve", r.resolve)
}

type evaluateReadingRequest struct {
	Topic string   `json:"topic" binding:"required"`
	Value *float64 `json:"value" binding:"required"`
}

func (r *AlertRouter) startSpan(ctx *gin.Context) (restful.AlertBaseInput, trace.Span) {
	rootCtx, span := r.tracer.Start(ctx, ctx.Request.URL.Path, trace.WithAttributes(attribute.KeyValue{
		Key:   constants.APIFieldRequestID,
		Value: attribute.StringValue(ctx.GetString(constants.APIFieldRequestID)),
	}))
	return restful.AlertBaseInput{TracerCtx: rootCtx, Tracer: r.tracer}, span
}

func (r *AlertRouter) write(ctx *gin.Context, result *api_response.BaseOutput, appErr *cerrors.AppError) {
	resp := api_response.New[any](ctx)
	if appErr != nil {
		r.logger.With(
			zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
		).Debug(appErr.Error())
		resp.Populate(appErr.Code, appErr.Message, nil, nil, nil)
		ctx.JSON(cerrors.HTTPStatusOf(appErr), resp)
		return
	}
	var count any
	if result.Count > 0 {
		count = result.Count
	}
	resp.Populate(result.Code, result.Message, result.Data, nil, count)
	ctx.JSON(http.StatusOK, resp)
}

func (r *AlertRouter) evaluate(ctx *gin.Context) {
	base, span := r.startSpan(ctx)
	defer span.End()

	var req evaluateReadingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		r.write(ctx, nil, cerrors.ErrGenericBadRequest.WithMessage("%s", err.Error()))
		return
	}

	result, appErr := r.svc.Evaluate(ctx, &restful.EvaluateReadingInput{
		AlertBaseInput: base,
		Topic:          req.Topic,
		Value:          *req.Value,
	})
	r.write(ctx, result, appErr)
}

func (r *AlertRouter) refresh(ctx *gin.Context) {
	base, span := r.startSpan(ctx)
	defer span.End()

	result, appErr := r.svc.Refresh(ctx, &base)
	r.write(ctx, result, appErr)
}

func (r *AlertRouter) resolve(ctx *gin.Context) {
	base, span := r.startSpan(ctx)
	defer span.End()

	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		r.write(ctx, nil, cerrors.ErrGenericBadRequest.WithMessage("invalid alert id"))
		return
	}

	result, appErr := r.svc.Resolve(ctx, &restful.ResolveAlertInput{
		AlertBaseInput: base,
		AlertID:        id,
	})
	r.write(ctx, result, appErr)
}

func (r *AlertRouter) listConfigs(ctx *gin.Context) {
	base, span := r.startSpan(ctx)
	defer span.End()

	result, appErr := r.svc.ListConfigs(ctx, &base)
	r.write(ctx, result, appErr)
}

func (r *AlertRouter) defaultThresholds(ctx *gin.Context) {
	base, span := r.startSpan(ctx)
	defer span.End()

	result, appErr := r.svc.DefaultThresholds(ctx, &base)
	r.write(ctx, result, appErr)
}
