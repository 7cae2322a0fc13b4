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
)

type CalibrationRouter struct {
	svc    restful.ICalibrationService
	logger *log.Logger
	tracer trace.Tracer
}

func NewCalibrationRouter(svc restful.ICalibrationService) *CalibrationRouter {
	logger := log.MustNewECSLogger()
	return &CalibrationRouter{
		svc:    svc,
		logger: logger,
		tracer: tracer_client.Tracer("calibration"),
	}
}

func (r *CalibrationRouter) Routes(engine *gin.RouterGroup) {
	routes := engine.Group("/calibration")
	routes.GET("", r.listStates)
}

func (r *CalibrationRouter) listStates(ctx *gin.Context) {
	rootCtx, span := r.tracer.Start(ctx, ctx.Request.URL.Path, trace.WithAttributes(attribute.KeyValue{
		Key:   constants.APIFieldRequestID,
		Value: attribute.StringValue(ctx.GetString(constants.APIFieldRequestID)),
	}))
	defer span.End()

	resp := api_response.New[any](ctx)
	input := &restful.CalibrationInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
	}
	if raw, ok := ctx.GetQuery("calibrated"); ok {
		calibrated, err := strconv.ParseBool(raw)
		if err != nil {
			appErr := cerrors.ErrGenericBadRequest.WithMessage("calibrated must be a boolean")
			resp.Populate(appErr.Code, appErr.Message, nil, nil, nil)
			ctx.JSON(appErr.HTTPStatus, resp)
			return
		}
		input.Calibrated = &calibrated
	}

	result, appErr := r.svc.ListStates(ctx, input)
	if appErr != nil {
		r.logger.Error(appErr.Error())
		resp.Populate(appErr.Code, appErr.Message, nil, nil, nil)
		ctx.JSON(cerrors.HTTPStatusOf(appErr), resp)
		return
	}

	resp.Populate(result.Code, result.Message, result.Data, nil, result.Count)
	ctx.JSON(http.StatusOK, resp)
}
