package restful

import (
	"context"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/agent/calibration"
	"github.com/okieraised/greenhouse-agent/internal/api_response"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"go.opentelemetry.io/otel/trace"
)

type CalibrationSnapshotter interface {
	Snapshot() []calibration.State
}

type ICalibrationService interface {
	ListStates(ctx *gin.Context, input *CalibrationInput) (*api_response.BaseOutput, *cerrors.AppError)
}

type CalibrationService struct {
	engine CalibrationSnapshotter
}

func NewCalibrationService(options ...func(*CalibrationService)) *CalibrationService {
	svc := &CalibrationService{}
	for _, opt := range options {
		opt(svc)
	}
	return svc
}

func WithCalibrationEngine(e CalibrationSnapshotter) func(*CalibrationService) {
	return func(svc *CalibrationService) {
		svc.engine = e
	}
}

type CalibrationInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	// Calibrated restricts the listing to sensors whose factor is locked.
	Calibrated *bool
}

func (svc *CalibrationService) ListStates(_ *gin.Context, input *CalibrationInput) (*api_response.BaseOutput, *cerrors.AppError) {
	_, span := input.Tracer.Start(input.TracerCtx, "list-calibration-states")
	defer span.End()

	states := []calibration.State{}
	if svc.engine != nil {
		for _, st := range svc.engine.Snapshot() {
			if input.Calibrated != nil && st.IsCalibrated != *input.Calibrated {
				continue
			}
			states = append(states, st)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SensorID < states[j].SensorID })

	return &api_response.BaseOutput{
		Code:    cerrors.OK.Code,
		Message: cerrors.OK.Message,
		Data:    states,
		Count:   len(states),
	}, nil
}
