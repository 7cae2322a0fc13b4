package restful

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/agent/mqtt_logger"
	"github.com/okieraised/greenhouse-agent/internal/api_response"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StatusProvider reports the state of the ingestion pipeline.
type StatusProvider interface {
	Status() mqtt_logger.Status
}

type IHealthcheckService interface {
	Healthcheck(ctx *gin.Context, input *HealthcheckInput) (*api_response.BaseOutput, *cerrors.AppError)
}

type HealthcheckService struct {
	logger   *log.Logger
	pipeline StatusProvider
}

func NewHealthcheckService(options ...func(*HealthcheckService)) *HealthcheckService {
	svc := &HealthcheckService{}
	for _, opt := range options {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = log.MustNewECSLogger()
	}
	return svc
}

func WithStatusProvider(p StatusProvider) func(*HealthcheckService) {
	return func(svc *HealthcheckService) {
		svc.pipeline = p
	}
}

func WithHealthcheckLogger(l *log.Logger) func(*HealthcheckService) {
	return func(svc *HealthcheckService) {
		svc.logger = l
	}
}

type HealthcheckInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
}

type HealthcheckOutput struct {
	Status   string              `json:"status"`
	Pipeline *mqtt_logger.Status `json:"pipeline,omitempty"`
	Host     HostInfo            `json:"host"`
	Memory   MemoryInfo          `json:"memory"`
	CPU      CPUInfo             `json:"cpu"`
}

type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

type HostInfo struct {
	Hostname        string `json:"hostname"`
	IP              string `json:"ip,omitempty"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
	Uptime          uint64 `json:"uptime"`
}

type CPUInfo struct {
	ModelName    string `json:"model_name"`
	LogicalCores int    `json:"logical_cores"`
}

const (
	healthStatusUp       = "up"
	healthStatusDegraded = "degraded"
)

func (svc *HealthcheckService) Healthcheck(ctx *gin.Context, input *HealthcheckInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "healthcheck-handler")
	defer span.End()

	resp := &api_response.BaseOutput{}
	lg := svc.logger.With(
		zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
	)

	_, cSpan := input.Tracer.Start(rootCtx, "get-host-info")
	hostStat, err := host.InfoWithContext(rootCtx)
	cSpan.End()
	if err != nil {
		lg.Error(errors.Wrap(err, "failed to get host info").Error())
		return nil, cerrors.ErrGenericInternalServer
	}

	_, cSpan = input.Tracer.Start(rootCtx, "get-memory-info")
	memoryInfo, err := mem.VirtualMemoryWithContext(rootCtx)
	cSpan.End()
	if err != nil {
		lg.Error(errors.Wrap(err, "failed to get memory info").Error())
		return nil, cerrors.ErrGenericInternalServer
	}

	_, cSpan = input.Tracer.Start(rootCtx, "get-cpu-info")
	logicalCores, err := cpu.CountsWithContext(rootCtx, true)
	if err != nil {
		cSpan.End()
		lg.Error(errors.Wrap(err, "failed to get cpu info").Error())
		return nil, cerrors.ErrGenericInternalServer
	}
	cpuInfo := CPUInfo{LogicalCores: logicalCores}
	// Model names are not available in every container.
	if cpuStat, cErr := cpu.InfoWithContext(rootCtx); cErr == nil && len(cpuStat) > 0 {
		cpuInfo.ModelName = cpuStat[0].ModelName
	}
	cSpan.End()

	respData := HealthcheckOutput{
		Status: healthStatusUp,
		Host: HostInfo{
			Hostname:        hostStat.Hostname,
			OS:              hostStat.OS,
			Platform:        hostStat.Platform,
			PlatformVersion: hostStat.PlatformVersion,
			KernelVersion:   hostStat.KernelVersion,
			Arch:            hostStat.KernelArch,
			Uptime:          hostStat.Uptime,
		},
		Memory: MemoryInfo{
			Total:       memoryInfo.Total,
			Free:        memoryInfo.Free,
			UsedPercent: memoryInfo.UsedPercent,
		},
		CPU: cpuInfo,
	}
	// Hosts without a default route have no outbound address.
	if ip, ipErr := utilities.GetOutboundIP(); ipErr == nil {
		respData.Host.IP = ip.String()
	}
	if svc.pipeline != nil {
		st := svc.pipeline.Status()
		respData.Pipeline = &st
		if !st.Connected {
			respData.Status = healthStatusDegraded
		}
	}

	resp.Code = cerrors.OK.Code
	resp.Message = cerrors.OK.Message
	resp.Data = respData

	return resp, nil
}
