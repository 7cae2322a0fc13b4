package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okieraised/greenhouse-agent/internal/api_response"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/signaling"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type IWebsocketService interface {
	Exchange(ctx *gin.Context, tracerCtx context.Context, tracer trace.Tracer) (*api_response.BaseOutput, *cerrors.AppError)
}

type WebsocketService struct {
	hub      *signaling.WebsocketHub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewWebsocketService(options ...func(*WebsocketService)) *WebsocketService {
	var upgrader = websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	svc := &WebsocketService{upgrader: upgrader}
	for _, opt := range options {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = log.MustNewECSLogger()
	}

	return svc
}

func WithWebsocketHub(hub *signaling.WebsocketHub) func(*WebsocketService) {
	return func(c *WebsocketService) {
		c.hub = hub
	}
}

func WithWebsocketLogger(l *log.Logger) func(*WebsocketService) {
	return func(c *WebsocketService) {
		c.logger = l
	}
}

// Exchange upgrades the request and subscribes the connection to alert
// notifications.
func (svc *WebsocketService) Exchange(
	ctx *gin.Context,
	tracerCtx context.Context,
	tracer trace.Tracer,
) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := tracer.Start(tracerCtx, "subscribe-notifications")
	defer span.End()

	resp := &api_response.BaseOutput{}
	lg := svc.logger.With(
		zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
	)
	if svc.hub == nil {
		return nil, cerrors.ErrGenericInternalServer
	}

	_, cSpan := tracer.Start(rootCtx, "upgrade-connection")
	connID := uuid.New()
	conn, err := svc.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	cSpan.End()
	if err != nil {
		// Upgrade has already written the HTTP error.
		lg.Error("failed to upgrade websocket connection", zap.Error(err))
		return nil, nil
	}

	client := signaling.NewWebsocketClient(connID, conn, svc.hub)
	if err = svc.hub.Register(client); err != nil {
		lg.Warn("rejecting websocket client", zap.Error(err))
		client.Close()
		return nil, nil
	}
	lg.Info(fmt.Sprintf("New client connection established with ID: %s", connID.String()))

	go client.Write()
	go client.Read()

	resp.Code = cerrors.OK.Code
	resp.Message = cerrors.OK.Message
	return resp, nil
}
