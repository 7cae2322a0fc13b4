package routers

import (
	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/routers/v1/restful"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/routers/v1/ws"
)

type RootRouter struct {
	appState *AppState
}

func NewRootRouter(appState *AppState) *RootRouter {
	return &RootRouter{
		appState: appState,
	}
}

func (rr *RootRouter) InitRouters(engine *gin.Engine) {
	// http
	rootAPIRouter := engine.Group("/api")
	v1Router := rootAPIRouter.Group("/v1")
	if v1 := rr.appState.GetV1RestState(); v1 != nil {
		if svc := v1.GetHealthcheckService(); svc != nil {
			restful.NewHealthcheckRouter(svc).Routes(v1Router)
		}
		if svc := v1.GetAlertService(); svc != nil {
			restful.NewAlertRouter(svc).Routes(v1Router)
		}
		if svc := v1.GetCalibrationService(); svc != nil {
			restful.NewCalibrationRouter(svc).Routes(v1Router)
		}
	}

	// websocket
	if wsState := rr.appState.GetWebsocketState(); wsState != nil && wsState.GetWebsocketService() != nil {
		rootWSRouter := engine.Group("/ws")
		websocketRouter := ws.NewWebsocketRouter(wsState.GetWebsocketService())
		websocketRouter.Routes(rootWSRouter)
	}
}
