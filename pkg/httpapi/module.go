package httpapi

import (
	"advocacy-engine/pkg/health"
	"advocacy-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoints, registerMetricsEndpoint),
)

func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Error())

	return engine
}

func registerHealthEndpoints(engine *gin.Engine, svc health.HealthService) {
	engine.GET("/health/liveness", svc.Liveness)
	engine.GET("/health/readiness", svc.Readiness)
}

func registerMetricsEndpoint(engine *gin.Engine) {
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
