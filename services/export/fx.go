package export

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
	"advocacy-engine/pkg/taskname"
)

var Module = fx.Module("export.service",
	fx.Provide(NewService),
)

var Worker = fx.Module("export.worker",
	fx.Invoke(registerTaskHandlers),
)

var Gateway = fx.Module("export.gateway",
	fx.Invoke(registerRoutes),
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ExportSnapshot, svc.HandleSnapshotTask)
}

func registerRoutes(engine *gin.Engine, svc *Service, verifier middleware.KeyVerifier) {
	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, "operator"))
	operator.GET("/export/snapshot", svc.handleSnapshot)
	operator.POST("/adjustments", svc.handleAdjust)
}

func (s *Service) handleSnapshot(c *gin.Context) {
	data, stale, err := s.Snapshot(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("X-Possibly-Stale", strconv.FormatBool(stale))
	c.Data(http.StatusOK, "text/csv", data)
}

func (s *Service) handleAdjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed adjustments payload", err))
		return
	}

	// Skipped entries come back in a 200; a bad cell in the sheet is not an
	// HTTP failure.
	result, err := s.Adjust(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
