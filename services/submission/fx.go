package submission

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
)

var Module = fx.Module("submission.service",
	fx.Provide(NewService, NewBlobStore),
)

var Gateway = fx.Module("submission.gateway",
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service, verifier middleware.KeyVerifier) {
	intake := engine.Group("/v1", middleware.APIKeyAuth(verifier, "intake"), middleware.Channel())
	intake.POST("/submissions", svc.handleSubmit)
}

func (s *Service) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed submission payload", err))
		return
	}

	if req.Channel == "" {
		req.Channel = middleware.GetChannel(c.Request.Context())
	}

	result, err := s.Submit(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
