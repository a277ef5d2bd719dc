package apikey

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
)

var Module = fx.Module("apikey.service",
	fx.Provide(NewService, NewVerifier),
	fx.Invoke(autoMigrate),
)

var Gateway = fx.Module("apikey.gateway",
	fx.Invoke(registerRoutes),
)

func NewVerifier(s *Service) middleware.KeyVerifier {
	return s
}

func autoMigrate(conns *db.Conns) error {
	return conns.Primary.AutoMigrate(&APIKey{})
}

func registerRoutes(engine *gin.Engine, svc *Service, verifier middleware.KeyVerifier) {
	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, ScopeOperator))
	operator.POST("/apikeys", svc.handleIssue)
	operator.DELETE("/apikeys/:key_id", svc.handleRevoke)
}

func (s *Service) handleIssue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed api key payload", err))
		return
	}

	cred, err := s.Issue(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cred)
}

func (s *Service) handleRevoke(c *gin.Context) {
	if err := s.Revoke(c.Request.Context(), c.Param("key_id")); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
