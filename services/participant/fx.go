package participant

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"advocacy-engine/pkg/db/pagination"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
	"advocacy-engine/services/ledger"
)

var Module = fx.Module("participant.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("participant.gateway",
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service, verifier middleware.KeyVerifier) {
	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, "operator"))
	operator.POST("/participants", svc.handleEnroll)
	operator.GET("/participants", svc.handleLeaderboard)
	operator.GET("/participants/:id", svc.handleProfile)
	operator.DELETE("/participants/:id", svc.handleDeactivate)
}

func (s *Service) handleEnroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed enroll payload", err))
		return
	}

	p, err := s.Enroll(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

type leaderboardQuery struct {
	pagination.Pagination
	Status  string `form:"status"`
	SortBy  string `form:"sort_by"`
	OrderBy string `form:"order_by"`
}

func (s *Service) handleLeaderboard(c *gin.Context) {
	var q leaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("malformed leaderboard query", err))
		return
	}

	participants, pageInfo, stale, err := s.Leaderboard(c.Request.Context(), ledger.ListQuery{
		Status:     q.Status,
		SortBy:     q.SortBy,
		OrderBy:    q.OrderBy,
		Pagination: q.Pagination,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": participants,
		"page_info":    pageInfo,
		"stale":        stale,
	})
}

func (s *Service) handleProfile(c *gin.Context) {
	profile, err := s.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Service) handleDeactivate(c *gin.Context) {
	if err := s.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
