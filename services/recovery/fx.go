package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
	"advocacy-engine/pkg/task"
	"advocacy-engine/pkg/taskname"
)

var Module = fx.Module("recovery.service",
	fx.Provide(NewService, NewHistorySource),
)

var Worker = fx.Module("recovery.worker",
	fx.Invoke(registerTaskHandlers),
)

var Gateway = fx.Module("recovery.gateway",
	fx.Invoke(registerRoutes),
)

type ScanPayload struct {
	LookbackDays int      `json:"lookback_days"`
	Channels     []string `json:"channels"`
	TriggeredBy  string   `json:"triggered_by"`
}

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.RecoveryScan, func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}

		zap.L().Info("start recovery scan task",
			zap.String("task_type", t.Type()),
			zap.Int("lookback_days", payload.LookbackDays),
			zap.String("triggered_by", payload.TriggeredBy),
		)

		_, err := svc.Scan(ctx, &ScanRequest{
			LookbackDays: payload.LookbackDays,
			Channels:     payload.Channels,
		})
		return err
	})
}

type gateway struct {
	enqueuer task.Enqueuer
}

func registerRoutes(engine *gin.Engine, enqueuer task.Enqueuer, verifier middleware.KeyVerifier) {
	g := &gateway{enqueuer: enqueuer}

	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, "operator"))
	operator.POST("/recovery/scan", g.handleScan)
}

func (g *gateway) handleScan(c *gin.Context) {
	var payload ScanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		_ = c.Error(errutil.BadRequest("malformed scan payload", err))
		return
	}
	payload.TriggeredBy = "operator"

	body, err := json.Marshal(payload)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to build scan task", err))
		return
	}

	info, err := g.enqueuer.Enqueue(c.Request.Context(),
		asynq.NewTask(taskname.RecoveryScan, body),
		asynq.Queue("low"),
	)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to enqueue scan", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}
