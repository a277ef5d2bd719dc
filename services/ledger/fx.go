package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/middleware"
	"advocacy-engine/pkg/taskname"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(autoMigrate),
)

// Gateway adds the engine-side pieces: the reconcile endpoint and the
// startup reconcile pass.
var Gateway = fx.Module("ledger.gateway",
	fx.Invoke(registerRoutes, reconcileOnStart),
)

// Worker handles the nightly reconcile tick from the program clock.
var Worker = fx.Module("ledger.worker",
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.LedgerReconcile, func(ctx context.Context, t *asynq.Task) error {
		count, err := svc.Reconcile(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("scheduled reconcile complete", zap.Int64("participants", count))
		return nil
	})
}

func autoMigrate(conns *db.Conns) error {
	if err := conns.Primary.AutoMigrate(Models()...); err != nil {
		return err
	}

	if conns.Mirror != nil {
		if err := conns.Mirror.AutoMigrate(Models()...); err != nil {
			zap.L().Warn("mirror migration failed, mirror reads may degrade", zap.Error(err))
		}
	}

	return nil
}

func registerRoutes(engine *gin.Engine, svc *Service, verifier middleware.KeyVerifier) {
	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, "operator"))
	operator.POST("/reconcile", svc.handleReconcile)
}

func (s *Service) handleReconcile(c *gin.Context) {
	count, err := s.Reconcile(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": count})
}

func reconcileOnStart(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()

				if _, err := svc.Reconcile(ctx); err != nil {
					zap.L().Warn("startup reconcile failed", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
