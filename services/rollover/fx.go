package rollover

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/middleware"
	"advocacy-engine/pkg/task"
	"advocacy-engine/pkg/taskname"
)

var Module = fx.Module("rollover.service",
	fx.Provide(NewService, NewWebhookNotifier),
)

// Worker wires the asynq handlers and the program clock into cmd/worker.
var Worker = fx.Module("rollover.worker",
	fx.Provide(NewTask, NewScheduler),
	fx.Invoke(registerTaskHandlers, StartScheduler),
)

var Gateway = fx.Module("rollover.gateway",
	fx.Invoke(registerRoutes),
)

func registerTaskHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.RolloverSweep, t.HandleSweepTask)
	mux.HandleFunc(taskname.RolloverReminder, t.HandleReminderTask)
}

type gateway struct {
	service  *Service
	enqueuer task.Enqueuer
}

func registerRoutes(engine *gin.Engine, svc *Service, enqueuer task.Enqueuer, verifier middleware.KeyVerifier) {
	g := &gateway{service: svc, enqueuer: enqueuer}

	operator := engine.Group("/v1", middleware.APIKeyAuth(verifier, "operator"))
	operator.POST("/rollover/run", g.handleRun)
	operator.GET("/reports/cycles", g.handleReports)
}

// handleRun enqueues a sweep for the current cycle. The task id keeps an
// operator mashing the button from stacking duplicate sweeps; the sweep
// itself is idempotent regardless.
func (g *gateway) handleRun(c *gin.Context) {
	cycleID := CycleIDFor(time.Now())

	t, err := newTask(taskname.RolloverSweep, SweepPayload{CycleID: cycleID, TriggeredBy: "operator"})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to build sweep task", err))
		return
	}

	info, err := g.enqueuer.Enqueue(c.Request.Context(), t,
		asynq.TaskID(taskname.RolloverSweep+":"+cycleID),
		asynq.Queue("critical"),
	)
	if err != nil {
		_ = c.Error(errutil.Conflict("a sweep for this cycle is already queued", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"cycle_id": cycleID, "task_id": info.ID})
}

func (g *gateway) handleReports(c *gin.Context) {
	reports, err := g.service.Reports(c.Request.Context(), c.Query("cycle_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
