package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/featureflags"
	"advocacy-engine/pkg/gen"
	"advocacy-engine/pkg/hashistack/secretmanager"
	"advocacy-engine/pkg/logger"
	"advocacy-engine/pkg/minio"
	"advocacy-engine/pkg/otelcol"
	"advocacy-engine/pkg/redis"
	"advocacy-engine/pkg/sequence"
	"advocacy-engine/pkg/task"
	"advocacy-engine/services/export"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/oracle"
	"advocacy-engine/services/recovery"
	"advocacy-engine/services/rollover"
	"advocacy-engine/services/submission"
)

// The worker owns everything clock-driven: the rollover sweep, mid-cycle
// reminders, recovery scans and snapshot uploads. It shares the service
// layer with the HTTP binary but exposes no routes.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		minio.Client,
		featureflags.Module,
		task.Client,
		task.Server,
		oracle.Module,
		ledger.Module,
		ledger.Worker,
		submission.Module,
		rollover.Module,
		rollover.Worker,
		recovery.Module,
		recovery.Worker,
		export.Module,
		export.Worker,
		fxLogger,
	}

	if os.Getenv("VAULT_ADDR") != "" {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
