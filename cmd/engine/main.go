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
	"advocacy-engine/pkg/hashistack/servicediscover"
	"advocacy-engine/pkg/health"
	"advocacy-engine/pkg/httpapi"
	"advocacy-engine/pkg/logger"
	"advocacy-engine/pkg/minio"
	"advocacy-engine/pkg/otelcol"
	"advocacy-engine/pkg/profiling"
	"advocacy-engine/pkg/redis"
	"advocacy-engine/pkg/sequence"
	"advocacy-engine/pkg/server"
	"advocacy-engine/pkg/task"
	"advocacy-engine/services/apikey"
	"advocacy-engine/services/export"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/oracle"
	"advocacy-engine/services/participant"
	"advocacy-engine/services/recovery"
	"advocacy-engine/services/rollover"
	"advocacy-engine/services/submission"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		fx.Invoke(db.Otel, db.Metric),
		redis.Module,
		gen.Module,
		sequence.Module,
		minio.Client,
		featureflags.Module,
		task.Client,
		health.Module,
		httpapi.Module,
		apikey.Module,
		apikey.Gateway,
		oracle.Module,
		ledger.Module,
		ledger.Gateway,
		submission.Module,
		submission.Gateway,
		participant.Module,
		participant.Gateway,
		rollover.Module,
		rollover.Gateway,
		recovery.Module,
		recovery.Gateway,
		export.Module,
		export.Gateway,
		server.ProvideHTTPServer,
		profiling.Module,
		servicediscover.Module,
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
