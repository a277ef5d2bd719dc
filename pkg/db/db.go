package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"advocacy-engine/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

// Conns bundles the authoritative primary store with the local mirror.
// The mirror is best-effort: when it cannot be opened the engine keeps
// running against the primary alone.
type Conns struct {
	Primary *gorm.DB
	Mirror  *gorm.DB
}

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool),
)

// Dialect builds the primary store dialector from config. Postgres is the
// deployed default; mysql and sqlite are kept for parity with local setups.
func Dialect(cfg *config.Config) gorm.Dialector {
	d := cfg.Database
	switch d.Type {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn)
	case "sqlite":
		return sqlite.Open(d.DBNAME)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.DBNAME, d.Port, d.SSLMode, d.Timezone)
		return postgres.Open(dsn)
	}
}

func New(cfg *config.Config, dialector gorm.Dialector, opts ...gorm.Option) *Conns {
	var primary *gorm.DB
	var err error

	var logLevel logger.LogLevel
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
	} else {
		logLevel = logger.Info
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel)

	for i := 0; i < 5; i++ {
		primary, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] primary store not ready, retrying in 3 seconds...", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		zap.L().Error("[DB] failed to connect to primary store", zap.Error(err))
		os.Exit(1)
	}

	zap.L().Info("[DB] ✅ primary store connected", zap.String("dialect", primary.Dialector.Name()))

	mirror, err := gorm.Open(sqlite.Open(cfg.Mirror.Path), &gorm.Config{
		Logger: gormLogger.LogMode(logger.Warn),
	})
	if err != nil {
		// Mirror loss degrades read fallback only, never startup.
		zap.L().Warn("[DB] mirror unavailable, continuing without it", zap.String("path", cfg.Mirror.Path), zap.Error(err))
		mirror = nil
	} else {
		zap.L().Info("[DB] ✅ mirror opened", zap.String("path", cfg.Mirror.Path))
	}

	return &Conns{Primary: primary, Mirror: mirror}
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Conns     *Conns
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) {
	sqlDB, err := p.Conns.Primary.DB()
	if err != nil {
		zap.L().Error("[DB] ❌ failed to get sql.DB from gorm", zap.Error(err))
		os.Exit(1)
	}

	cp := p.Config.Database.ConnectionPool
	sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	if p.Conns.Mirror != nil {
		if mirrorDB, err := p.Conns.Mirror.DB(); err == nil {
			// sqlite serializes writers; one connection avoids lock churn.
			mirrorDB.SetMaxOpenConns(1)
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] closing connection pools...")
			if p.Conns.Mirror != nil {
				if mirrorDB, err := p.Conns.Mirror.DB(); err == nil {
					mirrorDB.Close()
				}
			}
			return sqlDB.Close()
		},
	})
}

// Otel registers the OpenTelemetry plugin on the primary store.
func Otel(conns *Conns) error {
	if err := conns.Primary.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("❌ failed to register db telemetry", zap.Error(err))
		return err
	}
	return nil
}

// Metric registers the gorm prometheus plugin on the primary store.
func Metric(conns *Conns) error {
	if err := conns.Primary.Use(prometheus.New(prometheus.Config{
		DBName:          dbNameFromDialector(conns.Primary.Dialector),
		RefreshInterval: 15,
	})); err != nil {
		zap.L().Error("❌ failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}

func dbNameFromDialector(dialector gorm.Dialector) string {
	var dsn string
	switch d := dialector.(type) {
	case *postgres.Dialector:
		dsn = d.Config.DSN
	case *mysql.Dialector:
		dsn = d.Config.DSN
	default:
		return "unknown"
	}

	for _, part := range strings.Fields(dsn) {
		if strings.HasPrefix(part, "dbname=") {
			return strings.TrimPrefix(part, "dbname=")
		}
	}
	return "unknown"
}
