package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Mirror struct {
		Path string `mapstructure:"PATH"`
	} `mapstructure:"MIRROR"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Oracle struct {
		ApiKey  string        `mapstructure:"API_KEY"`
		BaseURL string        `mapstructure:"BASE_URL"`
		Model   string        `mapstructure:"MODEL"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"ORACLE"`
	Program struct {
		Timezone             string   `mapstructure:"TIMEZONE"`
		MonthlyThreshold     int      `mapstructure:"MONTHLY_THRESHOLD"`
		ReminderThreshold    int      `mapstructure:"REMINDER_THRESHOLD"`
		SweepHour            int      `mapstructure:"SWEEP_HOUR"`
		SweepMinute          int      `mapstructure:"SWEEP_MINUTE"`
		RecoveryLookbackDays int      `mapstructure:"RECOVERY_LOOKBACK_DAYS"`
		Channels             []string `mapstructure:"CHANNELS"`
		ReminderWebhookURL   string   `mapstructure:"REMINDER_WEBHOOK_URL"`
	} `mapstructure:"PROGRAM"`
	History struct {
		BaseURL string        `mapstructure:"BASE_URL"`
		Token   string        `mapstructure:"TOKEN"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
		Proxy   string        `mapstructure:"PROXY"`
	} `mapstructure:"HISTORY"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	_ = godotenv.Load()

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("[Config] failed reading config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("[Config] failed unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		// START - Vault
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.Oracle.ApiKey = get("oracle_api_key")
		cfg.History.Token = get("history_token")
		cfg.Flagsmith.ApiKey = get("flagsmith_api_key")
		// END - Vault
	}

	applyDefaults(&cfg)

	// The primary store is authoritative. Running without it would silently
	// strand every submission, so refuse to start instead.
	if cfg.Database.Type != "sqlite" {
		if cfg.Database.Host == "" || cfg.Database.User == "" || cfg.Database.DBNAME == "" {
			zap.L().Error("[Config] primary store credentials missing",
				zap.String("host", cfg.Database.Host),
				zap.String("dbname", cfg.Database.DBNAME),
			)
			os.Exit(1)
		}
	}

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Mirror.Path == "" {
		cfg.Mirror.Path = "advocacy-mirror.db"
	}
	if cfg.Program.Timezone == "" {
		cfg.Program.Timezone = "UTC"
	}
	if cfg.Program.MonthlyThreshold == 0 {
		cfg.Program.MonthlyThreshold = 50
	}
	if cfg.Program.ReminderThreshold == 0 {
		cfg.Program.ReminderThreshold = 25
	}
	if cfg.Program.RecoveryLookbackDays == 0 {
		cfg.Program.RecoveryLookbackDays = 30
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = 30 * time.Second
	}
	if cfg.History.Timeout == 0 {
		cfg.History.Timeout = 15 * time.Second
	}
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("[Config] failed adding remote provider", zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("[Config] failed reading remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("[Config] failed unmarshal remote config", zap.Error(err))
		os.Exit(1)
	}
	applyDefaults(&cfg)
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5) // delay after each request

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			config.Unmarshal(&newcfg)
			applyDefaults(&newcfg)
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}
