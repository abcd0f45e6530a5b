package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("config", fx.Provide(Load))

// Config represents application configuration.
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Gateway struct {
		Driver     string        `mapstructure:"DRIVER"` // http | simulated
		BaseURL    string        `mapstructure:"BASE_URL"`
		APIKey     string        `mapstructure:"API_KEY"`
		Timeout    time.Duration `mapstructure:"TIMEOUT"`
		SuccessURL string        `mapstructure:"SUCCESS_URL"`
		CancelURL  string        `mapstructure:"CANCEL_URL"`
	} `mapstructure:"GATEWAY"`
	Payments struct {
		FeeRate          string        `mapstructure:"FEE_RATE"`
		Currency         string        `mapstructure:"CURRENCY"`
		MinWithdrawal    string        `mapstructure:"MIN_WITHDRAWAL"`
		ReconcileAfter   time.Duration `mapstructure:"RECONCILE_AFTER"`
		ReconcileWorkers int           `mapstructure:"RECONCILE_WORKERS"`
	} `mapstructure:"PAYMENTS"`
}

// Load reads config.yaml from the working directory, with environment
// variables taking precedence (HTTP_SERVER.ADDR -> HTTP_SERVER_ADDR).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		zap.L().Warn("config.yaml not found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "creatorlane-marketplace")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("GATEWAY.DRIVER", "simulated")
	v.SetDefault("GATEWAY.TIMEOUT", 10*time.Second)
	v.SetDefault("PAYMENTS.FEE_RATE", "0.05")
	v.SetDefault("PAYMENTS.CURRENCY", "USD")
	v.SetDefault("PAYMENTS.MIN_WITHDRAWAL", "10.00")
	v.SetDefault("PAYMENTS.RECONCILE_AFTER", 30*time.Minute)
	v.SetDefault("PAYMENTS.RECONCILE_WORKERS", 4)
}
