package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "DATAGATE"

// Load builds the configuration from three layers: built-in defaults, an
// optional config file (explicit path or discovered datagate.yaml), and
// DATAGATE_* environment variables. An optional .env file is folded into the
// environment first.
func Load(cfgFile string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("datagate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/datagate")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Test mode must never survive into a deployed build.
	if cfg.Payment.TestMode && cfg.Environment == "production" {
		logger.Error("payment.test_mode is not permitted in production; forcing it off")
		cfg.Payment.TestMode = false
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "data/datagate.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("limiter.driver", "libsql")
	v.SetDefault("limiter.free_requests", 10)
	v.SetDefault("limiter.window_seconds", 86400)
	v.SetDefault("limiter.store_timeout", "2s")
	v.SetDefault("limiter.sweep_interval", "1h")

	v.SetDefault("payment.facilitator_url", "https://api.cdp.coinbase.com/platform/v2/x402")
	v.SetDefault("payment.network", "eip155:8453")
	v.SetDefault("payment.pay_to", "0xFE141943a93c184606F3060103D975662327063B")
	v.SetDefault("payment.test_mode", false)

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
