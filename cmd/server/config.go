package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	storeDriverPostgres = "postgres"
	storeDriverMemory   = "memory"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Store struct {
		Driver    string        `mapstructure:"driver"`
		TxTimeout time.Duration `mapstructure:"tx_timeout"`
	} `mapstructure:"store"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Redis struct {
		URL    string `mapstructure:"url"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	Log struct {
		Level         string `mapstructure:"level"`
		Encoding      string `mapstructure:"encoding"`
		RecentEntries int    `mapstructure:"recent_entries"`
	} `mapstructure:"log"`
	Security struct {
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
		JWTPublicKey      string `mapstructure:"jwt_public_key"`
		JWTPublicKeyFile  string `mapstructure:"jwt_public_key_file"`
	} `mapstructure:"security"`
	Cashback struct {
		MinPayout string `mapstructure:"min_payout"`
	} `mapstructure:"cashback"`
	RateLimit struct {
		PromoPerMinute int `mapstructure:"promo_per_minute"`
	} `mapstructure:"rate_limit"`
	Maintenance struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"maintenance"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Scheduler struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"scheduler"`
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := strings.TrimSpace(os.Getenv("LOYALTY_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "LOYALTY_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "LOYALTY_REDIS_URL", "REDIS_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	// SSE streams are long lived; the write deadline is disabled by default.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("store.driver", storeDriverPostgres)
	v.SetDefault("store.tx_timeout", "5s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "loyalty")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.recent_entries", 500)
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("security.jwt_public_key", "")
	v.SetDefault("security.jwt_public_key_file", "")
	v.SetDefault("cashback.min_payout", "25.00")
	v.SetDefault("rate_limit.promo_per_minute", 30)
	v.SetDefault("maintenance.enabled", false)
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("scheduler.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case storeDriverPostgres:
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("database.url is required for the postgres store")
		}
		if cfg.Database.MaxConns <= 0 {
			return errors.New("database.max_conns must be greater than 0")
		}
		if cfg.Database.PingTimeout <= 0 {
			return errors.New("database.ping_timeout must be greater than 0")
		}
	case storeDriverMemory:
		if !strings.EqualFold(cfg.App.Env, "development") && !strings.EqualFold(cfg.App.Env, "test") {
			return errors.New("store.driver=memory is only allowed in development or test")
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", cfg.Store.Driver)
	}

	if cfg.Store.TxTimeout <= 0 {
		return errors.New("store.tx_timeout must be greater than 0")
	}
	if cfg.RateLimit.PromoPerMinute <= 0 {
		return errors.New("rate_limit.promo_per_minute must be greater than 0")
	}
	if _, err := cfg.minPayout(); err != nil {
		return err
	}

	if len(cfg.CORS.AllowOrigins) == 0 {
		return errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range cfg.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("cors.allow_origins must not contain wildcard *")
		}
	}
	return nil
}

func (cfg Config) minPayout() (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(cfg.Cashback.MinPayout))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid cashback.min_payout: %w", err)
	}
	if !value.IsPositive() {
		return decimal.Zero, errors.New("cashback.min_payout must be greater than 0")
	}
	return value, nil
}

func (cfg Config) allowOrigins() []string {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	return origins
}
