package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type PoolConfig struct {
	URL string `mapstructure:"url"`
}

type FailoverConfig struct {
	FailureThreshold     int    `mapstructure:"failure_threshold"`
	Cooldown             string `mapstructure:"cooldown"`
	ConnectTimeout       string `mapstructure:"connect_timeout"`
	ReadTimeout          string `mapstructure:"read_timeout"`
	RetryBudget          string `mapstructure:"retry_budget"`
	MaxBufferedBodyBytes int64  `mapstructure:"max_buffered_body_bytes"`
}

type ProbeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type Config struct {
	Server         ServerConfig          `mapstructure:"server"`
	Logging        LoggingConfig         `mapstructure:"logging"`
	Pools          map[string]PoolConfig `mapstructure:"pools"`
	InitialPrimary string                `mapstructure:"initial_primary"`
	Failover       FailoverConfig        `mapstructure:"failover"`
	Probe          ProbeConfig           `mapstructure:"probe"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("pools.blue.url", "http://127.0.0.1:9001")
	viper.SetDefault("pools.green.url", "http://127.0.0.1:9002")
	viper.SetDefault("initial_primary", "blue")
	viper.SetDefault("failover.failure_threshold", 2)
	viper.SetDefault("failover.cooldown", "3s")
	viper.SetDefault("failover.connect_timeout", "1s")
	viper.SetDefault("failover.read_timeout", "2s")
	viper.SetDefault("failover.retry_budget", "8s")
	viper.SetDefault("failover.max_buffered_body_bytes", 1<<20)
	viper.SetDefault("probe.enabled", false)
	viper.SetDefault("probe.interval", "2s")
	viper.SetDefault("probe.path", "/healthz")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Pools,
			validation.Required,
			validation.Length(2, 2),
			validation.Each(validation.By(validatePoolConfig)),
		),
		validation.Field(&c.InitialPrimary,
			validation.Required,
			validation.By(func(value interface{}) error {
				name, ok := value.(string)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a string")
				}
				if _, exists := c.Pools[name]; !exists {
					return validation.NewError("validation_unknown_pool", "initial_primary must name a configured pool")
				}
				return nil
			}),
		),
		validation.Field(&c.Failover,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(FailoverConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a FailoverConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&fc.Cooldown,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&fc.ConnectTimeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&fc.ReadTimeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&fc.RetryBudget,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&fc.MaxBufferedBodyBytes,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Probe,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProbeConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProbeConfig")
				}
				if !pc.Enabled {
					return nil
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Interval,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&pc.Path,
						validation.Required,
						validation.By(func(value interface{}) error {
							path, ok := value.(string)
							if !ok {
								return validation.NewError("validation_invalid_type", "must be a string")
							}
							if !strings.HasPrefix(path, "/") {
								return validation.NewError("validation_invalid_path", "probe path must start with /")
							}
							return nil
						}),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_nonpositive_duration", "duration must be positive")
	}

	return nil
}

func validatePoolConfig(value interface{}) error {
	pool, ok := value.(PoolConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a PoolConfig")
	}

	if pool.URL == "" {
		return validation.NewError("validation_empty_url", "pool URL cannot be empty")
	}

	parsedURL, err := url.Parse(pool.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
