package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ExecuteConfig struct {
	BaseURL      string `mapstructure:"base_url" validate:"omitempty,url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type Config struct {
	Mode       string `mapstructure:"mode" validate:"oneof=debug release"`
	Port       int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	StaticPath string `mapstructure:"static_path" validate:"required"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Secret     string `mapstructure:"secret" validate:"required"`

	SendBuffer   int           `mapstructure:"send_buffer" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PollWait     time.Duration `mapstructure:"poll_wait" validate:"gt=0"`
	PollExpiry   time.Duration `mapstructure:"poll_expiry" validate:"gt=0"`
	JoinLimit    int           `mapstructure:"join_limit" validate:"gt=0"`
	JoinWindow   time.Duration `mapstructure:"join_window" validate:"gt=0"`

	Execute ExecuteConfig `mapstructure:"execute"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "pad-dev-secret")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("poll_wait", "25s")
	v.SetDefault("poll_expiry", "60s")
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_window", "1m")
	v.SetDefault("execute.base_url", "https://api.jdoodle.com/v1/execute")
	v.SetDefault("execute.client_id", os.Getenv("JDOODLE_CLIENT_ID"))
	v.SetDefault("execute.client_secret", os.Getenv("JDOODLE_CLIENT_SECRET"))

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
