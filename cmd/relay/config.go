package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

// Config is loaded from flags, RELAY_* environment variables and an optional config file.
type Config struct {
	LogLevel  string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Publishes int           `mapstructure:"publishes" validate:"gte=1,lte=1000000"`
	Message   string        `mapstructure:"message" validate:"required"`
	Forward   ForwardConfig `mapstructure:"forward"`
}

// ForwardConfig selects the external transport demo events are forwarded to.
type ForwardConfig struct {
	Transport    string   `mapstructure:"transport" validate:"omitempty,oneof=memory nats kafka rabbitmq"`
	Prefix       string   `mapstructure:"prefix"`
	NATSURL      string   `mapstructure:"nats_url" validate:"required_if=Transport nats"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"required_if=Transport kafka,dive,hostname_port"`
	AMQPURL      string   `mapstructure:"amqp_url" validate:"required_if=Transport rabbitmq"`
	Exchange     string   `mapstructure:"exchange"`
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("publishes", 10_000)
	v.SetDefault("message", "Hello, World!")
	v.SetDefault("forward.transport", "")
	v.SetDefault("forward.prefix", "relay.")
	v.SetDefault("forward.nats_url", "")
	v.SetDefault("forward.kafka_brokers", []string{})
	v.SetDefault("forward.amqp_url", "")
	v.SetDefault("forward.exchange", "relay")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// loadConfig reads the optional config file, unmarshals and validates.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)

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

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Forward.Transport = strings.ToLower(cfg.Forward.Transport)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}

	return errors.New(strings.Join(msgs, "; "))
}
