// Package config loads concrete's configuration from a YAML file, defaults
// and environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/completion"
	"github.com/ZanzyTHEbar/concrete-go/internal/store"
)

// EnvPrefix prefixes every environment override, as in CONCRETE_LOG_LEVEL.
const EnvPrefix = "CONCRETE"

// Config holds all configuration.
type Config struct {
	Completion completion.Settings `mapstructure:"completion"`
	Store      store.Config        `mapstructure:"store"`
	Runtime    concrete.Config     `mapstructure:"runtime"`
	Log        LogConfig           `mapstructure:"log"`
	Operator   OperatorConfig      `mapstructure:"operator"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OperatorConfig holds operator and workflow defaults.
type OperatorConfig struct {
	UseTools          bool `mapstructure:"use_tools"`
	Async             bool `mapstructure:"async"`
	StoreMessages     bool `mapstructure:"store_messages"`
	AsyncWorkers      int  `mapstructure:"async_workers"`
	MaxClarifications int  `mapstructure:"max_clarifications"`
	Parallelism       int  `mapstructure:"parallelism"`
}

// Load reads path, or concrete.yaml from the working directory and the user
// config directory when path is empty. A missing default file is not an
// error. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("concrete")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "concrete"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, concrete.NewConfigurationError("read config", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("completion.temperature", EnvPrefix+"_COMPLETION_TEMPERATURE", "OPENAI_TEMPERATURE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, concrete.NewConfigurationError("decode config", err)
	}
	if cfg.Completion.APIKey == "" {
		cfg.Completion.APIKey = providerKey(cfg.Completion.Provider)
	}
	return cfg, nil
}

func providerKey(provider string) string {
	switch strings.ToLower(provider) {
	case completion.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case "", completion.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("completion.provider", completion.ProviderOpenAI)
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.temperature", completion.DefaultTemperature)
	v.SetDefault("completion.max_tokens", 4096)
	v.SetDefault("completion.requests_per_minute", 0)
	v.SetDefault("completion.max_retries", completion.DefaultMaxRetries)
	v.SetDefault("completion.initial_backoff", "500ms")
	v.SetDefault("completion.tracing", false)

	v.SetDefault("store.backend", store.BackendMemory)
	v.SetDefault("store.path", "")
	v.SetDefault("store.ttl", "0s")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "concrete")

	rt := concrete.DefaultConfig()
	v.SetDefault("runtime.run_timeout", rt.RunTimeout.String())
	v.SetDefault("runtime.event_bus", rt.EnableEventBus)
	v.SetDefault("runtime.event_bus_buffer", rt.EventBusBufferSize)
	v.SetDefault("runtime.event_bus_workers", rt.EventBusWorkerCount)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("operator.use_tools", false)
	v.SetDefault("operator.async", false)
	v.SetDefault("operator.store_messages", false)
	v.SetDefault("operator.async_workers", 4)
	v.SetDefault("operator.max_clarifications", 0)
	v.SetDefault("operator.parallelism", 1)
}
