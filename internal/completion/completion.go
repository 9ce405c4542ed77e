// Package completion adapts model providers to concrete.CompletionService and
// layers retry, rate limiting and tracing on top of them.
package completion

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultAnthropicModel is used by the Anthropic adapter when no model is configured.
	DefaultAnthropicModel = "claude-sonnet-4-5"
	// DefaultTemperature is used when neither the config nor OPENAI_TEMPERATURE set one.
	DefaultTemperature = 0.0
)

// Settings selects and tunes a completion service.
type Settings struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`

	// RequestsPerMinute bounds the request rate. Zero disables the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	// MaxRetries bounds retries after rate limiting. Zero uses the default.
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// Tracing wraps the service in an OpenTelemetry span per call.
	Tracing bool `mapstructure:"tracing"`
}

// TemperatureFromEnv reads OPENAI_TEMPERATURE, falling back to def.
func TemperatureFromEnv(def float64) float64 {
	v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE"))
	if v == "" {
		return def
	}
	t, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return t
}

// New builds the provider named in s and wraps it in the configured
// middleware: tracing outermost, then retry, then the rate limiter.
// The scripted provider answers every request with an empty TextAnswer.
func New(s Settings, logger logrus.FieldLogger) (concrete.CompletionService, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var (
		svc concrete.CompletionService
		err error
	)
	switch strings.ToLower(s.Provider) {
	case "", ProviderOpenAI:
		svc, err = NewOpenAIFromAPIKey(s.APIKey, s.Model, s.Temperature)
	case ProviderAnthropic:
		svc, err = NewAnthropicFromAPIKey(s.APIKey, AnthropicOptions{
			Model:       s.Model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
		})
	case ProviderScripted:
		svc = NewScripted(Reply(map[string]any{"text": ""})).Repeat()
	default:
		return nil, concrete.NewConfigurationError("unknown completion provider '"+s.Provider+"'", nil)
	}
	if err != nil {
		return nil, err
	}

	if s.RequestsPerMinute > 0 {
		svc = Limited(svc, s.RequestsPerMinute)
	}
	svc = Retrying(svc, RetryOptions{
		MaxRetries:     s.MaxRetries,
		InitialBackoff: s.InitialBackoff,
		Logger:         logger,
	})
	if s.Tracing {
		svc = Traced(svc, s.Provider)
	}
	return svc, nil
}
