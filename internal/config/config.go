// Package config loads the service configuration from defaults, an
// optional YAML file, a .env file and GUARDIAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/guardian/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// GUARDIAN_ESCALATION_COOLDOWN=10m.
const EnvPrefix = "GUARDIAN"

// Config is the full service configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation"`
	State      StateConfig      `mapstructure:"state" yaml:"state"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Messaging  MessagingConfig  `mapstructure:"messaging" yaml:"messaging"`
	Text       TextConfig       `mapstructure:"text" yaml:"text"`
	Speech     SpeechConfig     `mapstructure:"speech" yaml:"speech"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig controls the HTTP listener and its request limits.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second on upload/generation routes
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ModelConfig picks the classifier backend and its model files.
type ModelConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"` // onnx | logistic
	ONNXLibrary     string `mapstructure:"onnx_library" yaml:"onnx_library"`
	EmbeddingModel  string `mapstructure:"embedding_model" yaml:"embedding_model"`
	ClassifierModel string `mapstructure:"classifier_model" yaml:"classifier_model"`
	LogisticWeights string `mapstructure:"logistic_weights" yaml:"logistic_weights"`
}

// EscalationConfig drives the cooldown window and the notify and content steps.
type EscalationConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	NotifyTo    string        `mapstructure:"notify_to" yaml:"notify_to"`
	NotifyFrom  string        `mapstructure:"notify_from" yaml:"notify_from"`
	Content     bool          `mapstructure:"content" yaml:"content"`
	Topic       string        `mapstructure:"topic" yaml:"topic"`
	History     int           `mapstructure:"history" yaml:"history"`
}

// StateConfig selects where per-source escalation timestamps live.
type StateConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // memory | redis
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
}

// StorageConfig selects the lullaby record store and blob directory.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // memory | postgres
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	BlobDir     string `mapstructure:"blob_dir" yaml:"blob_dir"`
}

// MessagingConfig selects the gateway used for caregiver alerts.
type MessagingConfig struct {
	Provider    string `mapstructure:"provider" yaml:"provider"` // log | twilio
	TwilioSID   string `mapstructure:"twilio_sid" yaml:"twilio_sid"`
	TwilioToken string `mapstructure:"twilio_token" yaml:"twilio_token"`
}

// TextConfig configures the language-generation endpoint for lullaby text.
type TextConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // none | openai
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Auth     string        `mapstructure:"auth" yaml:"auth"` // api-key | bearer
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SpeechConfig configures the speech synthesis provider.
type SpeechConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"` // none | azure | elevenlabs
	AzureKey        string        `mapstructure:"azure_key" yaml:"azure_key"`
	AzureRegion     string        `mapstructure:"azure_region" yaml:"azure_region"`
	AzureVoice      string        `mapstructure:"azure_voice" yaml:"azure_voice"`
	ElevenLabsKey   string        `mapstructure:"elevenlabs_key" yaml:"elevenlabs_key"`
	ElevenLabsVoice string        `mapstructure:"elevenlabs_voice" yaml:"elevenlabs_voice"`
	ElevenLabsModel string        `mapstructure:"elevenlabs_model" yaml:"elevenlabs_model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MonitorConfig controls live microphone monitoring.
type MonitorConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Source  string        `mapstructure:"source" yaml:"source"`
	Window  time.Duration `mapstructure:"window" yaml:"window"`
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind command-line flags onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("model.backend", "onnx")
	v.SetDefault("model.onnx_library", "")
	v.SetDefault("model.embedding_model", "models/yamnet.onnx")
	v.SetDefault("model.classifier_model", "models/cry_classifier.onnx")
	v.SetDefault("model.logistic_weights", "")

	v.SetDefault("escalation.cooldown", 5*time.Minute)
	v.SetDefault("escalation.step_timeout", 45*time.Second)
	v.SetDefault("escalation.notify_to", "")
	v.SetDefault("escalation.notify_from", "")
	v.SetDefault("escalation.content", false)
	v.SetDefault("escalation.topic", "a sleepy little star")
	v.SetDefault("escalation.history", 50)

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.redis_addr", "localhost:6379")
	v.SetDefault("state.redis_password", "")
	v.SetDefault("state.redis_db", 0)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.blob_dir", "data/lullabies")

	v.SetDefault("messaging.provider", "log")
	v.SetDefault("messaging.twilio_sid", "")
	v.SetDefault("messaging.twilio_token", "")

	v.SetDefault("text.provider", "none")
	v.SetDefault("text.endpoint", "")
	v.SetDefault("text.api_key", "")
	v.SetDefault("text.model", "")
	v.SetDefault("text.auth", "bearer")
	v.SetDefault("text.timeout", 30*time.Second)

	v.SetDefault("speech.provider", "none")
	v.SetDefault("speech.azure_key", "")
	v.SetDefault("speech.azure_region", "")
	v.SetDefault("speech.azure_voice", "en-US-AvaNeural")
	v.SetDefault("speech.elevenlabs_key", "")
	v.SetDefault("speech.elevenlabs_voice", "")
	v.SetDefault("speech.elevenlabs_model", "")
	v.SetDefault("speech.timeout", 60*time.Second)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.source", "nursery")
	v.SetDefault("monitor.window", 3*time.Second)
}

// Load reads .env (if present) and the config file, then decodes and
// validates. An empty path looks for ./guardian.yaml and tolerates its
// absence.
func Load(v *viper.Viper, path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfiguration, path, err)
		}
	} else {
		v.SetConfigName("guardian")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: reading config: %v", domain.ErrConfiguration, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %v", domain.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once, wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Escalation.Cooldown <= 0 {
		bad("escalation.cooldown must be positive, got %s", c.Escalation.Cooldown)
	}
	if c.Escalation.StepTimeout <= 0 {
		bad("escalation.step_timeout must be positive")
	}

	switch c.Model.Backend {
	case "onnx":
		if c.Model.EmbeddingModel == "" || c.Model.ClassifierModel == "" {
			bad("model.embedding_model and model.classifier_model are required for the onnx backend")
		}
	case "logistic":
		if c.Model.LogisticWeights == "" {
			bad("model.logistic_weights is required for the logistic backend")
		}
	default:
		bad("unknown model.backend %q", c.Model.Backend)
	}

	switch c.State.Backend {
	case "memory":
	case "redis":
		if c.State.RedisAddr == "" {
			bad("state.redis_addr is required for the redis backend")
		}
	default:
		bad("unknown state.backend %q", c.State.Backend)
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			bad("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		bad("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Messaging.Provider {
	case "log":
	case "twilio":
		if c.Messaging.TwilioSID == "" || c.Messaging.TwilioToken == "" {
			bad("messaging.twilio_sid and messaging.twilio_token are required for twilio")
		}
		if c.Escalation.NotifyTo == "" || c.Escalation.NotifyFrom == "" {
			bad("escalation.notify_to and escalation.notify_from are required for twilio")
		}
	default:
		bad("unknown messaging.provider %q", c.Messaging.Provider)
	}

	switch c.Text.Provider {
	case "none":
	case "openai":
		if c.Text.Endpoint == "" || c.Text.APIKey == "" {
			bad("text.endpoint and text.api_key are required for the openai provider")
		}
	default:
		bad("unknown text.provider %q", c.Text.Provider)
	}

	switch c.Speech.Provider {
	case "none":
	case "azure":
		if c.Speech.AzureKey == "" || c.Speech.AzureRegion == "" {
			bad("speech.azure_key and speech.azure_region are required for azure")
		}
	case "elevenlabs":
		if c.Speech.ElevenLabsKey == "" {
			bad("speech.elevenlabs_key is required for elevenlabs")
		}
	default:
		bad("unknown speech.provider %q", c.Speech.Provider)
	}

	if c.Escalation.Content && !c.LullabiesEnabled() {
		bad("escalation.content needs both a text and a speech provider")
	}
	if c.Monitor.Enabled && c.Monitor.Window < time.Second {
		bad("monitor.window must be at least 1s")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// LullabiesEnabled reports whether both content stages are configured.
func (c *Config) LullabiesEnabled() bool {
	return c.Text.Provider != "none" && c.Speech.Provider != "none"
}

// Dump renders the configuration as YAML with secrets masked.
func Dump(c *Config) ([]byte, error) {
	cp := *c
	cp.State.RedisPassword = mask(cp.State.RedisPassword)
	cp.Storage.PostgresDSN = mask(cp.Storage.PostgresDSN)
	cp.Messaging.TwilioToken = mask(cp.Messaging.TwilioToken)
	cp.Text.APIKey = mask(cp.Text.APIKey)
	cp.Speech.AzureKey = mask(cp.Speech.AzureKey)
	cp.Speech.ElevenLabsKey = mask(cp.Speech.ElevenLabsKey)
	return yaml.Marshal(&cp)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
