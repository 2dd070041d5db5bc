package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultOrigin         = "http://localhost:8080"
	DefaultBackoffUnit    = 1 * time.Second
	DefaultMaxAttempts    = 5
	DefaultNotifyEndpoint = "localhost:50051"
	DefaultMetricsURL     = "http://localhost:8080/metrics"
	DefaultAPIKeyHeader   = "x-api-key"
)

// Config is the client view of config.yaml.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig holds all client-side settings.
type ClientConfig struct {
	// Origin is the page origin the client behaves as. Its scheme picks
	// ws (http) or wss (https) for the event endpoint.
	Origin string `yaml:"origin" validate:"required,url"`

	// UserID is the identity announced after connecting. Empty stays anonymous.
	UserID string `yaml:"user_id"`

	// TokenEnv names the environment variable holding an identity token,
	// sent with identify when the server verifies identities.
	TokenEnv string `yaml:"token_env"`

	// BackoffUnit is the base of the 2^attempt reconnect delay.
	BackoffUnit time.Duration `yaml:"backoff_unit" validate:"gt=0"`

	// MaxAttempts caps automatic reconnects before the client goes offline.
	MaxAttempts int `yaml:"max_attempts" validate:"gt=0,lte=30"`

	// Rooms are joined after every successful connect.
	Rooms []string `yaml:"rooms" validate:"dive,required"`

	// Notify configures the gRPC notify sender.
	Notify NotifyConfig `yaml:"notify"`

	// MetricsURL is scraped by the stats command.
	MetricsURL string `yaml:"metrics_url" validate:"omitempty,url"`
}

// Token returns the identity token resolved from the environment.
func (c ClientConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// NotifyConfig points at the server's NotifyService.
type NotifyConfig struct {
	// Endpoint is the gRPC address (host:port).
	Endpoint string `yaml:"endpoint" validate:"required,hostname_port"`

	// Auth configures how the sender authenticates.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how the client authenticates to the server.
type AuthConfig struct {
	// Mode is one of: apikey | mtls | none.
	Mode string `yaml:"mode" validate:"omitempty,oneof=apikey mtls none"`

	// API key fields, used when Mode == "apikey".
	// Header is the gRPC metadata key to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the lowercased header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return DefaultAPIKeyHeader
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level onto a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

var validate = validator.New()

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("client config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("client config: parse yaml: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	if a := cfg.Client.Notify.Auth; a.Mode == "mtls" && (a.CertFile == "" || a.KeyFile == "") {
		return nil, fmt.Errorf("client config: notify.auth: cert_file and key_file are required for mtls")
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Origin:      DefaultOrigin,
			BackoffUnit: DefaultBackoffUnit,
			MaxAttempts: DefaultMaxAttempts,
			Notify:      NotifyConfig{Endpoint: DefaultNotifyEndpoint},
			MetricsURL:  DefaultMetricsURL,
		},
		Log: LogConfig{Level: "info"},
	}
}
