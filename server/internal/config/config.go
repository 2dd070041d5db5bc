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

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultGRPCPort          = 50051
	DefaultWSPath            = "/ws"
	DefaultSendBuffer        = 256
	DefaultMaxMessageBytes   = 4096
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultLogLevel          = "info"
)

// Config holds the server-side configuration parsed from config.yaml.
// The `client:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the WebSocket endpoint, REST diagnostics and /metrics (default 8080).
	HTTPPort int `yaml:"http_port" validate:"gt=0,lte=65535"`

	// GRPCPort serves the NotifyService ingress (default 50051). 0 disables it.
	GRPCPort int `yaml:"grpc_port" validate:"gte=0,lte=65535"`

	// WSPath is the fixed upgrade path (default /ws).
	WSPath string `yaml:"ws_path" validate:"required,startswith=/"`

	// TLS enables wss/https on the HTTP listener when both files are set.
	TLS TLSConfig `yaml:"tls"`

	// AllowedOrigins restricts the WebSocket handshake Origin header.
	// Empty allows every origin. Hot-reloadable.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// SendBuffer is the per-connection outbound queue depth (default 256).
	SendBuffer int `yaml:"send_buffer" validate:"gt=0"`

	// MaxMessageBytes caps inbound frame size (default 4096).
	MaxMessageBytes int64 `yaml:"max_message_bytes" validate:"gt=0"`

	// Heartbeat controls the liveness sweep.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Auth guards the notify ingress (gRPC and POST /api/v1/notify).
	Auth AuthConfig `yaml:"auth"`

	// Identity controls how identify messages are trusted.
	Identity IdentityConfig `yaml:"identity"`
}

// TLSConfig names the certificate pair for the HTTP listener.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both files are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// HeartbeatConfig controls the periodic liveness sweep.
type HeartbeatConfig struct {
	// Interval between sweeps (default 30s).
	Interval time.Duration `yaml:"interval" validate:"gt=0"`

	// AckTimeout enables acknowledgment-based liveness: a connection that has
	// not answered (pong or any inbound frame) within AckTimeout is evicted.
	// 0 keeps purely transport-reported liveness.
	AckTimeout time.Duration `yaml:"ack_timeout" validate:"gte=0"`

	// AlwaysBroadcast sends online-count-changed on every sweep even when the
	// count is unchanged.
	AlwaysBroadcast bool `yaml:"always_broadcast"`
}

// AuthConfig controls API key authentication of notify callers.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" validate:"omitempty,oneof=apikey none"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// IdentityConfig selects how a connection's identify message is verified.
type IdentityConfig struct {
	// Mode is one of: trust | jwt. "trust" accepts the userId as sent.
	Mode string `yaml:"mode" validate:"omitempty,oneof=trust jwt"`

	// SecretEnv names the environment variable holding the HS256 secret
	// used when Mode == "jwt".
	SecretEnv string `yaml:"secret_env"`
}

// Secret returns the JWT secret resolved from the environment.
func (i IdentityConfig) Secret() string {
	if i.SecretEnv == "" {
		return ""
	}
	return os.Getenv(i.SecretEnv)
}

// LogConfig controls the process logger. Level is hot-reloadable.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level onto a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var validate = validator.New()

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := check(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        DefaultHTTPPort,
			GRPCPort:        DefaultGRPCPort,
			WSPath:          DefaultWSPath,
			SendBuffer:      DefaultSendBuffer,
			MaxMessageBytes: DefaultMaxMessageBytes,
			Heartbeat: HeartbeatConfig{
				Interval: DefaultHeartbeatInterval,
			},
			Identity: IdentityConfig{Mode: "trust"},
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// check runs the struct-tag rules, then the cross-field constraints the tags
// cannot express.
func check(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	s := cfg.Server
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.HTTPPort)
	}
	if (s.TLS.CertFile == "") != (s.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file must be set together")
	}
	if s.Heartbeat.AckTimeout > 0 && s.Heartbeat.AckTimeout < s.Heartbeat.Interval {
		return fmt.Errorf("server.heartbeat.ack_timeout %s must not be shorter than interval %s",
			s.Heartbeat.AckTimeout, s.Heartbeat.Interval)
	}
	if s.Identity.Mode == "jwt" && s.Identity.SecretEnv == "" {
		return fmt.Errorf("server.identity.secret_env is required when mode is jwt")
	}
	return nil
}
