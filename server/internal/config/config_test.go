package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Only the client section present; server falls back to defaults.
	p := writeConfig(t, `client:
  origin: "http://localhost:8080"
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTPPort)
	assert.Equal(t, DefaultGRPCPort, cfg.Server.GRPCPort)
	assert.Equal(t, DefaultWSPath, cfg.Server.WSPath)
	assert.Equal(t, DefaultSendBuffer, cfg.Server.SendBuffer)
	assert.Equal(t, int64(DefaultMaxMessageBytes), cfg.Server.MaxMessageBytes)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Server.Heartbeat.Interval)
	assert.Zero(t, cfg.Server.Heartbeat.AckTimeout)
	assert.False(t, cfg.Server.Heartbeat.AlwaysBroadcast)
	assert.Equal(t, "trust", cfg.Server.Identity.Mode)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
	assert.False(t, cfg.Server.TLS.Enabled())
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9090
  grpc_port: 9091
  ws_path: /realtime
  allowed_origins: ["https://community.example"]
  send_buffer: 64
  heartbeat:
    interval: 10s
    ack_timeout: 25s
    always_broadcast: true
  auth:
    mode: apikey
    key_env: MY_KEY
    header: X-Hearth-Key
  identity:
    mode: jwt
    secret_env: MY_SECRET
log:
  level: debug
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	s := cfg.Server
	assert.Equal(t, 9090, s.HTTPPort)
	assert.Equal(t, 9091, s.GRPCPort)
	assert.Equal(t, "/realtime", s.WSPath)
	assert.Equal(t, []string{"https://community.example"}, s.AllowedOrigins)
	assert.Equal(t, 64, s.SendBuffer)
	assert.Equal(t, 10*time.Second, s.Heartbeat.Interval)
	assert.Equal(t, 25*time.Second, s.Heartbeat.AckTimeout)
	assert.True(t, s.Heartbeat.AlwaysBroadcast)
	assert.Equal(t, "x-hearth-key", s.Auth.EffectiveHeader())
	assert.Equal(t, "jwt", s.Identity.Mode)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "x-api-key", cfg.Server.Auth.EffectiveHeader())
}

func TestLoad_EnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_JWT_SECRET", "signing")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  identity:
    mode: jwt
    secret_env: TEST_JWT_SECRET
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "supersecret", cfg.Server.Auth.Key())
	assert.Equal(t, "signing", cfg.Server.Identity.Secret())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown auth mode": `server:
  auth:
    mode: oauth2
`,
		"port out of range": `server:
  http_port: 70000
`,
		"ws path without slash": `server:
  ws_path: ws
`,
		"same ports": `server:
  http_port: 8080
  grpc_port: 8080
`,
		"half tls": `server:
  tls:
    cert_file: cert.pem
`,
		"ack shorter than interval": `server:
  heartbeat:
    interval: 30s
    ack_timeout: 5s
`,
		"jwt without secret": `server:
  identity:
    mode: jwt
`,
		"unknown log level": `log:
  level: chatty
`,
		"zero interval": `server:
  heartbeat:
    interval: 0s
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_GRPCDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, `server:
  grpc_port: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Server.GRPCPort)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestRestartRequired(t *testing.T) {
	prev, err := Parse([]byte(`server: {}`))
	require.NoError(t, err)

	next, err := Parse([]byte(`server:
  allowed_origins: ["https://a.example"]
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Empty(t, RestartRequired(prev, next), "origins and log level are hot-reloadable")

	next, err = Parse([]byte(`server:
  http_port: 9000
  heartbeat:
    interval: 5s
`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"server.http_port", "server.heartbeat"}, RestartRequired(prev, next))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o600))

	select {
	case c := <-got:
		assert.Equal(t, "debug", c.Log.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
