// Package config loads the hearth-server configuration from the `server:` and
// `log:` sections of config.yaml (the `client:` key is ignored by the server).
//
// Config fields:
//   - HTTPPort: WebSocket endpoint, REST diagnostics, /metrics (default 8080)
//   - GRPCPort: NotifyService ingress (default 50051, 0 disables)
//   - WSPath: upgrade path (default /ws)
//   - AllowedOrigins: handshake Origin allow-list, empty allows all
//   - Heartbeat: interval (30s), ack_timeout (0 = transport liveness), always_broadcast
//   - Auth: apikey | none for notify callers; key read from KeyEnv
//   - Identity: trust | jwt for identify messages; secret read from SecretEnv
//   - Log.Level: debug | info | warn | error
//
// Load(path) applies defaults before unmarshalling, then validates with
// go-playground/validator struct tags plus cross-field checks.
//
// Watch(ctx, path, onChange) reloads the file on write. Log level and allowed
// origins apply live; RestartRequired lists changed fields that need a restart.
package config
