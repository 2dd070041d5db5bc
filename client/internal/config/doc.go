// Package config loads and watches the hearth-client configuration file.
//
// The file shares config.yaml with the server; only the client: and log:
// sections are read here.
//
//   - ClientConfig: origin, user_id, token_env, backoff_unit, max_attempts,
//     rooms, notify, metrics_url
//   - NotifyConfig: gRPC endpoint of the server's NotifyService plus auth
//   - AuthConfig: mode (apikey|mtls|none), header, key_env, cert/key/ca files
//
// Load(path) applies defaults (1s backoff unit, 5 attempts, notify endpoint
// localhost:50051) and validates with go-playground/validator.
//
// Watch(ctx, path, onChange) reloads on write. The listen command uses it to
// pick up a new user_id and re-identify without reconnecting.
package config
