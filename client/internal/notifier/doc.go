// Package notifier sends Notify requests to hearth-server's NotifyService
// (hearth.v1.NotifyService/Notify unary RPC).
//
// Sender.Send dials, sends one request and closes the connection. Transient
// failures (Unavailable, DeadlineExceeded, dial errors) are retried with
// truncated exponential backoff (1s to 30s, ±25% jitter) up to Attempts
// times. Permanent gRPC errors (Unauthenticated, PermissionDenied,
// InvalidArgument) are returned at once.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
//
// The dialFn field is injectable for testing.
package notifier
