// Package api implements the HTTP REST surface of hearth-server.
//
// New(reg, acceptor, opts) returns an http.Handler that serves:
//
//	GET  /api/v1/health               liveness, uptime, online count
//	GET  /api/v1/presence             online count, identified users, rooms
//	GET  /api/v1/presence/users/{id}  live session count for one user
//	GET  /api/v1/connections          per-connection diagnostics
//	POST /api/v1/notify               announce an event (202 Accepted)
//
// The GET endpoints are read-only views of the registry. POST /api/v1/notify
// takes the same JSON body as the gRPC NotifyService and is wrapped by the
// configured auth middleware. Acceptance never implies delivery.
//
// All responses are JSON. Wrong methods get 405.
package api
