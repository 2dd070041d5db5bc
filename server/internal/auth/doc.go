// Package auth guards hearth-server's ingress points.
//
// Notify callers (write-path services) authenticate with a shared API key:
//
//	APIKeyInterceptor(mode, header, key)  gRPC NotifyService
//	APIKeyMiddleware(mode, header, key)   POST /api/v1/notify
//
// When mode != "apikey" or key == "" both pass every call through, which is
// the local development setup.
//
// WebSocket clients prove who they are in the identify envelope. An
// IdentityVerifier turns that envelope into a user id: TrustVerifier accepts
// the userId as sent, JWTVerifier requires an HS256 token and uses its
// subject.
package auth
