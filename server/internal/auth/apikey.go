package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ModeAPIKey enables API key checks. Any other mode disables them.
const ModeAPIKey = "apikey"

// keyCheck holds the resolved settings shared by the gRPC and HTTP guards.
type keyCheck struct {
	enabled bool
	header  string
	key     []byte
}

func newKeyCheck(mode, header, key string) keyCheck {
	return keyCheck{
		enabled: mode == ModeAPIKey && key != "",
		header:  header,
		key:     []byte(key),
	}
}

func (k keyCheck) matches(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), k.key) == 1
}

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces API key
// authentication on every incoming call. A missing, empty, or incorrect key
// returns codes.Unauthenticated.
//
// header should be lowercase; gRPC normalises metadata keys to lowercase.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	k := newKeyCheck(mode, header, key)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !k.enabled {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(k.header)
		if len(vals) == 0 || !k.matches(vals[0]) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}

// APIKeyMiddleware is the HTTP counterpart of APIKeyInterceptor. Rejected
// requests get 401 with a JSON error body.
func APIKeyMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	k := newKeyCheck(mode, header, key)
	return func(next http.Handler) http.Handler {
		if !k.enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !k.matches(r.Header.Get(k.header)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
