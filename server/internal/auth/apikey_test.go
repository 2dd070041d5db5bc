package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, interceptor grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(header, key))
	}
	return interceptor(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor(t *testing.T) {
	cases := []struct {
		name      string
		mode, key string
		sendHdr   string
		sendKey   string
		wantCode  codes.Code
	}{
		{"mode none passes", "none", "secret", "", "", codes.OK},
		{"unconfigured key passes", "apikey", "", "", "", codes.OK},
		{"correct key", "apikey", "supersecret", "x-api-key", "supersecret", codes.OK},
		{"wrong key", "apikey", "supersecret", "x-api-key", "wrong", codes.Unauthenticated},
		{"no metadata", "apikey", "supersecret", "", "", codes.Unauthenticated},
		{"other header", "apikey", "supersecret", "x-other", "supersecret", codes.Unauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i := APIKeyInterceptor(tc.mode, "x-api-key", tc.key)
			res, err := callWithKey(t, i, tc.sendHdr, tc.sendKey)
			assert.Equal(t, tc.wantCode, status.Code(err))
			if tc.wantCode == codes.OK {
				assert.Equal(t, "ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_EmptyMetadata(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-api-key", "supersecret")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	_, err := i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestAPIKeyMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	guarded := APIKeyMiddleware("apikey", "x-hearth-key", "k1")(next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notify", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid api key"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notify", nil)
	req.Header.Set("X-Hearth-Key", "k1")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	open := APIKeyMiddleware("none", "x-hearth-key", "k1")(next)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
}
