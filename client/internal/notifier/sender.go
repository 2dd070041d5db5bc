package notifier

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hearthnet/hearth/client/internal/config"
	"github.com/hearthnet/hearth/pkg/rpc"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// DefaultAttempts is the number of tries Send makes for transient errors.
	DefaultAttempts = 4
)

// Sender delivers Notify requests to hearth-server.
type Sender struct {
	cfg config.NotifyConfig

	// Attempts caps tries per Send (default DefaultAttempts).
	Attempts int

	dialFn         dialFunc // injectable for tests
	backoffInitial time.Duration
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, endpoint string, cfg config.NotifyConfig) (*grpc.ClientConn, error)

// New creates a Sender for the given notify config.
func New(cfg config.NotifyConfig) *Sender {
	return &Sender{
		cfg:            cfg,
		Attempts:       DefaultAttempts,
		dialFn:         defaultDial,
		backoffInitial: backoffInitial,
	}
}

// Send asks the server to announce req. A nil error means the server
// accepted the request; it never implies delivery to any client.
func (s *Sender) Send(ctx context.Context, req rpc.Request) error {
	in, err := req.Encode()
	if err != nil {
		return err
	}

	attempts := s.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	bo := newBackoff(s.backoffInitial)

	for attempt := 1; ; attempt++ {
		err = s.sendOnce(ctx, in)
		if err == nil {
			slog.Debug("notifier: request accepted",
				"kind", req.Kind, "target_user_id", req.TargetUserID)
			return nil
		}
		if isPermanentError(err) {
			return fmt.Errorf("notifier: %s rejected: %w", req.Kind, err)
		}
		if attempt >= attempts || ctx.Err() != nil {
			return fmt.Errorf("notifier: %s failed after %d attempts: %w", req.Kind, attempt, err)
		}

		wait := bo.next()
		slog.Warn("notifier: send failed, will retry",
			"endpoint", s.cfg.Endpoint,
			"err", err,
			"attempt", attempt,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return fmt.Errorf("notifier: %s: %w", req.Kind, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (s *Sender) sendOnce(ctx context.Context, in *structpb.Struct) error {
	conn, err := s.dialFn(ctx, s.cfg.Endpoint, s.cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Endpoint, err)
	}
	defer conn.Close()

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if s.cfg.Auth.Mode == "apikey" && s.cfg.Auth.KeyEnv != "" {
		sendCtx = metadata.AppendToOutgoingContext(
			sendCtx,
			s.cfg.Auth.EffectiveHeader(), s.cfg.Auth.Key(),
		)
	}

	_, err = rpc.NewNotifyServiceClient(conn).Notify(sendCtx, in)
	return err
}

// isPermanentError returns true for gRPC errors that indicate the request
// itself is unacceptable and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.NotifyConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg.Auth)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // NewClient needs grpc 1.63
}

// dialOptions builds grpc.DialOption slice based on the auth config.
func dialOptions(auth config.AuthConfig) ([]grpc.DialOption, error) {
	switch auth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(auth)
		if err != nil {
			return nil, fmt.Errorf("notifier: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // "apikey", "none" or empty; the key travels in call metadata
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
