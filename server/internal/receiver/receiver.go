package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hearthnet/hearth/pkg/rpc"
)

// Acceptor validates and delivers a notify request.
type Acceptor interface {
	Accept(req rpc.Request) error
}

// Receiver implements rpc.NotifyServiceServer.
type Receiver struct {
	out Acceptor
}

var _ rpc.NotifyServiceServer = (*Receiver)(nil)

// New creates a Receiver that forwards accepted requests to out.
func New(out Acceptor) *Receiver {
	return &Receiver{out: out}
}

// Notify is the unary RPC handler called by write-path services.
func (r *Receiver) Notify(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := rpc.DecodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := r.out.Accept(req); err != nil {
		slog.Debug("receiver: notify rejected", "kind", req.Kind, "err", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	slog.Debug("receiver: notify accepted",
		"kind", req.Kind,
		"user_id", req.TargetUserID,
		"payload_bytes", len(req.Payload),
	)
	return &emptypb.Empty{}, nil
}
