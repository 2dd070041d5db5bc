// Package rpc declares the NotifyService used by write-path services to ask
// hearth-server for an announcement.
//
// The service speaks only protobuf well-known types so no generated code is
// needed:
//
//	service NotifyService {
//	  rpc Notify(google.protobuf.Struct) returns (google.protobuf.Empty);
//	}
//
// Request fields: "kind" (string), "payload" (any JSON value) and the optional
// "target_user_id" (string).
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// NotifyMethod is the full gRPC method name of NotifyService.Notify.
const NotifyMethod = "/hearth.v1.NotifyService/Notify"

// Request field names.
const (
	FieldKind         = "kind"
	FieldPayload      = "payload"
	FieldTargetUserID = "target_user_id"
)

// NotifyServiceServer is implemented by the server-side receiver.
type NotifyServiceServer interface {
	Notify(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterNotifyServiceServer registers srv on s.
func RegisterNotifyServiceServer(s grpc.ServiceRegistrar, srv NotifyServiceServer) {
	s.RegisterService(&NotifyServiceDesc, srv)
}

// NotifyServiceDesc is the grpc.ServiceDesc for NotifyService.
var NotifyServiceDesc = grpc.ServiceDesc{
	ServiceName: "hearth.v1.NotifyService",
	HandlerType: (*NotifyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Notify",
			Handler:    notifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hearth/v1/notify.proto",
}

func notifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotifyServiceServer).Notify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: NotifyMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NotifyServiceServer).Notify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// NotifyServiceClient is the client API for NotifyService.
type NotifyServiceClient interface {
	Notify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type notifyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewNotifyServiceClient wraps cc.
func NewNotifyServiceClient(cc grpc.ClientConnInterface) NotifyServiceClient {
	return &notifyServiceClient{cc: cc}
}

func (c *notifyServiceClient) Notify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, NotifyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Request is the decoded form of a Notify call.
type Request struct {
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	TargetUserID string          `json:"target_user_id,omitempty"`
}

// Encode converts r into the Struct sent on the wire.
func (r Request) Encode() (*structpb.Struct, error) {
	fields := map[string]interface{}{
		FieldKind: r.Kind,
	}
	if len(r.Payload) > 0 {
		var payload interface{}
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return nil, fmt.Errorf("rpc: payload: %w", err)
		}
		fields[FieldPayload] = payload
	}
	if r.TargetUserID != "" {
		fields[FieldTargetUserID] = r.TargetUserID
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}
	return s, nil
}

// DecodeRequest extracts a Request from a Notify call.
func DecodeRequest(s *structpb.Struct) (Request, error) {
	if s == nil {
		return Request{}, errors.New("rpc: empty request")
	}
	f := s.GetFields()
	r := Request{
		Kind:         f[FieldKind].GetStringValue(),
		TargetUserID: f[FieldTargetUserID].GetStringValue(),
	}
	if r.Kind == "" {
		return Request{}, errors.New("rpc: kind is required")
	}
	if v, ok := f[FieldPayload]; ok {
		raw, err := json.Marshal(v.AsInterface())
		if err != nil {
			return Request{}, fmt.Errorf("rpc: payload: %w", err)
		}
		r.Payload = raw
	}
	return r, nil
}
