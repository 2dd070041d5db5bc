// Package receiver implements rpc.NotifyServiceServer, the gRPC ingress that
// lets write-path services outside the process ask for an announcement.
//
// Receiver.Notify decodes the Struct request and hands it to the broadcast
// facade. A request the facade cannot build (unknown kind, bad payload,
// introduction without target) is answered with codes.InvalidArgument.
// Success means the request was accepted, not that any client received it.
// Authentication is enforced upstream by the gRPC server interceptor.
package receiver
