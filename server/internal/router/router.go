package router

import (
	"log/slog"

	"github.com/hearthnet/hearth/pkg/envelope"
	"github.com/hearthnet/hearth/server/internal/auth"
	"github.com/hearthnet/hearth/server/internal/metrics"
	"github.com/hearthnet/hearth/server/internal/registry"
)

type handlerFunc func(connID string, env envelope.Envelope)

// Router dispatches decoded envelopes to per-kind handlers.
type Router struct {
	reg      *registry.Registry
	verifier auth.IdentityVerifier
	handlers map[envelope.Kind]handlerFunc
}

// New returns a Router acting on reg. A nil verifier trusts identify claims.
func New(reg *registry.Registry, verifier auth.IdentityVerifier) *Router {
	if verifier == nil {
		verifier = auth.TrustVerifier{}
	}
	rt := &Router{reg: reg, verifier: verifier}
	rt.handlers = map[envelope.Kind]handlerFunc{
		envelope.KindIdentify:     rt.identify,
		envelope.KindRoomJoin:     rt.roomJoin,
		envelope.KindRoomLeave:    rt.roomLeave,
		envelope.KindHeartbeatAck: func(string, envelope.Envelope) {},
	}
	return rt
}

// Handle processes one inbound frame from connID.
func (rt *Router) Handle(connID string, frame []byte) {
	if !rt.reg.Touch(connID) {
		return
	}

	env, err := envelope.Decode(frame)
	if err != nil {
		metrics.DroppedFrames.WithLabelValues(metrics.DropMalformed).Inc()
		slog.Debug("router: dropping malformed frame", "connection_id", connID, "err", err)
		return
	}

	h, ok := rt.handlers[env.Kind]
	if !ok {
		metrics.DroppedFrames.WithLabelValues(metrics.DropUnknownKind).Inc()
		slog.Debug("router: dropping unknown kind", "connection_id", connID, "kind", env.Kind)
		return
	}
	metrics.InboundFrames.WithLabelValues(string(env.Kind)).Inc()
	h(connID, env)
}

func (rt *Router) identify(connID string, env envelope.Envelope) {
	userID, err := rt.verifier.Verify(env.UserID, env.Token)
	if err != nil {
		metrics.DroppedFrames.WithLabelValues(metrics.DropInvalid).Inc()
		slog.Warn("router: identify rejected", "connection_id", connID, "err", err)
		return
	}
	if rt.reg.Associate(connID, userID) {
		slog.Debug("router: connection identified", "connection_id", connID, "user_id", userID)
	}
}

func (rt *Router) roomJoin(connID string, env envelope.Envelope) {
	if env.Room == "" {
		metrics.DroppedFrames.WithLabelValues(metrics.DropInvalid).Inc()
		return
	}
	if rt.reg.JoinRoom(connID, env.Room) {
		slog.Debug("router: joined room", "connection_id", connID, "room", env.Room)
	}
}

func (rt *Router) roomLeave(connID string, env envelope.Envelope) {
	if rt.reg.LeaveRoom(connID, env.Room) {
		slog.Debug("router: left room", "connection_id", connID, "room", env.Room)
	}
}
