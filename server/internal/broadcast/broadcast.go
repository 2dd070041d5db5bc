package broadcast

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hearthnet/hearth/pkg/envelope"
	"github.com/hearthnet/hearth/pkg/rpc"
	"github.com/hearthnet/hearth/pkg/types"
	"github.com/hearthnet/hearth/server/internal/metrics"
	"github.com/hearthnet/hearth/server/internal/registry"
)

// ErrTargetRequired is returned by Accept for a targeted kind without a user.
var ErrTargetRequired = errors.New("broadcast: target user id is required")

// Broadcaster fans envelopes out over the registry.
type Broadcaster struct {
	reg *registry.Registry
}

// New returns a Broadcaster delivering through reg.
func New(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// BroadcastAll pushes msg to every open connection.
func (b *Broadcaster) BroadcastAll(msg envelope.Message) {
	metrics.BroadcastsTotal.WithLabelValues(metrics.ScopeAll).Inc()
	b.deliver(b.reg.AllOpen(), msg)
}

// BroadcastToUser pushes msg to every live session of userID. A user with no
// live session is not an error.
func (b *Broadcaster) BroadcastToUser(userID string, msg envelope.Message) {
	metrics.BroadcastsTotal.WithLabelValues(metrics.ScopeUser).Inc()
	ids := b.reg.RecipientsFor(userID)
	if len(ids) == 0 {
		slog.Debug("broadcast: user offline", "user_id", userID, "kind", msg.Kind())
		return
	}
	b.deliver(ids, msg)
}

// BroadcastToRoom pushes msg to every open connection in room.
func (b *Broadcaster) BroadcastToRoom(room string, msg envelope.Message) {
	metrics.BroadcastsTotal.WithLabelValues(metrics.ScopeRoom).Inc()
	b.deliver(b.reg.RoomMembers(room), msg)
}

// Notify builds the envelope for kind from payload and delivers it: to
// targetUserID's sessions when set, otherwise to everyone. Invalid input is
// logged and dropped.
func (b *Broadcaster) Notify(kind envelope.Kind, payload any, targetUserID string) {
	if err := b.send(kind, payload, targetUserID); err != nil {
		slog.Warn("broadcast: notify dropped", "kind", kind, "user_id", targetUserID, "err", err)
	}
}

// Accept is Notify for external callers: it returns the validation error
// instead of logging it. A nil error means the request was accepted, not
// that anyone received it.
func (b *Broadcaster) Accept(req rpc.Request) error {
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	return b.send(envelope.Kind(req.Kind), payload, req.TargetUserID)
}

// NewPost announces a created post to everyone.
func (b *Broadcaster) NewPost(post any) {
	b.Notify(envelope.KindNewPost, post, "")
}

// NewComment announces a created comment to everyone.
func (b *Broadcaster) NewComment(comment any) {
	b.Notify(envelope.KindNewComment, comment, "")
}

// LikeCountChanged announces a reaction count change to everyone.
func (b *Broadcaster) LikeCountChanged(u types.LikeUpdate) {
	b.BroadcastAll(envelope.LikeCountChanged(u))
}

// IntroductionReceived tells targetUserID about a new introduction request.
func (b *Broadcaster) IntroductionReceived(targetUserID string, intro any) {
	b.Notify(envelope.KindIntroductionReceived, intro, targetUserID)
}

// OnlineCount announces count to everyone.
func (b *Broadcaster) OnlineCount(count int) {
	b.BroadcastAll(envelope.OnlineCountChanged(count))
}

func (b *Broadcaster) send(kind envelope.Kind, payload any, targetUserID string) error {
	kind = kind.Canonical()
	if !kind.Announceable() {
		return fmt.Errorf("%w: %q", envelope.ErrUnsupportedKind, kind)
	}
	if kind.Targeted() && targetUserID == "" {
		return fmt.Errorf("%w for %s", ErrTargetRequired, kind)
	}
	msg, err := envelope.Build(kind, payload)
	if err != nil {
		return err
	}
	if targetUserID != "" {
		b.BroadcastToUser(targetUserID, msg)
		return nil
	}
	b.BroadcastAll(msg)
	return nil
}

// deliver pushes msg to each id. A failed push evicts that recipient and
// moves on.
func (b *Broadcaster) deliver(ids []string, msg envelope.Message) {
	frame := msg.Frame()
	for _, id := range ids {
		err := b.reg.Push(id, frame)
		if err == nil || errors.Is(err, registry.ErrUnknownConnection) {
			continue
		}
		slog.Warn("broadcast: push failed, evicting", "connection_id", id, "kind", msg.Kind(), "err", err)
		b.reg.Evict(id, metrics.ReasonSendFailed)
	}
}
