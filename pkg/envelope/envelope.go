package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hearthnet/hearth/pkg/types"
)

// Kind is the event tag carried in every envelope's "kind" field.
type Kind string

// Client → server kinds.
const (
	KindIdentify     Kind = "identify"
	KindRoomJoin     Kind = "room-join"
	KindRoomLeave    Kind = "room-leave"
	KindHeartbeatAck Kind = "heartbeat-ack"
)

// Server → client kinds.
const (
	KindConnectionAck        Kind = "connection-ack"
	KindOnlineCountChanged   Kind = "online-count-changed"
	KindNewPost              Kind = "new-post"
	KindNewComment           Kind = "new-comment"
	KindLikeCountChanged     Kind = "like-count-changed"
	KindIntroductionReceived Kind = "introduction-received"
)

// legacyKinds maps the message types spoken by older web clients onto the
// current kind names.
var legacyKinds = map[Kind]Kind{
	"auth":       KindIdentify,
	"join_room":  KindRoomJoin,
	"leave_room": KindRoomLeave,
	"pong":       KindHeartbeatAck,
}

var (
	// ErrMissingKind is returned by Decode when a frame has no "kind".
	ErrMissingKind = errors.New("envelope: missing kind")
	// ErrUnsupportedKind is returned when a kind cannot be built or announced.
	ErrUnsupportedKind = errors.New("envelope: unsupported kind")
)

// Canonical resolves legacy aliases. Unknown kinds are returned unchanged.
func (k Kind) Canonical() Kind {
	if c, ok := legacyKinds[k]; ok {
		return c
	}
	return k
}

// Announceable reports whether write-path code may ask for k to be broadcast.
func (k Kind) Announceable() bool {
	switch k {
	case KindNewPost, KindNewComment, KindLikeCountChanged, KindIntroductionReceived:
		return true
	}
	return false
}

// Targeted reports whether k is only ever delivered to one user's sessions.
func (k Kind) Targeted() bool {
	return k == KindIntroductionReceived
}

// Envelope is the decoded form of a frame. Only the fields relevant to Kind
// are populated.
type Envelope struct {
	Kind Kind `json:"kind"`

	// identify
	UserID string `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`

	// room-join / room-leave
	Room string `json:"room,omitempty"`

	// connection-ack
	ConnectionID string `json:"connectionId,omitempty"`
	OnlineCount  *int   `json:"onlineCount,omitempty"`

	// online-count-changed, like-count-changed
	Count *int `json:"count,omitempty"`

	// like-count-changed
	TargetID         string `json:"targetId,omitempty"`
	ViewerHasReacted *bool  `json:"viewerHasReacted,omitempty"`

	// new-post, new-comment, introduction-received
	Post         json.RawMessage `json:"post,omitempty"`
	Comment      json.RawMessage `json:"comment,omitempty"`
	Introduction json.RawMessage `json:"introduction,omitempty"`
}

// Decode parses a frame. Legacy kind aliases are canonicalised; unknown kinds
// are returned as-is for the caller to reject.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, ErrMissingKind
	}
	env.Kind = env.Kind.Canonical()
	return env, nil
}

// Message is an encoded, immutable envelope. The frame is serialized once at
// construction and shared by every recipient.
type Message struct {
	kind  Kind
	frame []byte
}

// Kind returns the message's event tag.
func (m Message) Kind() Kind { return m.kind }

// Frame returns the wire bytes. Callers must not modify the returned slice.
func (m Message) Frame() []byte { return m.frame }

// Envelope decodes the message back into its structured form. Every Message
// is sealed from an Envelope with a non-empty kind, so the frame always
// decodes; the zero Message yields the zero Envelope.
func (m Message) Envelope() Envelope {
	env, _ := Decode(m.frame)
	return env
}

func seal(env Envelope) (Message, error) {
	frame, err := json.Marshal(env)
	if err != nil {
		return Message{}, fmt.Errorf("envelope: encode %s: %w", env.Kind, err)
	}
	return Message{kind: env.Kind, frame: frame}, nil
}

func mustSeal(env Envelope) Message {
	m, err := seal(env)
	if err != nil {
		// Only reachable with payload-free envelopes, which always encode.
		panic(err)
	}
	return m
}

// Identify builds an identify envelope. token may be empty.
func Identify(userID, token string) Message {
	return mustSeal(Envelope{Kind: KindIdentify, UserID: userID, Token: token})
}

// RoomJoin builds a room-join envelope.
func RoomJoin(room string) Message {
	return mustSeal(Envelope{Kind: KindRoomJoin, Room: room})
}

// RoomLeave builds a room-leave envelope.
func RoomLeave(room string) Message {
	return mustSeal(Envelope{Kind: KindRoomLeave, Room: room})
}

// HeartbeatAck builds a heartbeat-ack envelope.
func HeartbeatAck() Message {
	return mustSeal(Envelope{Kind: KindHeartbeatAck})
}

// ConnectionAck builds the greeting sent to a freshly accepted connection.
func ConnectionAck(connectionID string, onlineCount int) Message {
	return mustSeal(Envelope{Kind: KindConnectionAck, ConnectionID: connectionID, OnlineCount: &onlineCount})
}

// OnlineCountChanged builds an online-count-changed envelope.
func OnlineCountChanged(count int) Message {
	return mustSeal(Envelope{Kind: KindOnlineCountChanged, Count: &count})
}

// LikeCountChanged builds a like-count-changed envelope.
func LikeCountChanged(u types.LikeUpdate) Message {
	reacted := u.ViewerHasReacted
	count := u.Count
	return mustSeal(Envelope{
		Kind:             KindLikeCountChanged,
		TargetID:         u.TargetID,
		Count:            &count,
		ViewerHasReacted: &reacted,
	})
}

// NewPost builds a new-post envelope. post is any JSON-encodable value,
// typically a types.Post or a json.RawMessage produced by the write path.
func NewPost(post any) (Message, error) {
	raw, err := rawPayload(post)
	if err != nil {
		return Message{}, err
	}
	return seal(Envelope{Kind: KindNewPost, Post: raw})
}

// NewComment builds a new-comment envelope.
func NewComment(comment any) (Message, error) {
	raw, err := rawPayload(comment)
	if err != nil {
		return Message{}, err
	}
	return seal(Envelope{Kind: KindNewComment, Comment: raw})
}

// IntroductionReceived builds an introduction-received envelope.
func IntroductionReceived(intro any) (Message, error) {
	raw, err := rawPayload(intro)
	if err != nil {
		return Message{}, err
	}
	return seal(Envelope{Kind: KindIntroductionReceived, Introduction: raw})
}

// Build constructs the envelope for an announceable kind from an arbitrary
// payload. For like-count-changed the payload must decode as types.LikeUpdate.
func Build(kind Kind, payload any) (Message, error) {
	switch kind.Canonical() {
	case KindNewPost:
		return NewPost(payload)
	case KindNewComment:
		return NewComment(payload)
	case KindIntroductionReceived:
		return IntroductionReceived(payload)
	case KindLikeCountChanged:
		var u types.LikeUpdate
		switch p := payload.(type) {
		case types.LikeUpdate:
			u = p
		case *types.LikeUpdate:
			if p == nil {
				return Message{}, fmt.Errorf("envelope: %s: nil payload", kind)
			}
			u = *p
		default:
			raw, err := rawPayload(payload)
			if err != nil {
				return Message{}, err
			}
			if err := json.Unmarshal(raw, &u); err != nil {
				return Message{}, fmt.Errorf("envelope: %s payload: %w", kind, err)
			}
		}
		if u.TargetID == "" {
			return Message{}, fmt.Errorf("envelope: %s: targetId is required", kind)
		}
		return LikeCountChanged(u), nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

func rawPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, errors.New("envelope: payload is required")
	}
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("envelope: payload is not valid JSON")
		}
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode payload: %w", err)
	}
	return b, nil
}
