// Package envelope defines the wire protocol shared by hearth-server and its
// clients.
//
// Every frame is a JSON object with a "kind" tag plus kind-specific fields:
//
//	{"kind": "identify", "userId": "u1"}
//	{"kind": "online-count-changed", "count": 12}
//	{"kind": "new-post", "post": { ... }}
//
// Message values are encoded once and never mutated; the same frame bytes are
// pushed to every recipient of a broadcast. Envelopes carry no sequence number.
//
// Decode accepts the message types of older web clients (auth, join_room,
// leave_room, pong) and maps them to identify, room-join, room-leave and
// heartbeat-ack.
package envelope
