// Package dispatch re-publishes inbound envelopes as named notifications so
// UI code can react to events without touching the transport.
//
// Names match the envelope kinds (new-post, new-comment, like-count-changed,
// introduction-received, online-count-changed, connection-ack) plus "status"
// for connection state changes. Delivery to each subscriber is non-blocking:
// a subscriber whose buffer is full misses the notification.
package dispatch
