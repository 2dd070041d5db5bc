// Package router decodes inbound frames and applies their effect to the
// connection registry.
//
// Handlers are held in a table keyed by envelope kind. Every frame, even one
// that is later dropped, counts as a sign of life for its connection.
//
//	identify       verify the claim, then bind the connection to the user
//	room-join      add the connection to a room (repeat joins are no-ops)
//	room-leave     remove it (leaving a room never joined is a no-op)
//	heartbeat-ack  lastSeen only
//
// Malformed frames and unknown kinds are logged at debug, counted in
// hearth_dropped_frames_total and dropped. The router never closes a
// connection.
package router
