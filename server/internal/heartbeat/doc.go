// Package heartbeat runs the periodic liveness sweep.
//
// Each tick the Monitor probes every registered connection, evicts the ones
// whose transport is closed or fails the probe, then recomputes the online
// count and broadcasts online-count-changed to everyone still connected.
// The sweep is the only place connection churn is announced; connect and
// disconnect do not broadcast on their own.
//
// By default the count is broadcast only when it differs from the last one
// sent. AlwaysBroadcast restores a broadcast on every tick. With AckTimeout
// set, a connection must also have sent something (a pong or any frame)
// within that window to survive the sweep.
package heartbeat
