// Package ws is the WebSocket transport endpoint of hearth-server.
//
// Hub.ServeHTTP upgrades a request on the fixed endpoint path (default /ws),
// registers the connection, greets it with
//
//	{"kind":"connection-ack","connectionId":"...","onlineCount":N}
//
// and then pumps frames in both directions until the peer goes away:
//
//   - writePump drains the connection's bounded send queue and emits the
//     ping probes requested by the heartbeat sweep.
//   - readPump hands every inbound frame to the router and refreshes the
//     read deadline on pongs.
//
// Sends never block the caller. A full queue is reported as
// registry.ErrQueueFull and the broadcast layer evicts the connection.
//
// The handshake Origin is checked against an allow list that can be swapped
// at runtime with SetAllowedOrigins. An empty list accepts every origin.
package ws
