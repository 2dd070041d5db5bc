// Package broadcast is the write-side entry point of hearth-server.
//
// Domain code calls Notify (or one of the typed helpers) after its own write
// has succeeded. Delivery is fire-and-forget: no method returns a delivery
// receipt and none fails observably. A recipient whose transport rejects a
// frame is evicted from the registry; the others still get theirs.
//
// Accept is the validating variant used by the notify ingress (gRPC and
// HTTP), where a malformed request must be reported back to the caller.
package broadcast
