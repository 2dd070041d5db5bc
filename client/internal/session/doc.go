// Package session keeps one client connected to hearth-server's event
// endpoint.
//
// Manager is an explicit state machine:
//
//	disconnected -> connecting -> connected -> live
//	      ^                          |          |
//	      +--------------------------+----------+   (close or error)
//
// On connected the manager sends identify when a user is known and moves to
// live. After a failed dial or a dropped connection it waits 2^attempt
// backoff units and tries again; a successful connect resets attempt. Once
// MaxAttempts retries have failed the manager stops in "exhausted", the
// persistent offline status.
//
// Every inbound envelope and every state change is re-published on a
// dispatch.Bus.
package session
