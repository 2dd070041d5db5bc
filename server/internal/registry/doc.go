// Package registry owns the set of live connections held by hearth-server.
//
// Registry is the only mutable shared state in the server. Every mutation
// (register, associate, unregister, room membership) is serialized behind one
// mutex; transports are reached only through the registry, which hands frames
// to their non-blocking Send.
//
// Indexes kept alongside the connection table:
//
//	users: userId -> set of connection ids (one user, many tabs)
//	rooms: room   -> set of connection ids (empty rooms are dropped)
//
// Registry does not broadcast. The heartbeat monitor surfaces churn; the
// broadcast facade fans envelopes out over the ids the registry returns.
package registry
