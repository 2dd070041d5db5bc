// Package types defines the JSON shapes of the community entities that the
// write path hands to the broadcast subsystem after persisting them. They are
// carried verbatim inside event envelopes; the presence server never reads or
// writes the domain store itself.
package types
