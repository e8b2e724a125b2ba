// Package replication decides, per tracked attribute, who sends to whom and
// which inbound updates to apply.
//
// A Replicator is driven in two phases per tick. BeginTick drains the
// transport's buffered envelopes for every attribute channel and applies the
// most recent acceptable update to each entity (see Resolve). EndTick sends
// every attribute that changed, or was flagged for a forced resync, to the
// recipients selected by the entity's Record.
//
// Directions are declarative: an AuthorityDirection selects peers with
// RecipientSpec values, a PeerDirection only chooses between sending to and
// receiving from the single authority. Receivers always filter senders
// themselves; the transport does not enforce recipient specs.
//
// The transport, the entity runtime and the attribute codecs are supplied by
// the host through AuthorityTransport, PeerTransport, Store and Codec.
package replication
