// Package bridge connects this machine to an OpenClaw gateway as a
// command-execution node.
//
// # Overview
//
// The bridge owns one WebSocket connection to the gateway. After a signed
// connect handshake it advertises a fixed set of node commands and brokers
// gateway-issued invocation requests to a human operator, who must approve
// or reject each one before it runs.
//
// # Components
//
// A Session owns the send half of the connection, the request counter, and
// the correlation table mapping request ids to one-shot completion slots.
// One reader goroutine per connection routes inbound frames: responses to
// the correlation table, challenge events to the handshake, invocation
// requests to the pending-invoke store.
//
// The pending-invoke store is bounded (50 entries, oldest evicted first),
// deduplicated by invocation id, and time-limited: an invocation left
// unreviewed for 25 seconds is auto-rejected with USER_PENDING before the
// gateway's own 30 second deadline turns it into a generic timeout. The
// record survives auto-rejection so the operator can still act on it later;
// such late results must travel a side channel because the gateway discards
// results for ids it already closed out.
package bridge
