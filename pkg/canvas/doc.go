// Package canvas is the real-time synchronization engine between the
// session store and live browser clients.
//
// It maintains a many-to-many mapping of WebSocket connections to session
// ids (the Hub), fans scene updates out to every connection of a session,
// and routes client edits back into the store. Request/response exchanges
// that cross the connection boundary (image export, diagram conversion,
// skeleton-batch staging) go through pending-operation ledgers keyed by a
// server-generated request id, each entry carrying a timeout that is the
// only failure-detection mechanism: late responses are discarded as stale.
//
// The wire protocol is JSON messages over a persistent connection, one
// session per connection at a time, selected via a query parameter at
// connect time and rebindable with a join_session message. The channel is
// defensive, not protocol-enforcing: malformed or oversized inbound
// payloads are dropped silently.
package canvas
