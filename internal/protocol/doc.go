// Package protocol owns the STOMP wire contract shared by client and broker.
//
// Ownership boundary:
// - error taxonomy (this package)
// - frame codec and framing (frame)
// - client session state machine, subscriptions and receipts (session)
package protocol
