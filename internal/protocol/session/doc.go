// Package session owns the client side of one STOMP login.
//
// Ownership boundary:
// - status state machine (Disconnected, Connecting, Connected, Disconnecting)
// - subscription registry and receipt correlation
// - inbound frame dispatch
//
// A Session is not safe for concurrent use. The coordinator in
// internal/client holds one lock around every call so the reader task and the
// command task never observe a half-applied transition.
package session
