// Package broker is a small STOMP 1.2 broker serving TCP and WebSocket
// clients. It keeps users, logins and topic subscriptions in memory.
package broker
