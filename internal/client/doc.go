// Package client coordinates one login at a time over a line channel.
//
// Two goroutines touch a login: the reader task, which blocks on the
// transport and dispatches frames, and the caller's command task. Both take
// Client.mu around every session and event store access and never hold it
// across a blocking read or a wait for confirmation.
package client
