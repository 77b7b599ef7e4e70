// Package events turns MESSAGE bodies into event records and renders
// per-user summaries of them.
//
// Store is not synchronised; the client coordinator appends to it from the
// reader task and summarises it from the command task under one lock.
package events
