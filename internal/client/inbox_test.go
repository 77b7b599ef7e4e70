package client

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/danmuck/stompctl/internal/testutil/testlog"
)

func TestInboxDrainsBeforeError(t *testing.T) {
	testlog.Start(t)
	in := newInbox()
	in.push("a", "b")
	in.push()
	in.push("c")
	in.finish(io.EOF)

	batch, err := in.next()
	if err != nil || len(batch) != 3 || batch[0] != "a" || batch[2] != "c" {
		t.Fatalf("first batch=%q err=%v", batch, err)
	}
	if _, err := in.next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after drain, got %v", err)
	}
}

func TestInboxNextWaitsForPush(t *testing.T) {
	testlog.Start(t)
	in := newInbox()
	got := make(chan []string, 1)
	go func() {
		batch, _ := in.next()
		got <- batch
	}()
	select {
	case batch := <-got:
		t.Fatalf("next returned early: %q", batch)
	case <-time.After(20 * time.Millisecond):
	}
	in.push("frame")
	select {
	case batch := <-got:
		if len(batch) != 1 || batch[0] != "frame" {
			t.Fatalf("batch=%q", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("next did not wake on push")
	}
}

func TestInboxPushNeverBlocks(t *testing.T) {
	testlog.Start(t)
	in := newInbox()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			in.push("x")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("push blocked without a consumer")
	}
	batch, err := in.next()
	if err != nil || len(batch) != 10000 {
		t.Fatalf("len=%d err=%v", len(batch), err)
	}
}
