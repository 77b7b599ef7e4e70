package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/stompctl/internal/testutil/testlog"
	"golang.org/x/crypto/bcrypt"
)

func TestRegistryValidate(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry(bcrypt.MinCost)

	tests := []struct {
		name    string
		login   string
		pass    string
		wantErr error
	}{
		{name: "first login registers", login: "alice", pass: "secret", wantErr: nil},
		{name: "same passcode accepted", login: "alice", pass: "secret", wantErr: nil},
		{name: "wrong passcode denied", login: "alice", pass: "guess", wantErr: ErrUnauthorized},
		{name: "empty login denied", login: "  ", pass: "x", wantErr: ErrLoginRequired},
		{name: "empty passcode registers", login: "bob", pass: "", wantErr: nil},
		{name: "empty passcode must match", login: "bob", pass: "x", wantErr: ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(tc.login, tc.pass)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
	if r.Len() != 2 || !r.Known("alice") || r.Known("carol") {
		t.Fatalf("unexpected registry state: len=%d", r.Len())
	}
}

func TestRegistryCostBounds(t *testing.T) {
	testlog.Start(t)
	if r := NewRegistry(0); r.cost != bcrypt.DefaultCost {
		t.Fatalf("zero cost should select default, got %d", r.cost)
	}
	r := NewRegistry(bcrypt.MaxCost + 1)
	if err := r.Validate("alice", "secret"); err == nil {
		t.Fatalf("expected invalid cost error")
	}
	if r.Known("alice") {
		t.Fatalf("failed registration must not be kept")
	}
}
