// Package auth checks broker login credentials.
//
// Passcodes are kept as bcrypt hashes; nothing is persisted.
package auth

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrLoginRequired = errors.New("auth: login required")
)

// Registry registers a login the first time it is seen and checks the
// passcode on every later attempt.
type Registry struct {
	cost int

	mu     sync.Mutex
	hashes map[string][]byte
}

// NewRegistry hashes with cost; zero selects bcrypt.DefaultCost.
func NewRegistry(cost int) *Registry {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Registry{cost: cost, hashes: make(map[string][]byte)}
}

// Validate returns ErrLoginRequired for a blank login and ErrUnauthorized
// when passcode does not match the registered hash.
func (r *Registry) Validate(login, passcode string) error {
	if strings.TrimSpace(login) == "" {
		return ErrLoginRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if hash, ok := r.hashes[login]; ok {
		if bcrypt.CompareHashAndPassword(hash, []byte(passcode)) != nil {
			return ErrUnauthorized
		}
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), r.cost)
	if err != nil {
		return err
	}
	r.hashes[login] = hash
	return nil
}

// Known reports whether login has registered.
func (r *Registry) Known(login string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hashes[login]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hashes)
}
