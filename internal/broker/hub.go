package broker

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/stompctl/internal/auth"
)

var (
	errAlreadyLoggedIn = errors.New("broker: user already logged in")
	errSubscriptionID  = errors.New("broker: subscription id already in use")
	errUnknownSub      = errors.New("broker: unknown subscription id")
)

// delivery is one subscriber of a published message.
type delivery struct {
	peer           *peer
	subscriptionID string
}

// Hub holds every online login and subscription. Registered passcodes live
// in creds and outlast logins.
type Hub struct {
	creds *auth.Registry

	mu     sync.Mutex
	online map[string]*peer
	topics map[string]map[*peer]string
}

func NewHub(creds *auth.Registry) *Hub {
	if creds == nil {
		creds = auth.NewRegistry(0)
	}
	return &Hub{
		creds:  creds,
		online: make(map[string]*peer),
		topics: make(map[string]map[*peer]string),
	}
}

// Connect authenticates p as login. A login seen for the first time is
// registered with passcode.
func (h *Hub) Connect(p *peer, login, passcode string) error {
	if err := h.creds.Validate(login, passcode); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.online[login]; ok {
		return errAlreadyLoggedIn
	}
	h.online[login] = p
	p.user = login
	return nil
}

func (h *Hub) Subscribe(p *peer, destination, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := p.subs[id]; ok {
		return errSubscriptionID
	}
	subs := h.topics[destination]
	if subs == nil {
		subs = make(map[*peer]string)
		h.topics[destination] = subs
	}
	subs[p] = id
	p.subs[id] = destination
	return nil
}

func (h *Hub) Unsubscribe(p *peer, id string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	destination, ok := p.subs[id]
	if !ok {
		return "", errUnknownSub
	}
	delete(p.subs, id)
	h.removeLocked(p, destination)
	return destination, nil
}

// Subscribers snapshots the subscribers of destination.
func (h *Hub) Subscribers(destination string) []delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]delivery, 0, len(h.topics[destination]))
	for p, id := range h.topics[destination] {
		out = append(out, delivery{peer: p, subscriptionID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peer.id < out[j].peer.id })
	return out
}

// Drop forgets p's login and subscriptions. Registered users are kept.
func (h *Hub) Drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, destination := range p.subs {
		delete(p.subs, id)
		h.removeLocked(p, destination)
	}
	if p.user != "" && h.online[p.user] == p {
		delete(h.online, p.user)
	}
}

func (h *Hub) removeLocked(p *peer, destination string) {
	subs := h.topics[destination]
	delete(subs, p)
	if len(subs) == 0 {
		delete(h.topics, destination)
	}
}

// Stats is a point-in-time count for health reporting.
type Stats struct {
	Users  int `json:"users"`
	Online int `json:"online"`
	Topics int `json:"topics"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Users: h.creds.Len(), Online: len(h.online), Topics: len(h.topics)}
}
