package session

import "sort"

// Registry maps channel names to locally assigned subscription ids. It is not
// safe for concurrent use; the owning Session's caller serializes access.
type Registry struct {
	next      int
	byChannel map[string]int
	byID      map[int]string
}

func NewRegistry() *Registry {
	return &Registry{
		next:      1,
		byChannel: make(map[string]int),
		byID:      make(map[int]string),
	}
}

// NextID returns a strictly increasing id starting at 1. Ids are never reused,
// including after Clear.
func (r *Registry) NextID() int {
	id := r.next
	r.next++
	return id
}

// Register binds channel to id, replacing any previous binding of either.
func (r *Registry) Register(channel string, id int) {
	if old, ok := r.byChannel[channel]; ok {
		delete(r.byID, old)
	}
	if old, ok := r.byID[id]; ok {
		delete(r.byChannel, old)
	}
	r.byChannel[channel] = id
	r.byID[id] = channel
}

func (r *Registry) Unregister(channel string) (int, bool) {
	id, ok := r.byChannel[channel]
	if !ok {
		return 0, false
	}
	delete(r.byChannel, channel)
	delete(r.byID, id)
	return id, true
}

func (r *Registry) IDFor(channel string) (int, bool) {
	id, ok := r.byChannel[channel]
	return id, ok
}

func (r *Registry) ChannelFor(id int) (string, bool) {
	channel, ok := r.byID[id]
	return channel, ok
}

func (r *Registry) Len() int {
	return len(r.byChannel)
}

// Channels lists subscribed channels in id order.
func (r *Registry) Channels() []string {
	ids := make([]int, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Clear() {
	clear(r.byChannel)
	clear(r.byID)
}
