package events

import (
	"sort"
)

// Store keeps every event received during one login, grouped by channel.
type Store struct {
	byChannel map[string][]Event
	total     int
}

func NewStore() *Store {
	return &Store{byChannel: map[string][]Event{}}
}

// HandleMessage parses a MESSAGE body and appends the event.
func (s *Store) HandleMessage(channel string, body []byte) error {
	e, err := ParseBody(channel, body)
	if err != nil {
		return err
	}
	s.Add(e)
	return nil
}

func (s *Store) Add(e Event) {
	s.byChannel[e.Channel] = append(s.byChannel[e.Channel], e)
	s.total++
}

func (s *Store) Len() int {
	return s.total
}

// Channels lists channels with at least one event, sorted.
func (s *Store) Channels() []string {
	out := make([]string, 0, len(s.byChannel))
	for ch := range s.byChannel {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Reset drops every event.
func (s *Store) Reset() {
	s.byChannel = map[string][]Event{}
	s.total = 0
}

// Digest is one event line of a summary.
type Digest struct {
	City        string
	DateTime    int64
	Name        string
	Description string
}

// Summary is the per-user view of one channel.
type Summary struct {
	Channel       string
	User          string
	Total         int
	Active        int
	ForcesArrival int
	Counts        map[string]int
	Reports       []Digest
}

// Summarize collects user's events on channel ordered by timestamp, then by
// event name.
func (s *Store) Summarize(channel, user string) Summary {
	sum := Summary{Channel: channel, User: user, Counts: map[string]int{}}
	var owned []Event
	for _, e := range s.byChannel[channel] {
		if e.User == user {
			owned = append(owned, e)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].DateTime != owned[j].DateTime {
			return owned[i].DateTime < owned[j].DateTime
		}
		return owned[i].Name < owned[j].Name
	})
	for _, e := range owned {
		sum.Total++
		for k := range e.Info {
			if e.Flag(k) {
				sum.Counts[k]++
			}
		}
		sum.Reports = append(sum.Reports, Digest{
			City:        e.City,
			DateTime:    e.DateTime,
			Name:        e.Name,
			Description: e.Description,
		})
	}
	sum.Active = sum.Counts[FlagActive]
	sum.ForcesArrival = sum.Counts[FlagForcesArrival]
	return sum
}
