package events

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flags every event carries in its general information.
const (
	FlagActive        = "active"
	FlagForcesArrival = "forces_arrival_at_scene"
)

const (
	keyUser        = "user"
	keyCity        = "city"
	keyEventName   = "event name"
	keyDateTime    = "date time"
	keyGeneralInfo = "general information"
	keyDescription = "description"
)

var ErrMalformedEvent = errors.New("events: malformed event body")

// Event is one report received on a channel. It is never mutated after
// ParseBody returns it.
type Event struct {
	Channel     string
	User        string
	City        string
	Name        string
	Description string
	DateTime    int64
	Info        map[string]string
}

// Flag reports whether the named general information value is "true".
func (e Event) Flag(name string) bool {
	return strings.EqualFold(strings.TrimSpace(e.Info[name]), "true")
}

// FormatBody renders e as a SEND body.
func FormatBody(e Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s\n", keyUser, e.User)
	fmt.Fprintf(&b, "%s:%s\n", keyCity, e.City)
	fmt.Fprintf(&b, "%s:%s\n", keyEventName, e.Name)
	fmt.Fprintf(&b, "%s:%d\n", keyDateTime, e.DateTime)
	fmt.Fprintf(&b, "%s:\n", keyGeneralInfo)
	for _, k := range infoKeys(e.Info) {
		fmt.Fprintf(&b, "  %s:%s\n", k, e.Info[k])
	}
	fmt.Fprintf(&b, "%s:\n", keyDescription)
	b.WriteString(e.Description)
	if e.Description != "" && !strings.HasSuffix(e.Description, "\n") {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseBody reads a body written by FormatBody. Everything after the
// description line is the description, blank lines included.
func ParseBody(channel string, body []byte) (Event, error) {
	e := Event{Channel: channel, Info: map[string]string{}}
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	inInfo := false
	seen := map[string]bool{}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			return Event{}, fmt.Errorf("%w: line %d has no colon", ErrMalformedEvent, i+1)
		}
		key = strings.TrimSpace(key)
		if inInfo && indented {
			e.Info[key] = strings.TrimSpace(value)
			continue
		}
		inInfo = false
		switch key {
		case keyUser:
			e.User = strings.TrimSpace(value)
		case keyCity:
			e.City = strings.TrimSpace(value)
		case keyEventName:
			e.Name = strings.TrimSpace(value)
		case keyDateTime:
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("%w: date time %q", ErrMalformedEvent, value)
			}
			e.DateTime = ts
		case keyGeneralInfo:
			inInfo = true
		case keyDescription:
			rest := strings.Join(lines[i+1:], "\n")
			if inline := strings.TrimSpace(value); inline != "" {
				rest = inline + "\n" + rest
			}
			e.Description = strings.TrimRight(rest, "\n")
			seen[key] = true
			return e.checked(seen)
		default:
			return Event{}, fmt.Errorf("%w: unknown field %q", ErrMalformedEvent, key)
		}
		seen[key] = true
	}
	return e.checked(seen)
}

func (e Event) checked(seen map[string]bool) (Event, error) {
	for _, k := range []string{keyUser, keyEventName, keyDateTime} {
		if !seen[k] {
			return Event{}, fmt.Errorf("%w: missing %q", ErrMalformedEvent, k)
		}
	}
	if e.User == "" {
		return Event{}, fmt.Errorf("%w: empty user", ErrMalformedEvent)
	}
	return e, nil
}

// infoKeys puts the two well-known flags first, then the rest sorted.
func infoKeys(info map[string]string) []string {
	keys := make([]string, 0, len(info))
	for _, k := range []string{FlagActive, FlagForcesArrival} {
		if _, ok := info[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range info {
		if k != FlagActive && k != FlagForcesArrival {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
