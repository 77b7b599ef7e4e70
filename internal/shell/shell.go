// Package shell parses the interactive command surface.
package shell

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

type Kind int

const (
	Login Kind = iota + 1
	Join
	Exit
	Report
	Summary
	Logout
	Quit
)

func (k Kind) String() string {
	switch k {
	case Login:
		return "login"
	case Join:
		return "join"
	case Exit:
		return "exit"
	case Report:
		return "report"
	case Summary:
		return "summary"
	case Logout:
		return "logout"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

var (
	ErrEmpty   = errors.New("shell: empty line")
	ErrUsage   = errors.New("shell: usage")
	ErrUnknown = errors.New("shell: unknown command")
)

var usages = map[string]string{
	"login":   "login {host:port} {username} {password}",
	"join":    "join {channel_name}",
	"exit":    "exit {channel_name} | exit",
	"report":  "report {file}",
	"summary": "summary {channel_name} {user} {file}",
	"logout":  "logout",
}

// Command is one parsed user line.
type Command struct {
	Kind     Kind
	Addr     string
	Host     string
	Port     int
	User     string
	Passcode string
	Channel  string
	File     string
}

// Usage returns the usage line for a command word.
func Usage(word string) string {
	return usages[word]
}

// Help lists every usage line.
func Help() string {
	words := []string{"login", "join", "exit", "report", "summary", "logout"}
	lines := make([]string, 0, len(words))
	for _, w := range words {
		lines = append(lines, usages[w])
	}
	return strings.Join(lines, "\n")
}

// Parse splits line on whitespace and validates the argument count.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmpty
	}
	word, args := fields[0], fields[1:]
	switch word {
	case "login":
		if len(args) != 3 {
			return Command{}, usageErr(word)
		}
		host, port, err := splitAddr(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s: %v", ErrUsage, usages[word], err)
		}
		return Command{Kind: Login, Addr: args[0], Host: host, Port: port, User: args[1], Passcode: args[2]}, nil
	case "join":
		if len(args) != 1 {
			return Command{}, usageErr(word)
		}
		return Command{Kind: Join, Channel: args[0]}, nil
	case "exit":
		switch len(args) {
		case 0:
			return Command{Kind: Quit}, nil
		case 1:
			return Command{Kind: Exit, Channel: args[0]}, nil
		default:
			return Command{}, usageErr(word)
		}
	case "report":
		if len(args) != 1 {
			return Command{}, usageErr(word)
		}
		return Command{Kind: Report, File: args[0]}, nil
	case "summary":
		if len(args) != 3 {
			return Command{}, usageErr(word)
		}
		return Command{Kind: Summary, Channel: args[0], User: args[1], File: args[2]}, nil
	case "logout":
		if len(args) != 0 {
			return Command{}, usageErr(word)
		}
		return Command{Kind: Logout}, nil
	case "quit":
		return Command{Kind: Quit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknown, word)
	}
}

func usageErr(word string) error {
	return fmt.Errorf("%w: %s", ErrUsage, usages[word])
}

func splitAddr(addr string) (string, int, error) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, errors.New("missing host")
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", rawPort)
	}
	return host, port, nil
}
