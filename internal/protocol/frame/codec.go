package frame

import (
	"bytes"
	"strings"
)

// Encode renders f as wire text including the terminator byte.
func Encode(f Frame) (string, error) {
	if err := checkCommand(f.Command); err != nil {
		return "", err
	}
	if bytes.IndexByte(f.Body, Terminator) >= 0 {
		return "", encodingErr("%s body contains the terminator byte", f.Command)
	}

	var b strings.Builder
	b.Grow(64 + len(f.Body))
	b.WriteString(string(f.Command))
	b.WriteByte('\n')
	for _, h := range f.Headers {
		if h.Key == "" {
			return "", encodingErr("%s has an empty header key", f.Command)
		}
		if err := CheckValue(h.Key); err != nil {
			return "", err
		}
		if err := CheckValue(h.Value); err != nil {
			return "", err
		}
		b.WriteString(escape(h.Key))
		b.WriteByte(':')
		b.WriteString(escape(h.Value))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(Terminator)
	return b.String(), nil
}

// Decode parses one frame's wire text. The trailing terminator is optional.
// Unknown but well-formed commands decode without error; callers decide how
// to reject them.
func Decode(text string) (Frame, error) {
	text = strings.TrimSuffix(text, string(Terminator))
	if strings.IndexByte(text, Terminator) >= 0 {
		return Frame{}, parseErr("terminator byte inside frame")
	}
	text = strings.TrimLeft(text, "\r\n")
	if text == "" {
		return Frame{}, parseErr("empty frame")
	}

	line, rest, more := cutLine(text)
	cmd := Command(line)
	if err := checkCommandToken(cmd); err != nil {
		return Frame{}, err
	}

	f := Frame{Command: cmd}
	for more {
		line, rest, more = cutLine(rest)
		if line == "" {
			if more {
				// only the first blank line ends the header block
				if rest != "" {
					f.Body = []byte(rest)
				}
				return f, nil
			}
			break
		}
		h, err := parseHeader(line)
		if err != nil {
			return Frame{}, err
		}
		f.Headers = append(f.Headers, h)
	}
	return f, nil
}

// CheckValue rejects strings holding control bytes the header escaping rule
// cannot represent.
func CheckValue(v string) error {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\n' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return encodingErr("header text %q holds control byte 0x%02x", v, c)
		}
	}
	return nil
}

func checkCommand(cmd Command) error {
	if err := checkCommandToken(cmd); err != nil {
		return encodingErr("invalid command %q", string(cmd))
	}
	return nil
}

func checkCommandToken(cmd Command) error {
	if cmd == "" {
		return parseErr("missing command")
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if (c < 'A' || c > 'Z') && c != '_' {
			return parseErr("malformed command %q", string(cmd))
		}
	}
	return nil
}

func parseHeader(line string) (Header, error) {
	rawKey, rawValue, ok := strings.Cut(line, ":")
	if !ok {
		return Header{}, parseErr("header line %q has no colon", line)
	}
	if rawKey == "" {
		return Header{}, parseErr("header line %q has an empty key", line)
	}
	key, err := unescape(rawKey)
	if err != nil {
		return Header{}, err
	}
	value, err := unescape(rawValue)
	if err != nil {
		return Header{}, err
	}
	return Header{Key: key, Value: value}, nil
}

// cutLine splits at the first LF, dropping one trailing CR from the line.
func cutLine(s string) (line, rest string, found bool) {
	line, rest, found = strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r"), rest, found
}

var escaper = strings.NewReplacer(`\`, `\\`, ":", `\c`, "\n", `\n`)

func escape(s string) string {
	if !strings.ContainsAny(s, "\\:\n") {
		return s
	}
	return escaper.Replace(s)
}

func unescape(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", parseErr("dangling escape in %q", s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'c':
			b.WriteByte(':')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", parseErr("undefined escape \\%c in %q", s[i], s)
		}
	}
	return b.String(), nil
}
