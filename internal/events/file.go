package events

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is an events document as read by `report`. JSON documents parse as
// YAML, so both encodings are accepted.
type File struct {
	ChannelName string      `yaml:"channel_name"`
	Events      []FileEvent `yaml:"events"`
}

type FileEvent struct {
	EventName          string         `yaml:"event_name"`
	City               string         `yaml:"city"`
	DateTime           int64          `yaml:"date_time"`
	Description        string         `yaml:"description"`
	GeneralInformation map[string]any `yaml:"general_information"`
}

func LoadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return ParseFile(raw)
}

func ParseFile(raw []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("events: parse file: %w", err)
	}
	f.ChannelName = strings.TrimSpace(f.ChannelName)
	if f.ChannelName == "" {
		return File{}, fmt.Errorf("events: file has no channel_name")
	}
	return f, nil
}

// Records converts the file entries into records owned by user.
func (f File) Records(user string) []Event {
	out := make([]Event, 0, len(f.Events))
	for _, fe := range f.Events {
		info := make(map[string]string, len(fe.GeneralInformation))
		for k, v := range fe.GeneralInformation {
			info[k] = fmt.Sprint(v)
		}
		out = append(out, Event{
			Channel:     f.ChannelName,
			User:        user,
			City:        fe.City,
			Name:        fe.EventName,
			Description: fe.Description,
			DateTime:    fe.DateTime,
			Info:        info,
		})
	}
	return out
}
