package bot

import (
	"strings"

	"github.com/Gopher0727/SecretSanta/internal/services"
)

type EventType string

const (
	EventUserSeen EventType = "user_seen"
	EventText     EventType = "text"
	EventMedia    EventType = "media"
	EventCommand  EventType = "command"
)

// Event is one inbound interaction from a chat transport. The same JSON
// arrives over HTTP and Kafka.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	Text      string    `json:"text,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Command   string    `json:"command,omitempty"`
	Args      []string  `json:"args,omitempty"`
}

// Normalize checks the event and brings the command to its bare lower-case
// form, so "/Draw" and "draw" are the same.
func (e *Event) Normalize() error {
	e.UserID = strings.TrimSpace(e.UserID)
	if e.UserID == "" {
		return &services.ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	switch e.Type {
	case EventUserSeen, EventText:
	case EventMedia:
		if e.MediaRef == "" {
			return &services.ValidationError{Field: "media_ref", Message: "media events need a media_ref"}
		}
	case EventCommand:
		cmd := strings.ToLower(strings.TrimSpace(e.Command))
		cmd = strings.TrimPrefix(cmd, "/")
		// Transports may append the bot name, as in "draw@santa_bot".
		if at := strings.IndexByte(cmd, '@'); at >= 0 {
			cmd = cmd[:at]
		}
		if cmd == "" {
			return &services.ValidationError{Field: "command", Message: "command events need a command"}
		}
		e.Command = cmd
	default:
		return &services.ValidationError{Field: "type", Message: "unknown event type " + string(e.Type)}
	}
	return nil
}

func (e *Event) profile() services.Profile {
	return services.Profile{ExternalID: e.UserID, Username: e.Username, FirstName: e.FirstName}
}
