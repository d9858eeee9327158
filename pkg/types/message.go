package types

import "github.com/rs/zerolog"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RoleFromString maps unknown role strings to RoleUser, mirroring the
// permissive parsing used on the wire.
func RoleFromString(s string) Role {
	switch s {
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func (m Message) MarshalZerologObject(e *zerolog.Event) {
	e.Str("role", string(m.Role))
	e.Int("content_length", len(m.Content))
}

var _ zerolog.LogObjectMarshaler = Message{}
