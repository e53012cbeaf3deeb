package model

type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeAI   MessageType = "ai"
)

type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

func (m Message) IsUser() bool {
	return m.Type == MessageTypeUser
}
