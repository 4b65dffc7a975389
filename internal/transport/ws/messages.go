package ws

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/chat/internal/domain"
)

// Типы событий в WS
const (
	TypeSendMessage    = "SendMessage"    // клиент -> сервер
	TypeReceiveMessage = "ReceiveMessage" // сервер -> все клиенты
	TypeError          = "Error"          // сервер -> только отправителю
	TypeLogout         = "Logout"         // клиент -> сервер, нормальное закрытие
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inbound откладывает разбор payload до выбора типа.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SendMessagePayload struct {
	Content string `json:"content"`
	// Ref is echoed back in an Error so the client can match it to a pending send.
	Ref string `json:"ref,omitempty"`
}

type ReceiveMessagePayload struct {
	ID       int64     `json:"id"`
	UserName string    `json:"userName"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func NewReceiveMessage(m *domain.ChatMessage) Message {
	return Message{
		Type: TypeReceiveMessage,
		Payload: ReceiveMessagePayload{
			ID:       m.ID,
			UserName: m.UserName,
			Content:  m.Content,
			SentAt:   m.SentAt,
		},
	}
}
