package channel

import (
	"encoding/json"

	"chatsyncd/internal/store"
)

// Frame types carried over the realtime channel.
const (
	// Inbound.
	FrameMessageReceived  = "MESSAGE_RECEIVED"
	FrameMessageAck       = "MESSAGE_ACK"
	FrameCreateChat       = "CREATE_CHAT"
	FrameMessageDelivered = "MESSAGE_DELIVERED"
	FrameMessageSeen      = "MESSAGE_SEEN"

	// Outbound.
	FrameSendMessage = "SEND_MESSAGE"
)

// Frame is a tagged record exchanged over the channel. Only the fields
// relevant to the frame type are populated.
type Frame struct {
	Type string `json:"type"`

	// MESSAGE_RECEIVED carries the full message; SEND_MESSAGE carries it
	// as payload.
	Message *WireMessage `json:"message,omitempty"`
	Payload *WireMessage `json:"payload,omitempty"`

	// MESSAGE_ACK, MESSAGE_DELIVERED, MESSAGE_SEEN.
	ConversationID string `json:"conversation_id,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	ServerID       string `json:"server_id,omitempty"`

	// CREATE_CHAT.
	Conversation *WireConversation `json:"conversation,omitempty"`
}

// WireMessage is the channel/REST representation of a message. The server
// identifier travels as "id"; the client-assigned identifier as "local_id".
type WireMessage struct {
	ID             string `json:"id,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	Status         string `json:"status,omitempty"`
}

// WireConversation is the channel/REST representation of a conversation.
type WireConversation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Participants []string `json:"participants,omitempty"`
	UpdatedAt    int64    `json:"updated_at,omitempty"`
}

// DecodeFrame parses a raw channel payload.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ToStoreMessage converts a wire message to its cache representation.
// Server-delivered messages without an explicit status default to sent.
func (w *WireMessage) ToStoreMessage() *store.Message {
	status := w.Status
	if status == "" {
		status = store.StatusSent
	}
	return &store.Message{
		ConversationID: w.ConversationID,
		LocalID:        w.LocalID,
		ServerID:       w.ID,
		SenderID:       w.SenderID,
		SenderName:     w.SenderName,
		Content:        w.Content,
		Timestamp:      w.Timestamp,
		Status:         status,
	}
}

// ToStoreConversation converts a wire conversation to its cache representation.
func (w *WireConversation) ToStoreConversation() *store.Conversation {
	return &store.Conversation{
		ID:           w.ID,
		Title:        w.Title,
		Participants: w.Participants,
		Status:       store.ConversationActive,
	}
}

// FromStoreMessage builds the wire form of a locally composed message for a
// SEND_MESSAGE frame.
func FromStoreMessage(m *store.Message) *WireMessage {
	return &WireMessage{
		ID:             m.ServerID,
		LocalID:        m.LocalID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
	}
}
