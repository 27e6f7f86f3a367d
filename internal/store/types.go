package store

// Message statuses, in delivery order. A message only ever moves forward
// through this sequence; failed is terminal and reachable from pending or
// sending. The transition rules live in the merge engine.
const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Conversation statuses.
const (
	ConversationActive  = "active"
	ConversationPending = "pending" // created locally while offline, not yet on the server
)

// Cursor keys in the sync_state table.
const (
	CursorMessages      = "cursor.messages"
	CursorConversations = "cursor.conversations"
)

// Message is a cached chat message. LocalID is assigned at compose time and
// never changes; ServerID is empty until the server acknowledges the message
// and immutable afterwards.
type Message struct {
	ID             int64
	ConversationID string
	LocalID        string
	ServerID       string
	SenderID       string
	SenderName     string
	Content        string
	Timestamp      int64 // epoch milliseconds
	Status         string
}

// Conversation is a cached conversation summary. LastMessageAt and
// LastMessagePreview are derived from the newest known message.
type Conversation struct {
	ID                 string
	Title              string
	Participants       []string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	Status             string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
