package merge

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatsyncd/internal/bus"
	chaterrors "chatsyncd/internal/errors"
	"chatsyncd/internal/store"
)

// Engine is the single mutation path for messages and conversation summaries.
// The inbound frame handler, the reconciliation pass, and local compose all
// funnel through it, and a mutex serializes them so the identifier-matching
// rules see a consistent cache.
//
// The store is ground truth: every mutation is written through before any
// event is published, and a failed write propagates to the caller instead of
// leaving a diverged in-memory view.
type Engine struct {
	mu     sync.Mutex
	db     *store.DB
	bus    *bus.Bus
	selfID string
	logger *zap.Logger
}

// Ref identifies a message by whichever identifier the caller has.
type Ref struct {
	LocalID  string
	ServerID string
}

// NewEngine creates a new merge engine. selfID is the local user identifier,
// used to keep unread counters from counting the user's own messages.
func NewEngine(db *store.DB, b *bus.Bus, selfID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, bus: b, selfID: selfID, logger: logger}
}

// Upsert inserts or merges a message. Matching priority: server identifier,
// then local identifier, then insert as new. On merge, non-zero incoming
// fields win; the local identifier is never cleared and the server
// identifier never changes once set. Returns the stored record.
func (e *Engine) Upsert(msg *store.Message) (*store.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upsertLocked(msg)
}

func (e *Engine) upsertLocked(msg *store.Message) (*store.Message, error) {
	existing, err := e.lookup(Ref{LocalID: msg.LocalID, ServerID: msg.ServerID})
	if err != nil {
		return nil, fmt.Errorf("lookup message: %w", err)
	}

	if existing == nil {
		stored := *msg
		if err := e.db.InsertMessage(&stored); err != nil {
			return nil, fmt.Errorf("%w: insert message: %v", chaterrors.ErrCacheWrite, err)
		}
		if err := e.bumpConversation(&stored, true); err != nil {
			return nil, err
		}
		e.publishUpserted(&stored)
		return &stored, nil
	}

	merged := mergeInto(existing, msg)
	if err := e.db.UpdateMessage(merged); err != nil {
		return nil, fmt.Errorf("%w: update message: %v", chaterrors.ErrCacheWrite, err)
	}
	if err := e.bumpConversation(merged, false); err != nil {
		return nil, err
	}
	e.publishUpserted(merged)
	return merged, nil
}

// UpdateStatus moves a message to a new status, attaching the server
// identifier when newly provided. Backward transitions are rejected.
func (e *Engine) UpdateStatus(conversationID string, ref Ref, newStatus, serverID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, err := e.lookup(ref)
	if err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("%w: conversation %s local_id=%q server_id=%q",
			chaterrors.ErrMessageNotFound, conversationID, ref.LocalID, ref.ServerID)
	}

	if !CanTransition(msg.Status, newStatus) {
		return fmt.Errorf("%w: %s to %s (local_id=%q)",
			chaterrors.ErrBackwardTransition, msg.Status, newStatus, msg.LocalID)
	}

	changed := msg.Status != newStatus
	msg.Status = newStatus
	if serverID != "" && msg.ServerID == "" {
		msg.ServerID = serverID
		changed = true
	}
	if !changed {
		return nil
	}

	if err := e.db.UpdateMessage(msg); err != nil {
		return fmt.Errorf("%w: update status: %v", chaterrors.ErrCacheWrite, err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "message.status_changed",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"local_id":        msg.LocalID,
			"server_id":       msg.ServerID,
			"status":          msg.Status,
		},
	})
	return nil
}

// Compose creates a locally authored message with a fresh local identifier
// and persists it as pending. By construction this places it in the outgoing
// queue; the conversation is created as pending when it does not exist yet.
func (e *Engine) Compose(conversationID, content string) (*store.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	conv, err := e.db.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		if err := e.UpsertConversation(&store.Conversation{
			ID:     conversationID,
			Status: store.ConversationPending,
		}); err != nil {
			return nil, err
		}
	}

	msg := &store.Message{
		ConversationID: conversationID,
		LocalID:        uuid.NewString(),
		SenderID:       e.selfID,
		Content:        content,
		Timestamp:      time.Now().UnixMilli(),
		Status:         store.StatusPending,
	}
	return e.upsertLocked(msg)
}

// UpsertConversation persists a conversation record and publishes the change.
func (e *Engine) UpsertConversation(c *store.Conversation) error {
	if err := e.db.UpsertConversation(c); err != nil {
		return fmt.Errorf("%w: upsert conversation: %v", chaterrors.ErrCacheWrite, err)
	}
	e.bus.Publish(bus.Event{
		Kind:      "conversation.upserted",
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": c.ID},
	})
	return nil
}

// lookup finds a message by server identifier first, local identifier second.
func (e *Engine) lookup(ref Ref) (*store.Message, error) {
	if ref.ServerID != "" {
		m, err := e.db.GetMessageByServerID(ref.ServerID)
		if err != nil || m != nil {
			return m, err
		}
	}
	if ref.LocalID != "" {
		return e.db.GetMessageByLocalID(ref.LocalID)
	}
	return nil, nil
}

// mergeInto applies incoming fields over the existing record. The incoming
// record is treated as more current, but identifiers are sticky and the
// status may only move forward.
func mergeInto(existing, incoming *store.Message) *store.Message {
	merged := *existing
	if incoming.ConversationID != "" {
		merged.ConversationID = incoming.ConversationID
	}
	if incoming.LocalID != "" && merged.LocalID == "" {
		merged.LocalID = incoming.LocalID
	}
	if incoming.ServerID != "" && merged.ServerID == "" {
		merged.ServerID = incoming.ServerID
	}
	if incoming.SenderID != "" {
		merged.SenderID = incoming.SenderID
	}
	if incoming.SenderName != "" {
		merged.SenderName = incoming.SenderName
	}
	if incoming.Content != "" {
		merged.Content = incoming.Content
	}
	if incoming.Timestamp != 0 {
		merged.Timestamp = incoming.Timestamp
	}
	if incoming.Status != "" && CanTransition(merged.Status, incoming.Status) {
		merged.Status = incoming.Status
	}
	return &merged
}

// bumpConversation keeps the conversation summary consistent with its newest
// message, creating the conversation on first reference. Only inbound
// messages from other users grow the unread counter, and only on insert.
func (e *Engine) bumpConversation(msg *store.Message, inserted bool) error {
	if err := e.db.BumpConversation(msg.ConversationID, msg.Timestamp, truncate(msg.Content, 100)); err != nil {
		return fmt.Errorf("%w: bump conversation: %v", chaterrors.ErrCacheWrite, err)
	}
	if inserted && msg.SenderID != "" && msg.SenderID != e.selfID {
		if err := e.db.IncrementUnread(msg.ConversationID); err != nil {
			return fmt.Errorf("%w: increment unread: %v", chaterrors.ErrCacheWrite, err)
		}
	}
	return nil
}

func (e *Engine) publishUpserted(msg *store.Message) {
	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"local_id":        msg.LocalID,
			"server_id":       msg.ServerID,
			"status":          msg.Status,
		},
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
