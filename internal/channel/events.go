package channel

import (
	"go.uber.org/zap"

	"chatsyncd/internal/merge"
	"chatsyncd/internal/store"
)

// EventHandler wires inbound channel frames to the merge engine. Frames
// arrive on the manager's read goroutine, so handlers run in per-connection
// arrival order; the merge engine serializes them against the other two
// ingestion paths.
type EventHandler struct {
	engine *merge.Engine
	logger *zap.Logger
}

// NewEventHandler creates an event handler backed by the merge engine.
func NewEventHandler(engine *merge.Engine, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{engine: engine, logger: logger}
}

// Register installs the frame dispatchers on the manager.
func (h *EventHandler) Register(m *Manager) {
	m.OnFrame(FrameMessageReceived, h.handleMessageReceived)
	m.OnFrame(FrameMessageAck, h.handleMessageAck)
	m.OnFrame(FrameCreateChat, h.handleCreateChat)
	m.OnFrame(FrameMessageDelivered, h.handleReceipt(store.StatusDelivered))
	m.OnFrame(FrameMessageSeen, h.handleReceipt(store.StatusRead))
}

func (h *EventHandler) handleMessageReceived(f *Frame) {
	if f.Message == nil {
		h.logger.Warn("MESSAGE_RECEIVED without message, dropped")
		return
	}
	if _, err := h.engine.Upsert(f.Message.ToStoreMessage()); err != nil {
		h.logger.Error("failed to ingest pushed message",
			zap.Error(err), zap.String("server_id", f.Message.ID))
	}
}

func (h *EventHandler) handleMessageAck(f *Frame) {
	err := h.engine.UpdateStatus(f.ConversationID,
		merge.Ref{LocalID: f.LocalID, ServerID: f.ServerID},
		store.StatusSent, f.ServerID)
	if err != nil {
		h.logger.Error("failed to apply ack",
			zap.Error(err), zap.String("local_id", f.LocalID), zap.String("server_id", f.ServerID))
	}
}

func (h *EventHandler) handleCreateChat(f *Frame) {
	if f.Conversation == nil {
		h.logger.Warn("CREATE_CHAT without conversation, dropped")
		return
	}
	if err := h.engine.UpsertConversation(f.Conversation.ToStoreConversation()); err != nil {
		h.logger.Error("failed to ingest conversation",
			zap.Error(err), zap.String("conversation_id", f.Conversation.ID))
	}
}

func (h *EventHandler) handleReceipt(status string) Handler {
	return func(f *Frame) {
		err := h.engine.UpdateStatus(f.ConversationID,
			merge.Ref{ServerID: f.ServerID}, status, "")
		if err != nil {
			h.logger.Warn("failed to apply receipt",
				zap.Error(err), zap.String("server_id", f.ServerID), zap.String("status", status))
		}
	}
}
