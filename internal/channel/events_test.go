package channel

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"chatsyncd/internal/bus"
	"chatsyncd/internal/merge"
	"chatsyncd/internal/store"
)

func testHandlerSetup(t *testing.T) (*Manager, *merge.Engine, *store.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	engine := merge.NewEngine(db, b, "self", nil)
	m := NewManager("ws://test", "", b, nil)
	NewEventHandler(engine, nil).Register(m)
	return m, engine, db
}

func frameBytes(t *testing.T, f Frame) []byte {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestMessageReceivedFrameIngests(t *testing.T) {
	m, _, db := testHandlerSetup(t)

	m.dispatch(frameBytes(t, Frame{
		Type: FrameMessageReceived,
		Message: &WireMessage{
			ID: "srv-1", ConversationID: "conv-1", SenderID: "alice",
			SenderName: "Alice", Content: "hello", Timestamp: 1000,
		},
	}))

	got, err := db.GetMessageByServerID("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("message not ingested")
	}
	if got.Status != store.StatusSent {
		t.Errorf("status = %q, want sent (wire default)", got.Status)
	}

	conv, err := db.GetConversation("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil || conv.UnreadCount != 1 {
		t.Errorf("conversation = %+v, want unread 1", conv)
	}
}

func TestMessageReceivedWithoutBodyIsDropped(t *testing.T) {
	m, _, db := testHandlerSetup(t)

	m.dispatch(frameBytes(t, Frame{Type: FrameMessageReceived}))

	counts, err := db.CountMessagesByStatus()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("counts = %v, want empty", counts)
	}
}

func TestAckFrameMarksSentAndAttachesServerID(t *testing.T) {
	m, engine, db := testHandlerSetup(t)

	msg, err := engine.Compose("conv-1", "outbound")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.UpdateStatus("conv-1", merge.Ref{LocalID: msg.LocalID}, store.StatusSending, ""); err != nil {
		t.Fatal(err)
	}

	m.dispatch(frameBytes(t, Frame{
		Type: FrameMessageAck, ConversationID: "conv-1",
		LocalID: msg.LocalID, ServerID: "srv-7",
	}))

	got, err := db.GetMessageByLocalID(msg.LocalID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusSent || got.ServerID != "srv-7" {
		t.Errorf("got status=%q server=%q, want sent/srv-7", got.Status, got.ServerID)
	}
}

func TestCreateChatFrameUpsertsConversation(t *testing.T) {
	m, _, db := testHandlerSetup(t)

	m.dispatch(frameBytes(t, Frame{
		Type: FrameCreateChat,
		Conversation: &WireConversation{
			ID: "conv-1", Title: "Team", Participants: []string{"alice", "bob"},
		},
	}))

	conv, err := db.GetConversation("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil || conv.Title != "Team" || conv.Status != store.ConversationActive {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestReceiptFramesAdvanceStatus(t *testing.T) {
	m, engine, db := testHandlerSetup(t)

	if _, err := engine.Upsert(&store.Message{ConversationID: "c", ServerID: "srv-1", Timestamp: 1, Status: store.StatusSent}); err != nil {
		t.Fatal(err)
	}

	m.dispatch(frameBytes(t, Frame{Type: FrameMessageDelivered, ConversationID: "c", ServerID: "srv-1"}))
	got, err := db.GetMessageByServerID("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", got.Status)
	}

	m.dispatch(frameBytes(t, Frame{Type: FrameMessageSeen, ConversationID: "c", ServerID: "srv-1"}))
	got, err = db.GetMessageByServerID("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusRead {
		t.Errorf("status = %q, want read", got.Status)
	}

	// A late delivered receipt after read must be dropped, not applied.
	m.dispatch(frameBytes(t, Frame{Type: FrameMessageDelivered, ConversationID: "c", ServerID: "srv-1"}))
	got, err = db.GetMessageByServerID("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusRead {
		t.Errorf("status regressed to %q", got.Status)
	}
}
