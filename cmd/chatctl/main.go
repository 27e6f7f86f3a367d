package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatsyncd/internal/bus"
	"chatsyncd/internal/config"
	"chatsyncd/internal/merge"
	"chatsyncd/internal/session"
	"chatsyncd/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if err := session.EnsureDir(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(session.DBPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening store for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatctl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(db, sessionName, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "conversations":
		cmdConversations(db, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(db, args[1], *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl search <query>")
			os.Exit(1)
		}
		cmdSearch(db, strings.Join(args[1:], " "), *jsonFlag)
	case "queue":
		cmdQueue(db, *jsonFlag)
	case "status":
		cmdStatus(db, sessionName, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  send <conv> <text>   Compose a message (queued until the daemon delivers it)")
	fmt.Fprintln(os.Stderr, "  conversations        List conversations")
	fmt.Fprintln(os.Stderr, "  messages <conv>      List messages in a conversation")
	fmt.Fprintln(os.Stderr, "  search <query>       Full-text search across messages")
	fmt.Fprintln(os.Stderr, "  queue                Show undelivered outgoing messages")
	fmt.Fprintln(os.Stderr, "  status               Show sync cursors and message counts")
}

// cmdSend writes the message to the shared store as pending. The daemon picks
// it up on its next flush; no daemon needs to be running at compose time.
func cmdSend(db *store.DB, sessionName, conversationID, text string, jsonOut bool) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	engine := merge.NewEngine(db, bus.New(), cfg.UserID, zap.NewNop())
	msg, err := engine.Compose(conversationID, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Queued %s in %s\n", msg.LocalID, msg.ConversationID)
}

func cmdConversations(db *store.DB, jsonOut bool) {
	convos, err := db.ListConversations(100, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convos)
		return
	}
	if len(convos) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, c := range convos {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Printf("%-24s %-30s %s%s\n", c.ID, c.Title, formatTS(c.LastMessageAt), unread)
	}
}

func cmdMessages(db *store.DB, conversationID string, jsonOut bool) {
	msgs, err := db.ListMessages(conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %-10s %-20s %s\n", formatTS(m.Timestamp), m.Status, m.SenderName, m.Content)
	}
}

func cmdSearch(db *store.DB, query string, jsonOut bool) {
	results, err := db.SearchMessages(query, "", 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("%-24s [%s] %s\n", r.Message.ConversationID, formatTS(r.Message.Timestamp), r.Snippet)
	}
}

func cmdQueue(db *store.DB, jsonOut bool) {
	pending, err := db.MessagesByStatus(store.StatusPending)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	sending, err := db.MessagesByStatus(store.StatusSending)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	queued := append(pending, sending...)
	if jsonOut {
		outputJSON(queued)
		return
	}
	if len(queued) == 0 {
		fmt.Println("Queue is empty.")
		return
	}
	for _, m := range queued {
		fmt.Printf("%-10s %-24s %s\n", m.Status, m.ConversationID, m.Content)
	}
}

func cmdStatus(db *store.DB, sessionName string, jsonOut bool) {
	msgCursor, err := db.GetCursor(store.CursorMessages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	convCursor, err := db.GetCursor(store.CursorConversations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	counts, err := db.CountMessagesByStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]any{
			"session":              sessionName,
			"cursor_messages":      msgCursor,
			"cursor_conversations": convCursor,
			"counts":               counts,
		})
		return
	}
	fmt.Printf("Session:              %s\n", sessionName)
	fmt.Printf("Message cursor:       %s\n", formatTS(msgCursor))
	fmt.Printf("Conversation cursor:  %s\n", formatTS(convCursor))
	for _, status := range []string{store.StatusPending, store.StatusSending, store.StatusSent, store.StatusDelivered, store.StatusRead, store.StatusFailed} {
		if counts[status] > 0 {
			fmt.Printf("%-21s %d\n", status+":", counts[status])
		}
	}
}

func formatTS(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
