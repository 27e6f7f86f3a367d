package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced; subscribers filter by prefix:
//
//	net.up / net.down               network reachability changed
//	channel.open / channel.closed   realtime channel state changed
//	message.upserted                message inserted or merged in the cache
//	message.status_changed          message status moved forward
//	conversation.upserted           conversation summary changed
//	sync.completed / sync.failed    reconciliation pass finished
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
