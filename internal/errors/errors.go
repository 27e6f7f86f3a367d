package errors

import "errors"

// Channel errors.
var (
	// ErrChannelClosed is returned by Send when the realtime channel is not
	// open. Recoverable: the message stays pending in the cache and is
	// replayed by the outgoing queue on the next connection.
	ErrChannelClosed = errors.New("channel closed")

	// ErrConnect is a transport-level failure to establish the channel.
	// Never fatal; the connection manager backs off and retries.
	ErrConnect = errors.New("channel connect failed")
)

// Sync errors.
var (
	// ErrReconciliation wraps a network or HTTP failure during catch-up.
	// The cursor is not advanced when this is returned.
	ErrReconciliation = errors.New("reconciliation failed")

	// ErrCacheWrite is a durable-store write failure. Propagated to the
	// mutation caller so optimistic UI state is never committed.
	ErrCacheWrite = errors.New("cache write failed")
)

// Merge errors.
var (
	// ErrBackwardTransition is returned when a status update would move a
	// message backward in the delivery sequence (pending, sending, sent,
	// delivered, read).
	ErrBackwardTransition = errors.New("backward status transition")

	// ErrMessageNotFound is returned by status updates for an unknown
	// local or server identifier.
	ErrMessageNotFound = errors.New("message not found")
)
