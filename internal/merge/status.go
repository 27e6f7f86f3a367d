package merge

import "chatsyncd/internal/store"

// validTransitions defines the allowed forward moves of a message status.
// sending back to pending is the requeue path for sends that never got an ack.
var validTransitions = map[string][]string{
	store.StatusPending:   {store.StatusSending, store.StatusSent, store.StatusFailed},
	store.StatusSending:   {store.StatusSent, store.StatusFailed, store.StatusPending},
	store.StatusSent:      {store.StatusDelivered, store.StatusRead},
	store.StatusDelivered: {store.StatusRead},
	store.StatusRead:      {},
	store.StatusFailed:    {},
}

// CanTransition reports whether a message may move from one status to
// another. Setting the same status again is always allowed (no-op).
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}
