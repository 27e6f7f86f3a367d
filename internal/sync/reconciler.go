// Package sync implements pull-based catch-up against the server's sync
// endpoints.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatsyncd/internal/api"
	chaterrors "chatsyncd/internal/errors"
	"chatsyncd/internal/merge"
	"chatsyncd/internal/store"
)

// Reconciler fetches records changed since the persisted cursors, feeds the
// net-new ones through the merge engine, and advances the cursors. It never
// retries on its own: a failed pass surfaces the error and waits for the
// next connectivity transition.
type Reconciler struct {
	db     *store.DB
	api    *api.Client
	engine *merge.Engine
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, client *api.Client, engine *merge.Engine, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		db:     db,
		api:    client,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// ReconcileConversations performs one conversation catch-up pass and returns
// the accepted records. The cursor advances to now only after the whole
// batch is durably persisted, and also on an empty batch (prevents tight
// refetch loops over an unchanging window).
func (r *Reconciler) ReconcileConversations(ctx context.Context) ([]store.Conversation, error) {
	cursor, err := r.db.GetCursor(store.CursorConversations)
	if err != nil {
		return nil, fmt.Errorf("read conversation cursor: %w", err)
	}

	wire, err := r.api.ConversationsSince(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: conversations since %d: %v", chaterrors.ErrReconciliation, cursor, err)
	}

	var accepted []store.Conversation
	for i := range wire {
		conv := wire[i].ToStoreConversation()
		if err := r.engine.UpsertConversation(conv); err != nil {
			return nil, err
		}
		accepted = append(accepted, *conv)
	}

	if err := r.db.SetCursor(store.CursorConversations, r.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("%w: advance conversation cursor: %v", chaterrors.ErrCacheWrite, err)
	}

	r.logger.Info("conversations reconciled",
		zap.Int64("since", cursor),
		zap.Int("fetched", len(wire)),
		zap.Int("accepted", len(accepted)),
	)
	return accepted, nil
}

// ReconcileMessages performs one message catch-up pass. Fetched messages
// whose server identifier is already cached are discarded, making repeated
// passes over overlapping windows idempotent.
func (r *Reconciler) ReconcileMessages(ctx context.Context) ([]store.Message, error) {
	cursor, err := r.db.GetCursor(store.CursorMessages)
	if err != nil {
		return nil, fmt.Errorf("read message cursor: %w", err)
	}

	wire, err := r.api.MessagesSince(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: messages since %d: %v", chaterrors.ErrReconciliation, cursor, err)
	}

	var accepted []store.Message
	for i := range wire {
		wm := &wire[i]
		if wm.ID != "" {
			existing, err := r.db.GetMessageByServerID(wm.ID)
			if err != nil {
				return nil, fmt.Errorf("dedup lookup: %w", err)
			}
			if existing != nil {
				continue
			}
		}
		stored, err := r.engine.Upsert(wm.ToStoreMessage())
		if err != nil {
			return nil, err
		}
		accepted = append(accepted, *stored)
	}

	// Advance to wall-clock now rather than the batch's max timestamp, so
	// slow-settling records are picked up by the next pass.
	if err := r.db.SetCursor(store.CursorMessages, r.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("%w: advance message cursor: %v", chaterrors.ErrCacheWrite, err)
	}

	r.logger.Info("messages reconciled",
		zap.Int64("since", cursor),
		zap.Int("fetched", len(wire)),
		zap.Int("accepted", len(accepted)),
	)
	return accepted, nil
}
