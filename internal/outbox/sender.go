// Package outbox replays locally composed messages that are not yet
// acknowledged. The queue has no storage of its own: any message persisted
// with status pending is, by construction, a queue member.
package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatsyncd/internal/channel"
	chaterrors "chatsyncd/internal/errors"
	"chatsyncd/internal/merge"
	"chatsyncd/internal/store"
)

const (
	pollInterval      = 2 * time.Second
	defaultAckTimeout = 30 * time.Second
)

// FrameSender is the slice of the connection manager the sender needs.
type FrameSender interface {
	Send(ctx context.Context, f *channel.Frame) error
	IsOpen() bool
}

// Sender drains the pending view of the cache over the realtime channel.
// A send attempt marks the message sending; only a MESSAGE_ACK moves it to
// sent, and sends that never get an ack are requeued after a timeout. The
// server deduplicates by local identifier, so a rare double send is safe.
type Sender struct {
	db         *store.DB
	engine     *merge.Engine
	channel    FrameSender
	logger     *zap.Logger
	ackTimeout time.Duration
	cancel     context.CancelFunc

	// flushMu serializes whole flush passes; Flush is safe to call
	// repeatedly and concurrently.
	flushMu sync.Mutex
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, engine *merge.Engine, ch FrameSender, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:         db,
		engine:     engine,
		channel:    ch,
		logger:     logger,
		ackTimeout: defaultAckTimeout,
	}
}

// Start begins the background loop that requeues stale sends and picks up
// pending messages composed outside the daemon (e.g. by chatctl).
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RequeueStale()
			if s.channel.IsOpen() {
				_ = s.Flush(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush attempts to send every pending message. A successful write does not
// change status beyond sending; the ack handler does. If the channel closes
// mid-pass the remaining messages simply stay pending for the next flush.
func (s *Sender) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	pending, err := s.db.MessagesByStatus(store.StatusPending)
	if err != nil {
		s.logger.Error("failed to read pending messages", zap.Error(err))
		return err
	}
	if len(pending) > 0 {
		s.logger.Info("flushing pending messages", zap.Int("count", len(pending)))
	}

	for i := range pending {
		m := &pending[i]
		ref := merge.Ref{LocalID: m.LocalID}

		if err := s.engine.UpdateStatus(m.ConversationID, ref, store.StatusSending, ""); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("local_id", m.LocalID))
			continue
		}

		frame := &channel.Frame{
			Type:    channel.FrameSendMessage,
			Payload: channel.FromStoreMessage(m),
		}
		if err := s.channel.Send(ctx, frame); err != nil {
			// Back to pending so the next flush retries it.
			if revertErr := s.engine.UpdateStatus(m.ConversationID, ref, store.StatusPending, ""); revertErr != nil {
				s.logger.Error("failed to revert to pending", zap.Error(revertErr), zap.String("local_id", m.LocalID))
			}
			if errors.Is(err, chaterrors.ErrChannelClosed) {
				return nil
			}
			s.logger.Warn("send failed", zap.Error(err), zap.String("local_id", m.LocalID))
			continue
		}

		s.logger.Info("message sent, awaiting ack", zap.String("local_id", m.LocalID))
	}
	return nil
}

// RequeueStale moves messages stuck in sending past the ack timeout back to
// pending so they are retried instead of hanging in flight forever.
func (s *Sender) RequeueStale() {
	cutoff := time.Now().Add(-s.ackTimeout).UnixMilli()
	stale, err := s.db.SendingBefore(cutoff)
	if err != nil {
		s.logger.Error("failed to read stale sends", zap.Error(err))
		return
	}
	for i := range stale {
		m := &stale[i]
		if err := s.engine.UpdateStatus(m.ConversationID, merge.Ref{LocalID: m.LocalID}, store.StatusPending, ""); err != nil {
			s.logger.Error("failed to requeue stale send", zap.Error(err), zap.String("local_id", m.LocalID))
			continue
		}
		s.logger.Warn("send requeued after ack timeout", zap.String("local_id", m.LocalID))
	}
}
