// Package orchestrator reacts to connectivity transitions and drives the
// outgoing queue and the reconciler at the right times. It is the only
// component allowed to trigger queue flushes and reconciliation passes.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"chatsyncd/internal/bus"
	"chatsyncd/internal/store"
)

// Connector is the slice of the connection manager the orchestrator drives.
type Connector interface {
	Connect(ctx context.Context) error
	IsOpen() bool
}

// Flusher replays the outgoing queue.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Syncer runs catch-up reconciliation passes.
type Syncer interface {
	ReconcileConversations(ctx context.Context) ([]store.Conversation, error)
	ReconcileMessages(ctx context.Context) ([]store.Message, error)
}

// Orchestrator subscribes to net.* and channel.* events. Network up with the
// channel closed triggers a connect; every channel establishment triggers
// exactly one flush-then-reconcile pass.
type Orchestrator struct {
	channel    Connector
	queue      Flusher
	reconciler Syncer
	bus        *bus.Bus
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// New creates a new orchestrator.
func New(ch Connector, queue Flusher, reconciler Syncer, b *bus.Bus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		channel:    ch,
		queue:      queue,
		reconciler: reconciler,
		bus:        b,
		logger:     logger,
	}
}

// Start subscribes to connectivity events and begins reacting to them.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	netCh, unsubNet := o.bus.Subscribe("net.", 16)
	chanCh, unsubChan := o.bus.Subscribe("channel.", 16)

	go func() {
		defer unsubNet()
		defer unsubChan()
		for {
			select {
			case evt := <-netCh:
				o.handleNet(ctx, evt)
			case evt := <-chanCh:
				if evt.Kind == "channel.open" {
					go o.runSync(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the orchestrator.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) handleNet(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "net.up":
		if !o.channel.IsOpen() {
			o.logger.Info("network reachable, opening channel")
			go func() {
				// The manager owns retries; a failed dial here is not fatal.
				_ = o.channel.Connect(ctx)
			}()
		}
	case "net.down":
		// Nothing to do: the channel closes on its own and the manager
		// reconnects once the network is back.
		o.logger.Info("network unreachable")
	}
}

// TriggerSync runs a flush-then-reconcile pass on explicit request.
func (o *Orchestrator) TriggerSync(ctx context.Context) {
	o.runSync(ctx)
}

// runSync replays the queue, then reconciles conversations before messages:
// message reconciliation may reference conversations that must already exist
// locally.
func (o *Orchestrator) runSync(ctx context.Context) {
	if err := o.queue.Flush(ctx); err != nil {
		o.logger.Error("outgoing queue flush failed", zap.Error(err))
	}

	convos, err := o.reconciler.ReconcileConversations(ctx)
	if err != nil {
		o.logger.Error("conversation reconciliation failed", zap.Error(err))
		o.bus.PublishKind("sync.failed", err.Error())
		return
	}

	msgs, err := o.reconciler.ReconcileMessages(ctx)
	if err != nil {
		o.logger.Error("message reconciliation failed", zap.Error(err))
		o.bus.PublishKind("sync.failed", err.Error())
		return
	}

	o.logger.Info("sync completed",
		zap.Int("conversations", len(convos)),
		zap.Int("messages", len(msgs)),
	)
	o.bus.PublishKind("sync.completed", map[string]int{
		"conversations": len(convos),
		"messages":      len(msgs),
	})
}
