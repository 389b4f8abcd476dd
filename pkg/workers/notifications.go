package workers

import (
	"context"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/notifications"
	"github.com/ledgerquest/ledgerquest/pkg/queue"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// NotificationWorker drains the domain event queue on an interval and
// fans events out to the configured notifiers. Delivery is
// at-least-once; notifier failures are logged and do not block other
// notifiers.
type NotificationWorker struct {
	events    queue.Queue
	notifiers []notifications.Notifier
	interval  time.Duration
}

type NewNotificationWorkerOptions struct {
	Events    queue.Queue
	Notifiers []notifications.Notifier
	Interval  time.Duration
}

func NewNotificationWorker(opts NewNotificationWorkerOptions) *NotificationWorker {
	return &NotificationWorker{
		events:    opts.Events,
		notifiers: opts.Notifiers,
		interval:  opts.Interval,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.dispatchPending(ctx)
		}
	}
}

func (w *NotificationWorker) dispatchPending(ctx context.Context) {
	pending, err := w.events.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read pending events: %v", err)
		return
	}
	for _, item := range pending {
		event, ok := item.(rpgtypes.Event)
		if !ok {
			log.Warn("Dropping unexpected queue item of type %T", item)
			continue
		}
		for _, notifier := range w.notifiers {
			if err := notifier.Notify(ctx, event); err != nil {
				log.Error("Failed to deliver %s event: %v", event.Type, err)
			}
		}
	}
}
