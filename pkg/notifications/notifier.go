package notifications

import (
	"context"

	"github.com/ledgerquest/ledgerquest/pkg/log"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// Notifier delivers a domain event to its destination. Delivery is
// fire-and-forget; at-least-once is acceptable.
type Notifier interface {
	Notify(ctx context.Context, event rpgtypes.Event) error
}

// LogNotifier writes events to the service log. It doubles as the
// delivery record when no other notifier is configured.
type LogNotifier struct {
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event rpgtypes.Event) error {
	log.Info("Event %s for avatar %s", event.Type, event.AvatarID)
	return nil
}
