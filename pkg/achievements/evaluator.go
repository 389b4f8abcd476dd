package achievements

import (
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// Evaluator is a stateless rule engine over the achievement catalog.
// Evaluate is side-effect-free and idempotent; the caller persists the
// unlocked set and dispatches notifications.
type Evaluator struct {
	catalog *Catalog
}

func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate returns the achievements newly satisfied by the event for
// the avatar snapshot, excluding anything already unlocked. Evaluating
// the same event twice against an avatar that already holds the
// achievement returns nothing.
func (e *Evaluator) Evaluate(avatar *rpgtypes.Avatar, event rpgtypes.Event) []Achievement {
	var unlocked []Achievement
	for _, entry := range e.catalog.entries {
		if avatar.HasAchievement(entry.ID) {
			continue
		}
		if entry.Trigger == nil || !entry.Trigger(avatar, event) {
			continue
		}
		unlocked = append(unlocked, entry)
	}
	return unlocked
}
