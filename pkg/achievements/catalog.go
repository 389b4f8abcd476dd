package achievements

import (
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// Predicate decides whether an achievement's condition holds for an
// avatar snapshot and a triggering event. Predicates must be pure.
type Predicate func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool

// Achievement is a static catalog entry. Unlocking is idempotent: an
// already-unlocked achievement is never re-awarded.
type Achievement struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	RewardExperience int       `json:"reward_experience"`
	RewardCoins      int       `json:"reward_coins"`
	Trigger          Predicate `json:"-"`
}

type Catalog struct {
	entries []Achievement
}

// NewCatalog builds the default deployment catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: defaultAchievements()}
}

// NewCatalogFromEntries builds a catalog from an explicit entry list.
func NewCatalogFromEntries(entries []Achievement) *Catalog {
	copied := make([]Achievement, len(entries))
	copy(copied, entries)
	return &Catalog{entries: copied}
}

// Entries returns the full achievement list.
func (c *Catalog) Entries() []Achievement {
	entries := make([]Achievement, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// Entry returns the catalog entry with the given id.
func (c *Catalog) Entry(id string) (Achievement, bool) {
	for _, entry := range c.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Achievement{}, false
}

func onEvent(eventType rpgtypes.EventType, condition Predicate) Predicate {
	return func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
		if event.Type != eventType {
			return false
		}
		return condition(avatar, event)
	}
}

func defaultAchievements() []Achievement {
	return []Achievement{
		{
			ID:               "first-victory",
			Name:             "First Victory",
			Description:      "Win your first battle.",
			RewardExperience: 25,
			RewardCoins:      50,
			Trigger: onEvent(rpgtypes.EventBattleWon, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.BattlesWon >= 1
			}),
		},
		{
			ID:               "seasoned-fighter",
			Name:             "Seasoned Fighter",
			Description:      "Win 10 battles.",
			RewardExperience: 100,
			RewardCoins:      200,
			Trigger: onEvent(rpgtypes.EventBattleWon, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.BattlesWon >= 10
			}),
		},
		{
			ID:               "city-explorer",
			Name:             "City Explorer",
			Description:      "Unlock the third city.",
			RewardExperience: 75,
			RewardCoins:      150,
			Trigger: onEvent(rpgtypes.EventBattleWon, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.CurrentCity >= 3
			}),
		},
		{
			ID:               "world-conqueror",
			Name:             "World Conqueror",
			Description:      "Unlock the final city.",
			RewardExperience: 500,
			RewardCoins:      1000,
			Trigger: onEvent(rpgtypes.EventBattleWon, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.CurrentCity >= 10
			}),
		},
		{
			ID:               "level-5",
			Name:             "Adventurer",
			Description:      "Reach level 5.",
			RewardExperience: 0,
			RewardCoins:      250,
			Trigger: onEvent(rpgtypes.EventLevelIncreased, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.Level >= 5
			}),
		},
		{
			ID:               "level-10",
			Name:             "Hero",
			Description:      "Reach level 10.",
			RewardExperience: 0,
			RewardCoins:      600,
			Trigger: onEvent(rpgtypes.EventLevelIncreased, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return avatar.Level >= 10
			}),
		},
		{
			ID:               "first-goal",
			Name:             "Goal Getter",
			Description:      "Complete your first savings goal.",
			RewardExperience: 50,
			RewardCoins:      100,
			Trigger: onEvent(rpgtypes.EventGoalCompleted, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return true
			}),
		},
		{
			ID:               "streak-iniciante",
			Name:             "Streak Iniciante",
			Description:      "Keep a 7-day savings streak.",
			RewardExperience: 60,
			RewardCoins:      120,
			Trigger: onEvent(rpgtypes.EventGoalCompleted, func(avatar *rpgtypes.Avatar, event rpgtypes.Event) bool {
				return event.PayloadInt("streak_days") >= 7
			}),
		},
	}
}
