package types

type EventType string

const (
	EventBattleWon           EventType = "battle.won"
	EventBattleLost          EventType = "battle.lost"
	EventLevelIncreased      EventType = "level.increased"
	EventAchievementUnlocked EventType = "achievement.unlocked"
	// EventGoalCompleted is produced by the finance side when a savings
	// goal is completed. The RPG core only consumes it.
	EventGoalCompleted EventType = "goal.completed"
)

// Event is a domain event emitted by the battle engine or the
// achievement hooks and dispatched to notifiers. Delivery is
// fire-and-forget, at-least-once.
type Event struct {
	Type     EventType              `json:"type"`
	AvatarID string                 `json:"avatar_id"`
	UserID   string                 `json:"user_id"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// PayloadInt reads an integer payload field, tolerating the float64
// values produced by JSON decoding.
func (e Event) PayloadInt(key string) int {
	switch v := e.Payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
