package types

import (
	"fmt"
)

type BattleStatus string

const (
	BattleStatusActive    BattleStatus = "active"
	BattleStatusWon       BattleStatus = "won"
	BattleStatusLost      BattleStatus = "lost"
	BattleStatusAbandoned BattleStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s BattleStatus) Terminal() bool {
	return s != BattleStatusActive
}

type BattleAction string

const (
	BattleActionAttack BattleAction = "attack"
	BattleActionDefend BattleAction = "defend"
	BattleActionSkill  BattleAction = "skill"
	BattleActionFlee   BattleAction = "flee"
)

// ParseBattleAction parses an action name into a BattleAction.
// Valid actions are: attack, defend, skill, flee.
func ParseBattleAction(action string) (BattleAction, error) {
	switch BattleAction(action) {
	case BattleActionAttack, BattleActionDefend, BattleActionSkill, BattleActionFlee:
		return BattleAction(action), nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}

// Enemy is the stat block snapshotted into a battle when it starts.
// Only Health changes for the duration of the battle.
type Enemy struct {
	Name       string `json:"name"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"max_health"`
	Strength   int    `json:"strength"`
	Defense    int    `json:"defense"`
	Speed      int    `json:"speed"`
	Boss       bool   `json:"boss"`
	Experience int    `json:"experience"`
}

// BattleTurn is one entry in a battle's ordered action log.
type BattleTurn struct {
	Turn         int          `json:"turn"`
	Action       BattleAction `json:"action"`
	DamageDealt  int          `json:"damage_dealt"`
	DamageTaken  int          `json:"damage_taken"`
	AvatarHealth int          `json:"avatar_health"`
	EnemyHealth  int          `json:"enemy_health"`
	Timestamp    int64        `json:"timestamp"`
}

// Battle is one bounded combat session between an avatar and a city's
// enemy. The enemy stat block is copied at battle start and stays fixed
// even if the city catalog changes.
type Battle struct {
	ID           string       `json:"id"`
	AvatarID     string       `json:"avatar_id"`
	CityNumber   int          `json:"city_number"`
	Enemy        Enemy        `json:"enemy"`
	Seed         int64        `json:"seed"`
	Turn         int          `json:"turn"`
	Log          []BattleTurn `json:"log"`
	Status       BattleStatus `json:"status"`
	Version      int64        `json:"version"`
	LastActionAt int64        `json:"last_action_at"`
	CreatedAt    int64        `json:"created_at"`
}

// Copy returns a deep copy of the battle.
func (b *Battle) Copy() *Battle {
	copied := *b
	copied.Log = make([]BattleTurn, len(b.Log))
	copy(copied.Log, b.Log)
	return &copied
}
