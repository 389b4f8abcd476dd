package types

import (
	"fmt"
)

type Class string

const (
	ClassWarrior Class = "warrior"
	ClassMage    Class = "mage"
	ClassRogue   Class = "rogue"
	ClassPaladin Class = "paladin"
	ClassRanger  Class = "ranger"
)

// ParseClass parses a class name into a Class.
// Valid classes are: warrior, mage, rogue, paladin, ranger.
func ParseClass(class string) (Class, error) {
	switch Class(class) {
	case ClassWarrior, ClassMage, ClassRogue, ClassPaladin, ClassRanger:
		return Class(class), nil
	default:
		return "", fmt.Errorf("unknown class: %s", class)
	}
}

// ClassStats is the base stat block for a class plus its per-level growth.
type ClassStats struct {
	MaxHealth      int
	MaxMana        int
	Strength       int
	Defense        int
	Speed          int
	HealthGrowth   int
	ManaGrowth     int
	StrengthGrowth int
	DefenseGrowth  int
	SpeedGrowth    int
}

var classStats = map[Class]ClassStats{
	ClassWarrior: {MaxHealth: 120, MaxMana: 20, Strength: 14, Defense: 12, Speed: 8, HealthGrowth: 12, ManaGrowth: 2, StrengthGrowth: 3, DefenseGrowth: 2, SpeedGrowth: 1},
	ClassMage:    {MaxHealth: 80, MaxMana: 60, Strength: 16, Defense: 6, Speed: 10, HealthGrowth: 7, ManaGrowth: 8, StrengthGrowth: 4, DefenseGrowth: 1, SpeedGrowth: 1},
	ClassRogue:   {MaxHealth: 90, MaxMana: 30, Strength: 13, Defense: 8, Speed: 14, HealthGrowth: 8, ManaGrowth: 3, StrengthGrowth: 3, DefenseGrowth: 1, SpeedGrowth: 3},
	ClassPaladin: {MaxHealth: 110, MaxMana: 40, Strength: 12, Defense: 14, Speed: 7, HealthGrowth: 11, ManaGrowth: 4, StrengthGrowth: 2, DefenseGrowth: 3, SpeedGrowth: 1},
	ClassRanger:  {MaxHealth: 95, MaxMana: 35, Strength: 13, Defense: 9, Speed: 12, HealthGrowth: 9, ManaGrowth: 4, StrengthGrowth: 3, DefenseGrowth: 2, SpeedGrowth: 2},
}

// BaseStats returns the stat block for a class.
func BaseStats(class Class) ClassStats {
	return classStats[class]
}

// levelThresholds[i] is the total experience required to reach level i+1.
var levelThresholds = []int{
	0, 100, 250, 450, 700,
	1000, 1400, 1900, 2500, 3200,
	4000, 5000, 6200, 7600, 9200,
	11000, 13000, 15200, 17600, 20200,
}

// MaxLevel is the highest reachable level.
var MaxLevel = len(levelThresholds)

// LevelFromExperience returns the level for a total experience amount.
// Level is a pure function of experience.
func LevelFromExperience(experience int) int {
	level := 1
	for i, threshold := range levelThresholds {
		if experience < threshold {
			break
		}
		level = i + 1
	}
	return level
}

// ExperienceForLevel returns the total experience required to reach a level.
func ExperienceForLevel(level int) int {
	if level < 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelThresholds[level-1]
}

// Avatar is a user's persisted character. An avatar is owned by exactly
// one user. Version increments on every persisted mutation and is used
// for optimistic concurrency detection.
type Avatar struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Name         string   `json:"name"`
	Class        Class    `json:"class"`
	Level        int      `json:"level"`
	Experience   int      `json:"experience"`
	Health       int      `json:"health"`
	MaxHealth    int      `json:"max_health"`
	Mana         int      `json:"mana"`
	MaxMana      int      `json:"max_mana"`
	Strength     int      `json:"strength"`
	Defense      int      `json:"defense"`
	Speed        int      `json:"speed"`
	CurrentCity  int      `json:"current_city"`
	Coins        int      `json:"coins"`
	BattlesWon   int      `json:"battles_won"`
	Achievements []string `json:"achievements"`
	Version      int64    `json:"version"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

// NewAvatar creates a level 1 avatar at city 1 with full health and mana.
func NewAvatar(id string, userID string, name string, class Class) *Avatar {
	stats := BaseStats(class)
	return &Avatar{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Class:       class,
		Level:       1,
		Health:      stats.MaxHealth,
		MaxHealth:   stats.MaxHealth,
		Mana:        stats.MaxMana,
		MaxMana:     stats.MaxMana,
		Strength:    stats.Strength,
		Defense:     stats.Defense,
		Speed:       stats.Speed,
		CurrentCity: 1,
	}
}

// Normalize recomputes derived stats from class and experience and clamps
// health and mana into range. Level is always recomputed from experience.
func (a *Avatar) Normalize() {
	a.Level = LevelFromExperience(a.Experience)
	stats := BaseStats(a.Class)
	levels := a.Level - 1
	a.MaxHealth = stats.MaxHealth + stats.HealthGrowth*levels
	a.MaxMana = stats.MaxMana + stats.ManaGrowth*levels
	a.Strength = stats.Strength + stats.StrengthGrowth*levels
	a.Defense = stats.Defense + stats.DefenseGrowth*levels
	a.Speed = stats.Speed + stats.SpeedGrowth*levels
	if a.Health > a.MaxHealth {
		a.Health = a.MaxHealth
	}
	if a.Health < 0 {
		a.Health = 0
	}
	if a.Mana > a.MaxMana {
		a.Mana = a.MaxMana
	}
	if a.Mana < 0 {
		a.Mana = 0
	}
	if a.CurrentCity < 1 {
		a.CurrentCity = 1
	}
}

// HasAchievement reports whether the avatar already holds an achievement.
func (a *Avatar) HasAchievement(id string) bool {
	for _, unlocked := range a.Achievements {
		if unlocked == id {
			return true
		}
	}
	return false
}

// GrantAchievement adds an achievement to the unlocked set. Granting an
// already-held achievement is a no-op.
func (a *Avatar) GrantAchievement(id string) {
	if a.HasAchievement(id) {
		return
	}
	a.Achievements = append(a.Achievements, id)
}

// Copy returns a deep copy of the avatar.
func (a *Avatar) Copy() *Avatar {
	copied := *a
	copied.Achievements = make([]string, len(a.Achievements))
	copy(copied.Achievements, a.Achievements)
	return &copied
}
