package battles

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerquest/ledgerquest/pkg/achievements"
	"github.com/ledgerquest/ledgerquest/pkg/avatars"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/queue"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
	"github.com/ledgerquest/ledgerquest/pkg/worldmap"
)

const (
	// SkillManaCost is the mana consumed by the skill action.
	SkillManaCost = 10
	// skillPowerBonus is added to strength when using a skill.
	skillPowerBonus = 8
	// maxActRetries bounds the automatic retries on version conflicts
	// before ErrBusy is surfaced.
	maxActRetries = 3
	// minDamage is the damage floor that prevents stalemates when
	// defense exceeds power.
	minDamage = 1
	// defeatHealthFloor is the health an avatar keeps after losing a
	// battle. Defeat never soft-locks an avatar at zero health.
	defeatHealthFloor = 1
)

// Engine runs the turn-based battle state machine. Battles move from
// active to exactly one of won, lost or abandoned and never leave a
// terminal status.
type Engine struct {
	repository        repositories.Repository
	avatars           *avatars.Store
	gate              *worldmap.Gate
	evaluator         *achievements.Evaluator
	events            queue.Queue
	inactivityTimeout time.Duration
}

type NewEngineOptions struct {
	Repository        repositories.Repository
	Avatars           *avatars.Store
	Gate              *worldmap.Gate
	Evaluator         *achievements.Evaluator
	Events            queue.Queue
	InactivityTimeout time.Duration
}

func NewEngine(opts NewEngineOptions) *Engine {
	return &Engine{
		repository:        opts.Repository,
		avatars:           opts.Avatars,
		gate:              opts.Gate,
		evaluator:         opts.Evaluator,
		events:            opts.Events,
		inactivityTimeout: opts.InactivityTimeout,
	}
}

// Outcome describes the result of one battle turn.
type Outcome struct {
	Battle            *rpgtypes.Battle           `json:"battle"`
	Avatar            *rpgtypes.Avatar           `json:"avatar"`
	Turn              rpgtypes.BattleTurn        `json:"turn"`
	ExperienceAwarded int                        `json:"experience_awarded"`
	UnlockedCity      int                        `json:"unlocked_city,omitempty"`
	LevelIncreased    bool                       `json:"level_increased"`
	NewAchievements   []achievements.Achievement `json:"new_achievements,omitempty"`
}

// Start creates a battle for the avatar at a city. The frontier city
// pits the avatar against the city's boss; earlier cities can be
// replayed against the regular enemy. The opponent's stat block is
// snapshotted into the battle and stays fixed even if the catalog
// changes.
func (e *Engine) Start(ctx context.Context, avatarID string, cityNumber int) (*rpgtypes.Battle, error) {
	avatar, err := e.avatars.Get(ctx, avatarID)
	if err != nil {
		return nil, err
	}

	city, ok := e.gate.Catalog().City(cityNumber)
	if !ok {
		return nil, &ErrInvalidCity{}
	}
	if !e.gate.IsUnlocked(avatar, cityNumber) {
		return nil, &ErrCityLocked{}
	}

	if active, err := e.repository.GetActiveBattle(ctx, avatarID); err == nil {
		if err := e.expireIfStale(ctx, active); err != nil {
			if repositories.IsVersionConflict(err) {
				// something just acted on the battle, so it is live
				return nil, &ErrBattleAlreadyActive{}
			}
			return nil, err
		}
		if !active.Status.Terminal() {
			return nil, &ErrBattleAlreadyActive{}
		}
	} else if !repositories.IsNotFound(err) {
		return nil, err
	}

	enemy := city.Enemy
	if cityNumber == avatar.CurrentCity {
		enemy = city.Boss
	}

	now := time.Now()
	battle := &rpgtypes.Battle{
		ID:           uuid.NewString(),
		AvatarID:     avatarID,
		CityNumber:   cityNumber,
		Enemy:        enemy,
		Seed:         now.UnixNano(),
		Status:       rpgtypes.BattleStatusActive,
		LastActionAt: now.UnixMilli(),
		CreatedAt:    now.UnixMilli(),
	}
	if err := e.repository.CreateBattle(ctx, battle); err != nil {
		if repositories.IsAlreadyExists(err) {
			// a concurrent start won the race between the active-battle
			// check and the insert
			return nil, &ErrBattleAlreadyActive{}
		}
		return nil, err
	}

	log.Debug("Battle %s started for avatar %s at city %d", battle.ID, avatarID, cityNumber)
	return battle, nil
}

// Act applies one battle action. The battle's version is the
// serialization point: of two concurrent actions on the same battle,
// exactly one commits its turn and the loser is retried against fresh
// state a small bounded number of times before ErrBusy is surfaced.
func (e *Engine) Act(ctx context.Context, avatarID string, battleID string, action rpgtypes.BattleAction) (*Outcome, error) {
	for attempt := 0; attempt <= maxActRetries; attempt++ {
		outcome, err := e.act(ctx, avatarID, battleID, action)
		if err != nil && repositories.IsVersionConflict(err) {
			log.Debug("Version conflict on battle %s, attempt %d", battleID, attempt+1)
			continue
		}
		return outcome, err
	}
	return nil, &ErrBusy{}
}

func (e *Engine) act(ctx context.Context, avatarID string, battleID string, action rpgtypes.BattleAction) (*Outcome, error) {
	battle, err := e.repository.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.AvatarID != avatarID {
		return nil, &ErrNotYourBattle{}
	}
	if err := e.expireIfStale(ctx, battle); err != nil {
		return nil, err
	}
	if battle.Status.Terminal() {
		return nil, &ErrBattleFinished{}
	}

	avatar, err := e.avatars.Get(ctx, avatarID)
	if err != nil {
		return nil, err
	}

	switch action {
	case rpgtypes.BattleActionAttack, rpgtypes.BattleActionDefend, rpgtypes.BattleActionSkill, rpgtypes.BattleActionFlee:
	default:
		return nil, &ErrInvalidAction{}
	}
	if action == rpgtypes.BattleActionSkill && avatar.Mana < SkillManaCost {
		return nil, &ErrInvalidAction{}
	}

	if action == rpgtypes.BattleActionFlee {
		return e.flee(ctx, avatar, battle)
	}

	turn := resolveTurn(avatar, battle, action)

	experienceAwarded := 0
	unlockedCity := 0
	status := rpgtypes.BattleStatusActive
	if turn.EnemyHealth <= 0 {
		// victory resolves before retaliation, so a simultaneous
		// zero always favors the avatar
		status = rpgtypes.BattleStatusWon
		experienceAwarded = e.victoryExperience(battle)
		if battle.Enemy.Boss && battle.CityNumber == avatar.CurrentCity && avatar.CurrentCity < e.gate.Catalog().Size() {
			unlockedCity = avatar.CurrentCity + 1
		}
	} else if turn.AvatarHealth <= 0 {
		status = rpgtypes.BattleStatusLost
	}

	// the turn commits first, guarded by the battle version: of two
	// racing actions exactly one records its turn, and the loser fails
	// here before touching the avatar
	expectedBattleVersion := battle.Version
	battle.Turn = turn.Turn
	battle.Enemy.Health = turn.EnemyHealth
	battle.Log = append(battle.Log, turn)
	battle.Status = status
	battle.Version = expectedBattleVersion + 1
	battle.LastActionAt = turn.Timestamp
	if err := e.repository.UpdateBattle(ctx, battle, expectedBattleVersion); err != nil {
		return nil, err
	}

	previousLevel := avatar.Level
	mutated, err := e.applyTurn(ctx, avatar, turn, action, status, experienceAwarded, unlockedCity)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Battle:            battle,
		Avatar:            mutated,
		Turn:              turn,
		ExperienceAwarded: experienceAwarded,
		UnlockedCity:      unlockedCity,
		LevelIncreased:    mutated.Level > previousLevel,
	}

	switch status {
	case rpgtypes.BattleStatusWon:
		e.emit(mutated, rpgtypes.EventBattleWon, map[string]interface{}{
			"battle_id":   battle.ID,
			"city_number": battle.CityNumber,
			"experience":  experienceAwarded,
		})
	case rpgtypes.BattleStatusLost:
		e.emit(mutated, rpgtypes.EventBattleLost, map[string]interface{}{
			"battle_id":   battle.ID,
			"city_number": battle.CityNumber,
		})
	}
	if outcome.LevelIncreased {
		e.emit(mutated, rpgtypes.EventLevelIncreased, map[string]interface{}{
			"level": mutated.Level,
		})
	}

	if status.Terminal() {
		final, unlocked, err := e.unlockAchievements(ctx, mutated, battleEvents(mutated, status, outcome.LevelIncreased))
		if err != nil {
			log.Error("Failed to unlock achievements for avatar %s: %v", avatarID, err)
		} else {
			outcome.Avatar = final
			outcome.NewAchievements = unlocked
		}
	}

	return outcome, nil
}

// applyTurn persists the avatar side of a committed battle turn. The
// turn is already recorded, so an avatar version conflict here (a
// concurrent achievement unlock, for example) is resolved by reapplying
// the turn's deltas to fresh state rather than discarding the turn.
// Battle actions themselves cannot race here: the battle version has
// already serialized them.
func (e *Engine) applyTurn(ctx context.Context, avatar *rpgtypes.Avatar, turn rpgtypes.BattleTurn, action rpgtypes.BattleAction, status rpgtypes.BattleStatus, experienceAwarded int, unlockedCity int) (*rpgtypes.Avatar, error) {
	current := avatar
	for attempt := 0; attempt <= maxActRetries; attempt++ {
		mutated, err := e.avatars.ApplyMutation(ctx, current.ID, current.Version, func(a *rpgtypes.Avatar) error {
			a.Health -= turn.DamageTaken
			if action == rpgtypes.BattleActionSkill {
				a.Mana -= SkillManaCost
			}
			switch status {
			case rpgtypes.BattleStatusWon:
				a.Experience += experienceAwarded
				a.BattlesWon++
				if unlockedCity > 0 {
					a.CurrentCity = unlockedCity
				}
			case rpgtypes.BattleStatusLost:
				a.Health = defeatHealthFloor
			}
			return nil
		})
		if err != nil && repositories.IsVersionConflict(err) {
			fresh, getErr := e.avatars.Get(ctx, current.ID)
			if getErr != nil {
				return nil, getErr
			}
			current = fresh
			continue
		}
		return mutated, err
	}
	return nil, &ErrBusy{}
}

func battleEvents(avatar *rpgtypes.Avatar, status rpgtypes.BattleStatus, levelIncreased bool) []rpgtypes.Event {
	var events []rpgtypes.Event
	if status == rpgtypes.BattleStatusWon {
		events = append(events, rpgtypes.Event{Type: rpgtypes.EventBattleWon, AvatarID: avatar.ID, UserID: avatar.UserID})
	}
	if levelIncreased {
		events = append(events, rpgtypes.Event{Type: rpgtypes.EventLevelIncreased, AvatarID: avatar.ID, UserID: avatar.UserID})
	}
	return events
}

// resolveTurn computes one exchange: the avatar's action resolves
// first, then, if the enemy survives, its seeded retaliation.
func resolveTurn(avatar *rpgtypes.Avatar, battle *rpgtypes.Battle, action rpgtypes.BattleAction) rpgtypes.BattleTurn {
	turnNumber := battle.Turn + 1

	dealt := 0
	switch action {
	case rpgtypes.BattleActionAttack:
		dealt = damage(avatar.Strength, battle.Enemy.Defense)
	case rpgtypes.BattleActionSkill:
		dealt = damage(avatar.Strength+skillPowerBonus, battle.Enemy.Defense)
	case rpgtypes.BattleActionDefend:
		// defend trades the attack for halved retaliation
	}

	enemyHealth := battle.Enemy.Health - dealt
	if enemyHealth < 0 {
		enemyHealth = 0
	}

	taken := 0
	avatarHealth := avatar.Health
	if enemyHealth > 0 {
		taken = retaliation(battle.Seed, turnNumber, battle.Enemy.Strength, avatar.Defense)
		if action == rpgtypes.BattleActionDefend {
			taken = taken / 2
			if taken < minDamage {
				taken = minDamage
			}
		}
		avatarHealth -= taken
		if avatarHealth < 0 {
			avatarHealth = 0
		}
	}

	return rpgtypes.BattleTurn{
		Turn:         turnNumber,
		Action:       action,
		DamageDealt:  dealt,
		DamageTaken:  taken,
		AvatarHealth: avatarHealth,
		EnemyHealth:  enemyHealth,
		Timestamp:    time.Now().UnixMilli(),
	}
}

func damage(power int, defense int) int {
	d := power - defense
	if d < minDamage {
		return minDamage
	}
	return d
}

// retaliation derives the enemy's damage from the battle seed and turn
// number, so replaying a battle log reproduces the same exchanges.
func retaliation(seed int64, turn int, strength int, defense int) int {
	rng := rand.New(rand.NewSource(seed + int64(turn)))
	variance := 0
	if strength > 3 {
		variance = rng.Intn(strength/4 + 1)
	}
	return damage(strength+variance, defense)
}

func (e *Engine) victoryExperience(battle *rpgtypes.Battle) int {
	if battle.Enemy.Boss {
		return battle.Enemy.Experience
	}
	city, ok := e.gate.Catalog().City(battle.CityNumber)
	if !ok {
		return battle.Enemy.Experience
	}
	if tiered, ok := worldmap.TierExperience[city.Tier]; ok {
		return tiered
	}
	return battle.Enemy.Experience
}

func (e *Engine) flee(ctx context.Context, avatar *rpgtypes.Avatar, battle *rpgtypes.Battle) (*Outcome, error) {
	now := time.Now().UnixMilli()
	turn := rpgtypes.BattleTurn{
		Turn:         battle.Turn + 1,
		Action:       rpgtypes.BattleActionFlee,
		AvatarHealth: avatar.Health,
		EnemyHealth:  battle.Enemy.Health,
		Timestamp:    now,
	}
	expectedVersion := battle.Version
	battle.Turn = turn.Turn
	battle.Log = append(battle.Log, turn)
	battle.Status = rpgtypes.BattleStatusAbandoned
	battle.Version = expectedVersion + 1
	battle.LastActionAt = now
	if err := e.repository.UpdateBattle(ctx, battle, expectedVersion); err != nil {
		return nil, err
	}
	return &Outcome{
		Battle: battle,
		Avatar: avatar,
		Turn:   turn,
	}, nil
}

// expireIfStale lazily marks a battle abandoned when its inactivity
// timeout has elapsed. The background sweeper applies the same rule, so
// the transition is idempotent either way.
func (e *Engine) expireIfStale(ctx context.Context, battle *rpgtypes.Battle) error {
	if battle.Status.Terminal() {
		return nil
	}
	cutoff := time.Now().Add(-e.inactivityTimeout).UnixMilli()
	if battle.LastActionAt >= cutoff {
		return nil
	}
	expectedVersion := battle.Version
	battle.Status = rpgtypes.BattleStatusAbandoned
	battle.Version = expectedVersion + 1
	if err := e.repository.UpdateBattle(ctx, battle, expectedVersion); err != nil {
		return err
	}
	log.Debug("Battle %s abandoned after inactivity", battle.ID)
	return nil
}

// SweepAbandoned marks all stale active battles abandoned. It backs
// the advisory background sweeper and is safe to run concurrently with
// lazy expiry.
func (e *Engine) SweepAbandoned(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.inactivityTimeout)
	stale, err := e.repository.ListStaleBattles(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, battle := range stale {
		expectedVersion := battle.Version
		battle.Status = rpgtypes.BattleStatusAbandoned
		battle.Version = expectedVersion + 1
		if err := e.repository.UpdateBattle(ctx, battle, expectedVersion); err != nil {
			if repositories.IsVersionConflict(err) {
				// the battle saw an action after the listing; leave it
				log.Debug("Battle %s advanced during sweep, skipping", battle.ID)
				continue
			}
			log.Error("Failed to abandon battle %s: %v", battle.ID, err)
			continue
		}
		swept++
	}
	return swept, nil
}

// HandleExternalEvent evaluates achievements for an event produced
// outside the battle engine, such as goal completion on the finance
// side, and persists any unlocks. Retries on version conflicts like
// Act.
func (e *Engine) HandleExternalEvent(ctx context.Context, avatarID string, event rpgtypes.Event) ([]achievements.Achievement, error) {
	for attempt := 0; attempt <= maxActRetries; attempt++ {
		avatar, err := e.avatars.Get(ctx, avatarID)
		if err != nil {
			return nil, err
		}
		event.AvatarID = avatar.ID
		event.UserID = avatar.UserID
		_, unlocked, err := e.unlockAchievements(ctx, avatar, []rpgtypes.Event{event})
		if err != nil && repositories.IsVersionConflict(err) {
			continue
		}
		return unlocked, err
	}
	return nil, &ErrBusy{}
}

// unlockAchievements evaluates the events against the avatar snapshot,
// persists any newly-unlocked achievements with their rewards in a
// single mutation, and emits achievement.unlocked events.
func (e *Engine) unlockAchievements(ctx context.Context, avatar *rpgtypes.Avatar, events []rpgtypes.Event) (*rpgtypes.Avatar, []achievements.Achievement, error) {
	seen := make(map[string]bool)
	var unlocked []achievements.Achievement
	for _, event := range events {
		for _, achievement := range e.evaluator.Evaluate(avatar, event) {
			if seen[achievement.ID] {
				continue
			}
			seen[achievement.ID] = true
			unlocked = append(unlocked, achievement)
		}
	}
	if len(unlocked) == 0 {
		return avatar, nil, nil
	}

	mutated, err := e.avatars.ApplyMutation(ctx, avatar.ID, avatar.Version, func(a *rpgtypes.Avatar) error {
		for _, achievement := range unlocked {
			a.GrantAchievement(achievement.ID)
			a.Experience += achievement.RewardExperience
			a.Coins += achievement.RewardCoins
		}
		return nil
	})
	if err != nil {
		return avatar, nil, err
	}

	for _, achievement := range unlocked {
		e.emit(mutated, rpgtypes.EventAchievementUnlocked, map[string]interface{}{
			"achievement_id": achievement.ID,
			"name":           achievement.Name,
		})
	}
	return mutated, unlocked, nil
}

func (e *Engine) emit(avatar *rpgtypes.Avatar, eventType rpgtypes.EventType, payload map[string]interface{}) {
	event := rpgtypes.Event{
		Type:     eventType,
		AvatarID: avatar.ID,
		UserID:   avatar.UserID,
		Payload:  payload,
	}
	if err := e.events.Enqueue(event); err != nil {
		log.Warn("Failed to enqueue %s event: %v", eventType, err)
	}
}
