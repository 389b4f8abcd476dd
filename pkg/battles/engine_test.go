package battles

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/achievements"
	"github.com/ledgerquest/ledgerquest/pkg/avatars"
	"github.com/ledgerquest/ledgerquest/pkg/cache"
	"github.com/ledgerquest/ledgerquest/pkg/queue"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
	"github.com/ledgerquest/ledgerquest/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	repository *repositories.InMemoryRepository
	store      *avatars.Store
	events     *queue.InMemoryQueue
	engine     *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureWithRepository(t, func(inner repositories.Repository) repositories.Repository {
		return inner
	})
}

func newEngineFixtureWithRepository(t *testing.T, wrap func(repositories.Repository) repositories.Repository) *engineFixture {
	t.Helper()
	inner := repositories.NewInMemoryRepository()
	repository := wrap(inner)
	store := avatars.NewStore(avatars.NewStoreOptions{
		Repository:   repository,
		Cache:        cache.NewInMemoryCache(),
		AvatarTTL:    time.Minute,
		StoreTimeout: time.Second,
	})
	gate := worldmap.NewGate(worldmap.NewGateOptions{
		Catalog:    worldmap.NewCatalog(),
		Cache:      cache.NewInMemoryCache(),
		CatalogTTL: time.Minute,
	})
	events := queue.NewInMemoryQueue(256)
	engine := NewEngine(NewEngineOptions{
		Repository:        repository,
		Avatars:           store,
		Gate:              gate,
		Evaluator:         achievements.NewEvaluator(achievements.NewCatalog()),
		Events:            events,
		InactivityTimeout: 30 * time.Minute,
	})
	return &engineFixture{
		repository: inner,
		store:      store,
		events:     events,
		engine:     engine,
	}
}

// interleavingRepository lets a test run a competing operation at the
// exact point where a caller still holds a stale read, which a
// goroutine race could only reproduce probabilistically.
type interleavingRepository struct {
	repositories.Repository
	onBattleRead func()
	onActiveMiss func()
}

func (r *interleavingRepository) GetBattle(ctx context.Context, battleID string) (*rpgtypes.Battle, error) {
	battle, err := r.Repository.GetBattle(ctx, battleID)
	if err == nil && r.onBattleRead != nil {
		hook := r.onBattleRead
		r.onBattleRead = nil
		hook()
	}
	return battle, err
}

func (r *interleavingRepository) GetActiveBattle(ctx context.Context, avatarID string) (*rpgtypes.Battle, error) {
	battle, err := r.Repository.GetActiveBattle(ctx, avatarID)
	if repositories.IsNotFound(err) && r.onActiveMiss != nil {
		hook := r.onActiveMiss
		r.onActiveMiss = nil
		hook()
	}
	return battle, err
}

func (f *engineFixture) createAvatar(t *testing.T, class rpgtypes.Class) *rpgtypes.Avatar {
	t.Helper()
	avatar, err := f.store.Create(context.Background(), "user-1", class, "Tester")
	require.NoError(t, err)
	return avatar
}

func (f *engineFixture) eventTypes(t *testing.T) []rpgtypes.EventType {
	t.Helper()
	messages, err := f.events.ReadAllMessages()
	require.NoError(t, err)
	types := make([]rpgtypes.EventType, 0, len(messages))
	for _, message := range messages {
		event, ok := message.(rpgtypes.Event)
		require.True(t, ok)
		types = append(types, event.Type)
	}
	return types
}

func TestStartFrontierCityFightsBoss(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusActive, battle.Status)
	assert.True(t, battle.Enemy.Boss)
	assert.Equal(t, "Debt Collector", battle.Enemy.Name)
}

func TestStartRejectsLockedCity(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	_, err := fixture.engine.Start(ctx, avatar.ID, 3)
	assert.True(t, IsCityLocked(err))
}

func TestStartRejectsUnknownCity(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	_, err := fixture.engine.Start(ctx, avatar.ID, 99)
	assert.True(t, IsInvalidCity(err))
}

func TestStartRejectsSecondActiveBattle(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	_, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	_, err = fixture.engine.Start(ctx, avatar.ID, 1)
	assert.True(t, IsBattleAlreadyActive(err))
}

func TestStartRaceYieldsSingleActiveBattle(t *testing.T) {
	ctx := context.Background()
	wrapper := &interleavingRepository{}
	fixture := newEngineFixtureWithRepository(t, func(inner repositories.Repository) repositories.Repository {
		wrapper.Repository = inner
		return wrapper
	})
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	// a competing start lands after this start's active-battle check
	// reported no battle
	wrapper.onActiveMiss = func() {
		_, err := fixture.engine.Start(ctx, avatar.ID, 1)
		require.NoError(t, err)
	}

	_, err := fixture.engine.Start(ctx, avatar.ID, 1)
	assert.True(t, IsBattleAlreadyActive(err))

	// exactly one battle exists
	active, err := fixture.repository.GetActiveBattle(ctx, avatar.ID)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusActive, active.Status)
}

func TestConcurrentActsSerializeOnBattleVersion(t *testing.T) {
	ctx := context.Background()
	wrapper := &interleavingRepository{}
	fixture := newEngineFixtureWithRepository(t, func(inner repositories.Repository) repositories.Repository {
		wrapper.Repository = inner
		return wrapper
	})
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	// a competing action commits while this action still holds the
	// just-read battle state
	wrapper.onBattleRead = func() {
		_, err := fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
		require.NoError(t, err)
	}

	_, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
	require.NoError(t, err)

	// both actions applied, on consecutive turns, with no lost writes
	stored, err := fixture.repository.GetBattle(ctx, battle.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Turn)
	require.Len(t, stored.Log, 2)
	assert.Equal(t, 1, stored.Log[0].Turn)
	assert.Equal(t, 2, stored.Log[1].Turn)
	assert.Equal(t, int64(2), stored.Version)
	dealt := stored.Log[0].DamageDealt + stored.Log[1].DamageDealt
	assert.Equal(t, stored.Enemy.MaxHealth-dealt, stored.Enemy.Health)

	// the avatar was mutated exactly once per recorded turn
	final, err := fixture.store.Get(ctx, avatar.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	taken := stored.Log[0].DamageTaken + stored.Log[1].DamageTaken
	stats := rpgtypes.BaseStats(rpgtypes.ClassWarrior)
	assert.Equal(t, stats.MaxHealth-taken, final.Health)
}

func TestBossVictoryAdvancesFrontier(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	var outcome *Outcome
	for i := 0; i < 50; i++ {
		outcome, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
		require.NoError(t, err)
		if outcome.Battle.Status.Terminal() {
			break
		}
	}

	require.Equal(t, rpgtypes.BattleStatusWon, outcome.Battle.Status)
	assert.Equal(t, 80, outcome.ExperienceAwarded)
	assert.Equal(t, 2, outcome.UnlockedCity)
	assert.Equal(t, 2, outcome.Avatar.CurrentCity)
	assert.Equal(t, 1, outcome.Avatar.BattlesWon)

	// the first win also unlocks the first-victory achievement and its
	// rewards land in the same response
	ids := make([]string, len(outcome.NewAchievements))
	for i, achievement := range outcome.NewAchievements {
		ids[i] = achievement.ID
	}
	assert.Contains(t, ids, "first-victory")
	assert.Equal(t, 105, outcome.Avatar.Experience)
	assert.Equal(t, 50, outcome.Avatar.Coins)
	assert.Equal(t, 2, outcome.Avatar.Level)

	types := fixture.eventTypes(t)
	assert.Contains(t, types, rpgtypes.EventBattleWon)
	assert.Contains(t, types, rpgtypes.EventAchievementUnlocked)
}

func TestReplayedCityFightsRegularEnemyForTierExperience(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	// already past city 1, replaying it
	_, err := fixture.store.ApplyMutation(ctx, avatar.ID, avatar.Version, func(a *rpgtypes.Avatar) error {
		a.CurrentCity = 3
		return nil
	})
	require.NoError(t, err)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)
	assert.False(t, battle.Enemy.Boss)
	assert.Equal(t, "Pickpocket", battle.Enemy.Name)

	var outcome *Outcome
	for i := 0; i < 50; i++ {
		outcome, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
		require.NoError(t, err)
		if outcome.Battle.Status.Terminal() {
			break
		}
	}

	require.Equal(t, rpgtypes.BattleStatusWon, outcome.Battle.Status)
	assert.Equal(t, worldmap.TierExperience[1], outcome.ExperienceAwarded)
	// replay wins never move the frontier
	assert.Equal(t, 0, outcome.UnlockedCity)
	assert.Equal(t, 3, outcome.Avatar.CurrentCity)
}

func TestSimultaneousZeroFavorsAvatar(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	// one attack kills the enemy; any retaliation would kill the avatar
	_, err := fixture.store.ApplyMutation(ctx, avatar.ID, avatar.Version, func(a *rpgtypes.Avatar) error {
		a.Health = 1
		return nil
	})
	require.NoError(t, err)

	battle := &rpgtypes.Battle{
		ID:         "battle-1",
		AvatarID:   avatar.ID,
		CityNumber: 1,
		Enemy: rpgtypes.Enemy{
			Name:       "Glass Golem",
			Health:     1,
			MaxHealth:  1,
			Strength:   100,
			Defense:    0,
			Boss:       true,
			Experience: 10,
		},
		Seed:         42,
		Status:       rpgtypes.BattleStatusActive,
		LastActionAt: time.Now().UnixMilli(),
		CreatedAt:    time.Now().UnixMilli(),
	}
	require.NoError(t, fixture.repository.CreateBattle(ctx, battle))

	outcome, err := fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusWon, outcome.Battle.Status)
	assert.Equal(t, 0, outcome.Turn.DamageTaken)
	assert.Equal(t, 1, outcome.Avatar.Health)
}

func TestDefeatFloorsHealthAtOne(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle := &rpgtypes.Battle{
		ID:         "battle-1",
		AvatarID:   avatar.ID,
		CityNumber: 1,
		Enemy: rpgtypes.Enemy{
			Name:      "Unkillable Auditor",
			Health:    100000,
			MaxHealth: 100000,
			Strength:  100000,
			Defense:   100000,
		},
		Seed:         42,
		Status:       rpgtypes.BattleStatusActive,
		LastActionAt: time.Now().UnixMilli(),
		CreatedAt:    time.Now().UnixMilli(),
	}
	require.NoError(t, fixture.repository.CreateBattle(ctx, battle))

	outcome, err := fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusLost, outcome.Battle.Status)
	assert.Equal(t, 1, outcome.Avatar.Health)
	assert.Equal(t, 0, outcome.ExperienceAwarded)
	assert.Equal(t, 0, outcome.Avatar.BattlesWon)
	assert.Contains(t, fixture.eventTypes(t), rpgtypes.EventBattleLost)
}

func TestActOnFinishedBattle(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)
	_, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionFlee)
	require.NoError(t, err)

	before, err := fixture.store.Get(ctx, avatar.ID)
	require.NoError(t, err)

	_, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
	assert.True(t, IsBattleFinished(err))

	// the rejected action must not have touched the avatar
	after, err := fixture.store.Get(ctx, avatar.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestActRejectsAnotherAvatarsBattle(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	other, err := fixture.store.Create(ctx, "user-2", rpgtypes.ClassMage, "Intruder")
	require.NoError(t, err)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	_, err = fixture.engine.Act(ctx, other.ID, battle.ID, rpgtypes.BattleActionAttack)
	assert.True(t, IsNotYourBattle(err))
}

func TestSkillRequiresMana(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	_, err := fixture.store.ApplyMutation(ctx, avatar.ID, avatar.Version, func(a *rpgtypes.Avatar) error {
		a.Mana = SkillManaCost - 1
		return nil
	})
	require.NoError(t, err)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	_, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionSkill)
	assert.True(t, IsInvalidAction(err))
}

func TestSkillConsumesManaAndHitsHarder(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassMage)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	outcome, err := fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionSkill)
	require.NoError(t, err)

	stats := rpgtypes.BaseStats(rpgtypes.ClassMage)
	assert.Equal(t, stats.MaxMana-SkillManaCost, outcome.Avatar.Mana)
	assert.Equal(t, stats.Strength+skillPowerBonus-battle.Enemy.Defense, outcome.Turn.DamageDealt)
}

func TestFleeAbandonsBattle(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	outcome, err := fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionFlee)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusAbandoned, outcome.Battle.Status)
	assert.Equal(t, 0, outcome.ExperienceAwarded)

	// abandoning frees the avatar to start again
	_, err = fixture.engine.Start(ctx, avatar.ID, 1)
	assert.NoError(t, err)
}

func TestStaleBattleExpiresLazily(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	// backdate the battle past the inactivity timeout
	stored, err := fixture.repository.GetBattle(ctx, battle.ID)
	require.NoError(t, err)
	stored.LastActionAt = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, fixture.repository.UpdateBattle(ctx, stored, stored.Version))

	_, err = fixture.engine.Act(ctx, avatar.ID, battle.ID, rpgtypes.BattleActionAttack)
	assert.True(t, IsBattleFinished(err))

	expired, err := fixture.repository.GetBattle(ctx, battle.ID)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusAbandoned, expired.Status)

	// and a new battle can start immediately
	_, err = fixture.engine.Start(ctx, avatar.ID, 1)
	assert.NoError(t, err)
}

func TestSweepAbandoned(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	battle, err := fixture.engine.Start(ctx, avatar.ID, 1)
	require.NoError(t, err)

	stored, err := fixture.repository.GetBattle(ctx, battle.ID)
	require.NoError(t, err)
	stored.LastActionAt = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, fixture.repository.UpdateBattle(ctx, stored, stored.Version))

	swept, err := fixture.engine.SweepAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	abandoned, err := fixture.repository.GetBattle(ctx, battle.ID)
	require.NoError(t, err)
	assert.Equal(t, rpgtypes.BattleStatusAbandoned, abandoned.Status)

	// sweeping again finds nothing
	swept, err = fixture.engine.SweepAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestHandleExternalEventUnlocksGoalAchievements(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(t)
	avatar := fixture.createAvatar(t, rpgtypes.ClassWarrior)

	event := rpgtypes.Event{
		Type: rpgtypes.EventGoalCompleted,
		Payload: map[string]interface{}{
			"goal_id":     "goal-1",
			"streak_days": 7,
		},
	}

	unlocked, err := fixture.engine.HandleExternalEvent(ctx, avatar.ID, event)
	require.NoError(t, err)

	ids := make([]string, len(unlocked))
	for i, achievement := range unlocked {
		ids[i] = achievement.ID
	}
	assert.Contains(t, ids, "first-goal")
	assert.Contains(t, ids, "streak-iniciante")

	// replaying the same event unlocks nothing further
	unlocked, err = fixture.engine.HandleExternalEvent(ctx, avatar.ID, event)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	final, err := fixture.store.Get(ctx, avatar.ID)
	require.NoError(t, err)
	assert.Equal(t, 110, final.Experience)
	assert.Equal(t, 220, final.Coins)
}

func TestResolveTurnKillsBossOnSecondHit(t *testing.T) {
	avatar := rpgtypes.NewAvatar("avatar-1", "user-1", "Tester", rpgtypes.ClassWarrior)
	avatar.Strength = 50
	battle := &rpgtypes.Battle{
		Seed: 7,
		Enemy: rpgtypes.Enemy{
			Name:      "Debt Collector",
			Health:    60,
			MaxHealth: 60,
			Strength:  11,
			Defense:   10,
			Boss:      true,
		},
	}

	first := resolveTurn(avatar, battle, rpgtypes.BattleActionAttack)
	assert.Equal(t, 40, first.DamageDealt)
	assert.Equal(t, 20, first.EnemyHealth)

	battle.Turn = first.Turn
	battle.Enemy.Health = first.EnemyHealth
	avatar.Health = first.AvatarHealth

	second := resolveTurn(avatar, battle, rpgtypes.BattleActionAttack)
	assert.Equal(t, 40, second.DamageDealt)
	assert.Equal(t, 0, second.EnemyHealth)
	// the killing blow draws no retaliation
	assert.Equal(t, 0, second.DamageTaken)
}

func TestDamage(t *testing.T) {
	assert.Equal(t, 7, damage(10, 3))
	assert.Equal(t, minDamage, damage(2, 10))
	assert.Equal(t, minDamage, damage(5, 5))
}

func TestRetaliationIsDeterministic(t *testing.T) {
	first := retaliation(42, 3, 20, 5)
	second := retaliation(42, 3, 20, 5)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, minDamage)
}

func TestResolveTurnDefendHalvesRetaliation(t *testing.T) {
	avatar := rpgtypes.NewAvatar("avatar-1", "user-1", "Tester", rpgtypes.ClassWarrior)
	battle := &rpgtypes.Battle{
		Seed: 42,
		Enemy: rpgtypes.Enemy{
			Health:    1000,
			MaxHealth: 1000,
			Strength:  40,
			Defense:   0,
		},
	}

	attackTurn := resolveTurn(avatar, battle, rpgtypes.BattleActionAttack)
	defendTurn := resolveTurn(avatar, battle, rpgtypes.BattleActionDefend)

	// same seed and turn number, so the raw retaliation roll matches
	assert.Equal(t, 0, defendTurn.DamageDealt)
	assert.Equal(t, attackTurn.DamageTaken/2, defendTurn.DamageTaken)
	assert.Greater(t, attackTurn.DamageDealt, 0)
}
