package repositories

import (
	"context"
	"sync"
	"time"

	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// InMemoryRepository keeps avatars and battles in process memory.
// It backs tests and local development.
type InMemoryRepository struct {
	lock    sync.RWMutex
	avatars map[string]*rpgtypes.Avatar
	battles map[string]*rpgtypes.Battle
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		avatars: make(map[string]*rpgtypes.Avatar),
		battles: make(map[string]*rpgtypes.Battle),
	}
}

func (r *InMemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) CreateAvatar(ctx context.Context, avatar *rpgtypes.Avatar) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, existing := range r.avatars {
		if existing.UserID == avatar.UserID {
			return &ErrAlreadyExists{}
		}
	}
	r.avatars[avatar.ID] = avatar.Copy()
	return nil
}

func (r *InMemoryRepository) GetAvatar(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	avatar, ok := r.avatars[avatarID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return avatar.Copy(), nil
}

func (r *InMemoryRepository) GetAvatarByUser(ctx context.Context, userID string) (*rpgtypes.Avatar, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, avatar := range r.avatars {
		if avatar.UserID == userID {
			return avatar.Copy(), nil
		}
	}
	return nil, &ErrNotFound{}
}

func (r *InMemoryRepository) UpdateAvatar(ctx context.Context, avatar *rpgtypes.Avatar, expectedVersion int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	stored, ok := r.avatars[avatar.ID]
	if !ok {
		return &ErrNotFound{}
	}
	if stored.Version != expectedVersion {
		return &ErrVersionConflict{}
	}
	r.avatars[avatar.ID] = avatar.Copy()
	return nil
}

func (r *InMemoryRepository) CreateBattle(ctx context.Context, battle *rpgtypes.Battle) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, existing := range r.battles {
		if existing.AvatarID == battle.AvatarID && !existing.Status.Terminal() {
			return &ErrAlreadyExists{}
		}
	}
	r.battles[battle.ID] = battle.Copy()
	return nil
}

func (r *InMemoryRepository) GetBattle(ctx context.Context, battleID string) (*rpgtypes.Battle, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	battle, ok := r.battles[battleID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return battle.Copy(), nil
}

func (r *InMemoryRepository) GetActiveBattle(ctx context.Context, avatarID string) (*rpgtypes.Battle, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, battle := range r.battles {
		if battle.AvatarID == avatarID && !battle.Status.Terminal() {
			return battle.Copy(), nil
		}
	}
	return nil, &ErrNotFound{}
}

func (r *InMemoryRepository) UpdateBattle(ctx context.Context, battle *rpgtypes.Battle, expectedVersion int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	stored, ok := r.battles[battle.ID]
	if !ok {
		return &ErrNotFound{}
	}
	if stored.Version != expectedVersion {
		return &ErrVersionConflict{}
	}
	r.battles[battle.ID] = battle.Copy()
	return nil
}

func (r *InMemoryRepository) ListStaleBattles(ctx context.Context, cutoff time.Time) ([]*rpgtypes.Battle, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var stale []*rpgtypes.Battle
	for _, battle := range r.battles {
		if battle.Status.Terminal() {
			continue
		}
		if battle.LastActionAt < cutoff.UnixMilli() {
			stale = append(stale, battle.Copy())
		}
	}
	return stale, nil
}
