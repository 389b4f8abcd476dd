package avatars

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerquest/ledgerquest/pkg/cache"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// MutationFn transforms an avatar in place. It runs against a private
// copy of the stored state; the store persists the result.
type MutationFn func(avatar *rpgtypes.Avatar) error

// Store is the only sanctioned way to read and mutate avatars. It
// fronts the repository with a read-through cache and centralizes the
// avatar invariants: health and mana clamping, experience monotonicity,
// and level recomputation.
type Store struct {
	repository   repositories.Repository
	cache        cache.Cache
	avatarTTL    time.Duration
	storeTimeout time.Duration
}

type NewStoreOptions struct {
	Repository repositories.Repository
	Cache      cache.Cache
	// AvatarTTL bounds staleness of cached avatar snapshots.
	AvatarTTL time.Duration
	// StoreTimeout is the request-scoped timeout applied to every
	// repository call.
	StoreTimeout time.Duration
}

func NewStore(opts NewStoreOptions) *Store {
	return &Store{
		repository:   opts.Repository,
		cache:        opts.Cache,
		avatarTTL:    opts.AvatarTTL,
		storeTimeout: opts.StoreTimeout,
	}
}

func avatarCacheKey(avatarID string) string {
	return fmt.Sprintf("avatar:%s", avatarID)
}

func userCacheKey(userID string) string {
	return fmt.Sprintf("user-avatar:%s", userID)
}

// Get returns an avatar by id, serving from the cache when possible.
// Cache failures of any kind degrade to a repository read.
func (s *Store) Get(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error) {
	key := avatarCacheKey(avatarID)
	if data, err := s.cache.Get(ctx, key); err == nil {
		avatar := &rpgtypes.Avatar{}
		if err := cache.DecodeSnapshot(data, avatar); err == nil {
			return avatar, nil
		}
		log.Debug("Failed to decode cached avatar %s, falling back to store", avatarID)
	} else if !cache.IsMiss(err) {
		log.Warn("Avatar cache read failed: %v", err)
	}

	avatar, err := s.loadAvatar(ctx, avatarID)
	if err != nil {
		return nil, err
	}

	s.fillCache(ctx, key, avatar)
	return avatar, nil
}

// GetByUser returns the avatar owned by a user. Ownership never
// changes, so the user-to-avatar mapping is cached separately and the
// avatar itself is served through Get. Cache failures of any kind
// degrade to a repository read.
func (s *Store) GetByUser(ctx context.Context, userID string) (*rpgtypes.Avatar, error) {
	key := userCacheKey(userID)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var avatarID string
		if err := cache.DecodeSnapshot(data, &avatarID); err == nil {
			return s.Get(ctx, avatarID)
		}
		log.Debug("Failed to decode cached avatar mapping for user %s, falling back to store", userID)
	} else if !cache.IsMiss(err) {
		log.Warn("Avatar cache read failed: %v", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	avatar, err := s.repository.GetAvatarByUser(readCtx, userID)
	if err != nil {
		return nil, err
	}

	if encoded, err := cache.EncodeSnapshot(avatar.ID); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.avatarTTL); err != nil {
			log.Debug("Failed to cache avatar mapping for user %s: %v", userID, err)
		}
	}
	s.fillCache(ctx, avatarCacheKey(avatar.ID), avatar)
	return avatar, nil
}

// Create persists a new level 1 avatar for a user. It returns
// ErrAlreadyExists if the user already owns one.
func (s *Store) Create(ctx context.Context, userID string, class rpgtypes.Class, name string) (*rpgtypes.Avatar, error) {
	now := time.Now().UnixMilli()
	avatar := rpgtypes.NewAvatar(uuid.NewString(), userID, name, class)
	avatar.CreatedAt = now
	avatar.UpdatedAt = now

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repository.CreateAvatar(ctx, avatar); err != nil {
		return nil, err
	}
	return avatar, nil
}

// ApplyMutation loads the current avatar, verifies expectedVersion
// against the stored version, applies the mutation, enforces the avatar
// invariants, and persists the result with version+1. The cache entry
// is invalidated strictly after the write commits, so a reader can
// never observe a cache entry newer than the store.
func (s *Store) ApplyMutation(ctx context.Context, avatarID string, expectedVersion int64, fn MutationFn) (*rpgtypes.Avatar, error) {
	avatar, err := s.loadAvatar(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	if avatar.Version != expectedVersion {
		// the caller's snapshot was stale; drop any cached copy so a
		// retry reads fresh state instead of conflicting forever
		if err := s.cache.Invalidate(ctx, avatarCacheKey(avatarID)); err != nil {
			log.Warn("Failed to invalidate avatar cache for %s: %v", avatarID, err)
		}
		return nil, &repositories.ErrVersionConflict{}
	}

	previousExperience := avatar.Experience
	if err := fn(avatar); err != nil {
		return nil, err
	}
	if avatar.Experience < previousExperience {
		return nil, fmt.Errorf("experience cannot decrease: %d -> %d", previousExperience, avatar.Experience)
	}
	avatar.Normalize()
	avatar.Version = expectedVersion + 1
	avatar.UpdatedAt = time.Now().UnixMilli()

	writeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repository.UpdateAvatar(writeCtx, avatar, expectedVersion); err != nil {
		if repositories.IsVersionConflict(err) {
			if cacheErr := s.cache.Invalidate(ctx, avatarCacheKey(avatarID)); cacheErr != nil {
				log.Warn("Failed to invalidate avatar cache for %s: %v", avatarID, cacheErr)
			}
		}
		return nil, err
	}

	// invalidate-after-write: a racing reader sees at most one stale
	// snapshot, never a write that did not happen
	if err := s.cache.Invalidate(ctx, avatarCacheKey(avatarID)); err != nil {
		log.Warn("Failed to invalidate avatar cache for %s: %v", avatarID, err)
	}

	return avatar, nil
}

func (s *Store) loadAvatar(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.repository.GetAvatar(ctx, avatarID)
}

func (s *Store) fillCache(ctx context.Context, key string, avatar *rpgtypes.Avatar) {
	encoded, err := cache.EncodeSnapshot(avatar)
	if err != nil {
		log.Warn("Failed to encode avatar snapshot: %v", err)
		return
	}
	if err := s.cache.Set(ctx, key, encoded, s.avatarTTL); err != nil {
		log.Debug("Failed to cache avatar %s: %v", avatar.ID, err)
	}
}
