package repositories

import (
	"context"
	"time"

	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// Repository is the persistence contract for avatars and battles.
// Writes are atomic: on error no partial mutation is visible.
type Repository interface {
	Close(ctx context.Context) error

	// CreateAvatar persists a new avatar. It returns ErrAlreadyExists
	// if the owning user already has one.
	CreateAvatar(ctx context.Context, avatar *rpgtypes.Avatar) error
	GetAvatar(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error)
	GetAvatarByUser(ctx context.Context, userID string) (*rpgtypes.Avatar, error)
	// UpdateAvatar persists an avatar with a compare-and-swap on its
	// version: the write succeeds only if the stored version equals
	// expectedVersion, and stores avatar.Version as-is (the caller has
	// already incremented it). It returns ErrVersionConflict otherwise.
	UpdateAvatar(ctx context.Context, avatar *rpgtypes.Avatar, expectedVersion int64) error

	// CreateBattle persists a new battle. It returns ErrAlreadyExists
	// if the avatar already has an active battle; the single-active
	// rule is enforced here, not by callers, so racing starts cannot
	// both slip through.
	CreateBattle(ctx context.Context, battle *rpgtypes.Battle) error
	GetBattle(ctx context.Context, battleID string) (*rpgtypes.Battle, error)
	// GetActiveBattle returns the avatar's non-terminal battle, or
	// ErrNotFound if there is none.
	GetActiveBattle(ctx context.Context, avatarID string) (*rpgtypes.Battle, error)
	// UpdateBattle persists a battle with the same compare-and-swap
	// contract as UpdateAvatar: the write succeeds only if the stored
	// version equals expectedVersion, and stores battle.Version as-is.
	// It returns ErrVersionConflict otherwise.
	UpdateBattle(ctx context.Context, battle *rpgtypes.Battle, expectedVersion int64) error
	// ListStaleBattles returns active battles with no action since the
	// cutoff, for the abandonment sweeper.
	ListStaleBattles(ctx context.Context, cutoff time.Time) ([]*rpgtypes.Battle, error)
}
