package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository backed by a
// connection pool. The caller is responsible for calling Close() on the
// repository. The schema is expected to exist (see migrations/postgres).
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %v", err)
	}

	var username string
	var database string
	if err := pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		return nil, fmt.Errorf("failed to query database: %v", err)
	}
	log.Info("Connected to database %s as %s", database, username)

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) CreateAvatar(ctx context.Context, avatar *rpgtypes.Avatar) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM avatars WHERE user_id = $1`, avatar.UserID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count avatars: %v", err)
	}
	if count > 0 {
		return &ErrAlreadyExists{}
	}

	achievements, err := json.Marshal(avatar.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %v", err)
	}

	q := `
	INSERT INTO avatars (id, user_id, name, class, experience, health, mana, current_city, coins, battles_won, achievements, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err = r.pool.Exec(ctx, q,
		avatar.ID, avatar.UserID, avatar.Name, string(avatar.Class),
		avatar.Experience, avatar.Health, avatar.Mana, avatar.CurrentCity,
		avatar.Coins, avatar.BattlesWon, string(achievements), avatar.Version,
		avatar.CreatedAt, avatar.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert avatar: %v", err)
	}

	return nil
}

func (r *PostgresRepository) GetAvatar(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error) {
	q := `
	SELECT id, user_id, name, class, experience, health, mana, current_city, coins, battles_won, achievements, version, created_at, updated_at
	FROM avatars WHERE id = $1;
	`
	return r.scanAvatarRow(r.pool.QueryRow(ctx, q, avatarID))
}

func (r *PostgresRepository) GetAvatarByUser(ctx context.Context, userID string) (*rpgtypes.Avatar, error) {
	q := `
	SELECT id, user_id, name, class, experience, health, mana, current_city, coins, battles_won, achievements, version, created_at, updated_at
	FROM avatars WHERE user_id = $1;
	`
	return r.scanAvatarRow(r.pool.QueryRow(ctx, q, userID))
}

func (r *PostgresRepository) scanAvatarRow(row pgx.Row) (*rpgtypes.Avatar, error) {
	avatar := &rpgtypes.Avatar{}
	var class string
	var achievements string
	err := row.Scan(&avatar.ID, &avatar.UserID, &avatar.Name, &class,
		&avatar.Experience, &avatar.Health, &avatar.Mana, &avatar.CurrentCity,
		&avatar.Coins, &avatar.BattlesWon, &achievements, &avatar.Version,
		&avatar.CreatedAt, &avatar.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan avatar: %v", err)
	}
	avatar.Class = rpgtypes.Class(class)
	if err := json.Unmarshal([]byte(achievements), &avatar.Achievements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %v", err)
	}
	avatar.Normalize()
	return avatar, nil
}

func (r *PostgresRepository) UpdateAvatar(ctx context.Context, avatar *rpgtypes.Avatar, expectedVersion int64) error {
	achievements, err := json.Marshal(avatar.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %v", err)
	}

	q := `
	UPDATE avatars
	SET experience = $1, health = $2, mana = $3, current_city = $4, coins = $5, battles_won = $6, achievements = $7, version = $8, updated_at = $9
	WHERE id = $10 AND version = $11;
	`
	tag, err := r.pool.Exec(ctx, q,
		avatar.Experience, avatar.Health, avatar.Mana, avatar.CurrentCity,
		avatar.Coins, avatar.BattlesWon, string(achievements), avatar.Version,
		avatar.UpdatedAt, avatar.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %v", err)
	}

	if tag.RowsAffected() == 0 {
		var count int
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM avatars WHERE id = $1`, avatar.ID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check avatar existence: %v", err)
		}
		if count == 0 {
			return &ErrNotFound{}
		}
		return &ErrVersionConflict{}
	}

	return nil
}

func (r *PostgresRepository) CreateBattle(ctx context.Context, battle *rpgtypes.Battle) error {
	enemy, battleLog, err := marshalBattle(battle)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO battles (id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = r.pool.Exec(ctx, q,
		battle.ID, battle.AvatarID, battle.CityNumber, enemy, battle.Seed,
		battle.Turn, battleLog, string(battle.Status), battle.Version,
		battle.LastActionAt, battle.CreatedAt)
	if err != nil {
		// the partial unique index on active battles turns a racing
		// second start into a constraint violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &ErrAlreadyExists{}
		}
		return fmt.Errorf("failed to insert battle: %v", err)
	}

	return nil
}

func (r *PostgresRepository) GetBattle(ctx context.Context, battleID string) (*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE id = $1;
	`
	return scanBattle(r.pool.QueryRow(ctx, q, battleID))
}

func (r *PostgresRepository) GetActiveBattle(ctx context.Context, avatarID string) (*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE avatar_id = $1 AND status = 'active';
	`
	return scanBattle(r.pool.QueryRow(ctx, q, avatarID))
}

func (r *PostgresRepository) UpdateBattle(ctx context.Context, battle *rpgtypes.Battle, expectedVersion int64) error {
	enemy, battleLog, err := marshalBattle(battle)
	if err != nil {
		return err
	}

	q := `
	UPDATE battles
	SET enemy = $1, turn = $2, log = $3, status = $4, version = $5, last_action_at = $6
	WHERE id = $7 AND version = $8;
	`
	tag, err := r.pool.Exec(ctx, q, enemy, battle.Turn, battleLog,
		string(battle.Status), battle.Version, battle.LastActionAt,
		battle.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update battle: %v", err)
	}

	if tag.RowsAffected() == 0 {
		var count int
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM battles WHERE id = $1`, battle.ID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check battle existence: %v", err)
		}
		if count == 0 {
			return &ErrNotFound{}
		}
		return &ErrVersionConflict{}
	}

	return nil
}

func (r *PostgresRepository) ListStaleBattles(ctx context.Context, cutoff time.Time) ([]*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE status = 'active' AND last_action_at < $1;
	`
	rows, err := r.pool.Query(ctx, q, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale battles: %v", err)
	}
	defer rows.Close()

	var battles []*rpgtypes.Battle
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		battles = append(battles, battle)
	}

	return battles, rows.Err()
}
