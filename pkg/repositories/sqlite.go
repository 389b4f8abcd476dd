package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateAvatar(ctx context.Context, avatar *rpgtypes.Avatar) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM avatars WHERE user_id = ?;`, avatar.UserID).Scan(&count); err != nil {
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
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, q,
		avatar.ID, avatar.UserID, avatar.Name, string(avatar.Class),
		avatar.Experience, avatar.Health, avatar.Mana, avatar.CurrentCity,
		avatar.Coins, avatar.BattlesWon, string(achievements), avatar.Version,
		avatar.CreatedAt, avatar.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert avatar: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) GetAvatar(ctx context.Context, avatarID string) (*rpgtypes.Avatar, error) {
	q := `
	SELECT id, user_id, name, class, experience, health, mana, current_city, coins, battles_won, achievements, version, created_at, updated_at
	FROM avatars WHERE id = ?;
	`
	return scanAvatar(r.db.QueryRowContext(ctx, q, avatarID))
}

func (r *SQLiteRepository) GetAvatarByUser(ctx context.Context, userID string) (*rpgtypes.Avatar, error) {
	q := `
	SELECT id, user_id, name, class, experience, health, mana, current_city, coins, battles_won, achievements, version, created_at, updated_at
	FROM avatars WHERE user_id = ?;
	`
	return scanAvatar(r.db.QueryRowContext(ctx, q, userID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAvatar(row rowScanner) (*rpgtypes.Avatar, error) {
	avatar := &rpgtypes.Avatar{}
	var class string
	var achievements string
	err := row.Scan(&avatar.ID, &avatar.UserID, &avatar.Name, &class,
		&avatar.Experience, &avatar.Health, &avatar.Mana, &avatar.CurrentCity,
		&avatar.Coins, &avatar.BattlesWon, &achievements, &avatar.Version,
		&avatar.CreatedAt, &avatar.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan avatar: %v", err)
	}
	avatar.Class = rpgtypes.Class(class)
	if err := json.Unmarshal([]byte(achievements), &avatar.Achievements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %v", err)
	}
	// derived stats are not stored
	avatar.Normalize()
	return avatar, nil
}

func (r *SQLiteRepository) UpdateAvatar(ctx context.Context, avatar *rpgtypes.Avatar, expectedVersion int64) error {
	achievements, err := json.Marshal(avatar.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %v", err)
	}

	q := `
	UPDATE avatars
	SET experience = ?, health = ?, mana = ?, current_city = ?, coins = ?, battles_won = ?, achievements = ?, version = ?, updated_at = ?
	WHERE id = ? AND version = ?;
	`
	result, err := r.db.ExecContext(ctx, q,
		avatar.Experience, avatar.Health, avatar.Mana, avatar.CurrentCity,
		avatar.Coins, avatar.BattlesWon, string(achievements), avatar.Version,
		avatar.UpdatedAt, avatar.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return r.avatarWriteConflict(ctx, avatar.ID)
	}

	return nil
}

// avatarWriteConflict distinguishes a missing avatar from a lost
// compare-and-swap after a conditional write touched no rows.
func (r *SQLiteRepository) avatarWriteConflict(ctx context.Context, avatarID string) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM avatars WHERE id = ?;`, avatarID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check avatar existence: %v", err)
	}
	if count == 0 {
		return &ErrNotFound{}
	}
	return &ErrVersionConflict{}
}

func (r *SQLiteRepository) CreateBattle(ctx context.Context, battle *rpgtypes.Battle) error {
	enemy, battleLog, err := marshalBattle(battle)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO battles (id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, q,
		battle.ID, battle.AvatarID, battle.CityNumber, enemy, battle.Seed,
		battle.Turn, battleLog, string(battle.Status), battle.Version,
		battle.LastActionAt, battle.CreatedAt)
	if err != nil {
		// the partial unique index on active battles turns a racing
		// second start into a constraint violation
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return &ErrAlreadyExists{}
		}
		return fmt.Errorf("failed to insert battle: %v", err)
	}

	return nil
}

func marshalBattle(battle *rpgtypes.Battle) (string, string, error) {
	enemy, err := json.Marshal(battle.Enemy)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal enemy: %v", err)
	}
	battleLog, err := json.Marshal(battle.Log)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal battle log: %v", err)
	}
	return string(enemy), string(battleLog), nil
}

func (r *SQLiteRepository) GetBattle(ctx context.Context, battleID string) (*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE id = ?;
	`
	return scanBattle(r.db.QueryRowContext(ctx, q, battleID))
}

func (r *SQLiteRepository) GetActiveBattle(ctx context.Context, avatarID string) (*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE avatar_id = ? AND status = 'active';
	`
	return scanBattle(r.db.QueryRowContext(ctx, q, avatarID))
}

func scanBattle(row rowScanner) (*rpgtypes.Battle, error) {
	battle := &rpgtypes.Battle{}
	var enemy string
	var battleLog string
	var status string
	err := row.Scan(&battle.ID, &battle.AvatarID, &battle.CityNumber, &enemy,
		&battle.Seed, &battle.Turn, &battleLog, &status, &battle.Version,
		&battle.LastActionAt, &battle.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan battle: %v", err)
	}
	battle.Status = rpgtypes.BattleStatus(status)
	if err := json.Unmarshal([]byte(enemy), &battle.Enemy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enemy: %v", err)
	}
	if err := json.Unmarshal([]byte(battleLog), &battle.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal battle log: %v", err)
	}
	return battle, nil
}

func (r *SQLiteRepository) UpdateBattle(ctx context.Context, battle *rpgtypes.Battle, expectedVersion int64) error {
	enemy, battleLog, err := marshalBattle(battle)
	if err != nil {
		return err
	}

	q := `
	UPDATE battles
	SET enemy = ?, turn = ?, log = ?, status = ?, version = ?, last_action_at = ?
	WHERE id = ? AND version = ?;
	`
	result, err := r.db.ExecContext(ctx, q, enemy, battle.Turn, battleLog,
		string(battle.Status), battle.Version, battle.LastActionAt,
		battle.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update battle: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return r.battleWriteConflict(ctx, battle.ID)
	}

	return nil
}

// battleWriteConflict distinguishes a missing battle from a lost
// compare-and-swap after a conditional write touched no rows.
func (r *SQLiteRepository) battleWriteConflict(ctx context.Context, battleID string) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM battles WHERE id = ?;`, battleID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check battle existence: %v", err)
	}
	if count == 0 {
		return &ErrNotFound{}
	}
	return &ErrVersionConflict{}
}

func (r *SQLiteRepository) ListStaleBattles(ctx context.Context, cutoff time.Time) ([]*rpgtypes.Battle, error) {
	q := `
	SELECT id, avatar_id, city_number, enemy, seed, turn, log, status, version, last_action_at, created_at
	FROM battles WHERE status = 'active' AND last_action_at < ?;
	`
	rows, err := r.db.QueryContext(ctx, q, cutoff.UnixMilli())
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
