// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discord-rep-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("reputation account not found")
)

// AccountRepository handles reputation account persistence.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Get retrieves an account by its (guild, user) composite key.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) Get(ctx context.Context, guildID, userID string) (*model.Account, error) {
	const query = `
		SELECT guild_id, user_id, points, last_received_at, created_at, updated_at
		FROM rep_accounts
		WHERE guild_id = $1 AND user_id = $2
	`

	var acc model.Account
	err := r.pool.QueryRow(ctx, query, guildID, userID).Scan(
		&acc.GuildID,
		&acc.UserID,
		&acc.Points,
		&acc.LastReceivedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}

// GetOrCreate retrieves an account, creating a zero-point one if absent.
// Accounts are created lazily on first access.
func (r *AccountRepository) GetOrCreate(ctx context.Context, guildID, userID string) (*model.Account, error) {
	const insert = `
		INSERT INTO rep_accounts (guild_id, user_id, points, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (guild_id, user_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, insert, guildID, userID); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return r.Get(ctx, guildID, userID)
}

// IncrementPoints adds exactly one point to the receiver's account and
// stamps last_received_at. The account is created if it does not exist.
// Returns the updated account.
func (r *AccountRepository) IncrementPoints(ctx context.Context, guildID, userID string) (*model.Account, error) {
	const query = `
		INSERT INTO rep_accounts (guild_id, user_id, points, last_received_at, created_at, updated_at)
		VALUES ($1, $2, 1, NOW(), NOW(), NOW())
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET points = rep_accounts.points + 1,
		    last_received_at = NOW(),
		    updated_at = NOW()
		RETURNING guild_id, user_id, points, last_received_at, created_at, updated_at
	`

	var acc model.Account
	err := r.pool.QueryRow(ctx, query, guildID, userID).Scan(
		&acc.GuildID,
		&acc.UserID,
		&acc.Points,
		&acc.LastReceivedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to increment points: %w", err)
	}

	return &acc, nil
}

// ResetPoints sets an account's points to exactly zero.
// Used only by the admin reset operation. The account row is kept.
func (r *AccountRepository) ResetPoints(ctx context.Context, guildID, userID string) (*model.Account, error) {
	const query = `
		UPDATE rep_accounts
		SET points = 0, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2
		RETURNING guild_id, user_id, points, last_received_at, created_at, updated_at
	`

	var acc model.Account
	err := r.pool.QueryRow(ctx, query, guildID, userID).Scan(
		&acc.GuildID,
		&acc.UserID,
		&acc.Points,
		&acc.LastReceivedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to reset points: %w", err)
	}

	return &acc, nil
}

// GetLeaderboard retrieves the top accounts with positive points.
// Ties are broken by earlier created_at, then by user_id, so the ordering
// is deterministic.
func (r *AccountRepository) GetLeaderboard(ctx context.Context, guildID string, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, points
		FROM rep_accounts
		WHERE guild_id = $1 AND points > 0
		ORDER BY points DESC, created_at ASC, user_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	rank := int64(0)
	for rows.Next() {
		var entry model.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.Points); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		rank++
		entry.Rank = rank
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

// GetRank returns the 1-based position of a user in the guild's descending
// points ordering, using the same tie-break as GetLeaderboard. Returns 0
// for accounts with zero points or accounts that do not exist.
func (r *AccountRepository) GetRank(ctx context.Context, guildID, userID string) (int64, error) {
	acc, err := r.Get(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if acc.Points <= 0 {
		return 0, nil
	}

	const query = `
		SELECT COUNT(*)
		FROM rep_accounts
		WHERE guild_id = $1 AND points > 0
		  AND (points > $2
		       OR (points = $2 AND created_at < $3)
		       OR (points = $2 AND created_at = $3 AND user_id < $4))
	`

	var ahead int64
	err = r.pool.QueryRow(ctx, query, guildID, acc.Points, acc.CreatedAt, userID).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}

	return ahead + 1, nil
}

// GetGuildTotals returns the count of ranked accounts and the sum of all
// points for a guild.
func (r *AccountRepository) GetGuildTotals(ctx context.Context, guildID string) (ranked int64, total int64, err error) {
	const query = `
		SELECT COUNT(*) FILTER (WHERE points > 0), COALESCE(SUM(points), 0)
		FROM rep_accounts
		WHERE guild_id = $1
	`

	err = r.pool.QueryRow(ctx, query, guildID).Scan(&ranked, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get guild totals: %w", err)
	}

	return ranked, total, nil
}
