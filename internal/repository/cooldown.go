package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discord-rep-bot/internal/model"
)

// CooldownRepository handles per-(guild, giver, receiver) cooldowns.
type CooldownRepository struct {
	pool *pgxpool.Pool
}

// NewCooldownRepository creates a new CooldownRepository instance.
func NewCooldownRepository(pool *pgxpool.Pool) *CooldownRepository {
	return &CooldownRepository{pool: pool}
}

// GetActive retrieves the active cooldown for the triple, if any.
// An expired row is deleted on the way and treated as absent.
func (r *CooldownRepository) GetActive(ctx context.Context, guildID, giverID, receiverID string) (*model.Cooldown, error) {
	const purge = `
		DELETE FROM rep_cooldowns
		WHERE guild_id = $1 AND giver_id = $2 AND receiver_id = $3 AND expires_at <= NOW()
	`
	if _, err := r.pool.Exec(ctx, purge, guildID, giverID, receiverID); err != nil {
		return nil, fmt.Errorf("failed to purge expired cooldown: %w", err)
	}

	const query = `
		SELECT guild_id, giver_id, receiver_id, expires_at
		FROM rep_cooldowns
		WHERE guild_id = $1 AND giver_id = $2 AND receiver_id = $3 AND expires_at > NOW()
	`

	var cd model.Cooldown
	err := r.pool.QueryRow(ctx, query, guildID, giverID, receiverID).Scan(
		&cd.GuildID,
		&cd.GiverID,
		&cd.ReceiverID,
		&cd.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cooldown: %w", err)
	}

	return &cd, nil
}

// Acquire sets the cooldown for the triple in a single conditional write.
// It succeeds only if no unexpired cooldown exists, so the eligibility
// check and the cooldown write cannot race between two concurrent gives.
// Returns true if the cooldown was acquired.
func (r *CooldownRepository) Acquire(ctx context.Context, guildID, giverID, receiverID string, expiresAt time.Time) (bool, error) {
	const query = `
		INSERT INTO rep_cooldowns (guild_id, giver_id, receiver_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, giver_id, receiver_id) DO UPDATE
		SET expires_at = EXCLUDED.expires_at
		WHERE rep_cooldowns.expires_at <= NOW()
	`

	tag, err := r.pool.Exec(ctx, query, guildID, giverID, receiverID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to acquire cooldown: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// PurgeExpired removes all expired cooldown rows.
// Returns the number of removed rows.
func (r *CooldownRepository) PurgeExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM rep_cooldowns WHERE expires_at <= NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cooldowns: %w", err)
	}

	return tag.RowsAffected(), nil
}
