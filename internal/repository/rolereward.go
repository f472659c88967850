package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"discord-rep-bot/internal/model"
)

// RoleRewardRepository handles the per-guild threshold-to-role table.
type RoleRewardRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRewardRepository creates a new RoleRewardRepository instance.
func NewRoleRewardRepository(pool *pgxpool.Pool) *RoleRewardRepository {
	return &RoleRewardRepository{pool: pool}
}

// Upsert creates or updates the reward entry for a (guild, role) pair.
func (r *RoleRewardRepository) Upsert(ctx context.Context, guildID, roleID string, threshold int64) (*model.RoleReward, error) {
	const query = `
		INSERT INTO rep_role_rewards (guild_id, role_id, threshold, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id, role_id) DO UPDATE
		SET threshold = EXCLUDED.threshold
		RETURNING guild_id, role_id, threshold, created_at
	`

	var reward model.RoleReward
	err := r.pool.QueryRow(ctx, query, guildID, roleID, threshold).Scan(
		&reward.GuildID,
		&reward.RoleID,
		&reward.Threshold,
		&reward.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert role reward: %w", err)
	}

	return &reward, nil
}

// Delete removes the reward entry for a (guild, role) pair.
// Returns true if an entry was removed.
func (r *RoleRewardRepository) Delete(ctx context.Context, guildID, roleID string) (bool, error) {
	const query = `DELETE FROM rep_role_rewards WHERE guild_id = $1 AND role_id = $2`

	tag, err := r.pool.Exec(ctx, query, guildID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to delete role reward: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByGuild retrieves a guild's reward entries ordered by threshold
// ascending.
func (r *RoleRewardRepository) ListByGuild(ctx context.Context, guildID string) ([]*model.RoleReward, error) {
	const query = `
		SELECT guild_id, role_id, threshold, created_at
		FROM rep_role_rewards
		WHERE guild_id = $1
		ORDER BY threshold ASC, role_id ASC
	`

	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*model.RoleReward
	for rows.Next() {
		var reward model.RoleReward
		err := rows.Scan(
			&reward.GuildID,
			&reward.RoleID,
			&reward.Threshold,
			&reward.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role reward: %w", err)
		}
		rewards = append(rewards, &reward)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rewards: %w", err)
	}

	return rewards, nil
}
