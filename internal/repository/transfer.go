package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"discord-rep-bot/internal/model"
)

// TransferRepository handles the append-only reputation log.
type TransferRepository struct {
	pool *pgxpool.Pool
}

// NewTransferRepository creates a new TransferRepository instance.
func NewTransferRepository(pool *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{pool: pool}
}

// Create appends a transfer record to the log.
func (r *TransferRepository) Create(ctx context.Context, guildID, giverID, receiverID, reason, channelID, recordType string) (*model.Transfer, error) {
	const query = `
		INSERT INTO rep_transfers (guild_id, giver_id, receiver_id, reason, channel_id, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, guild_id, giver_id, receiver_id, reason, channel_id, type, created_at
	`

	var tr model.Transfer
	err := r.pool.QueryRow(ctx, query, guildID, giverID, receiverID, reason, channelID, recordType).Scan(
		&tr.ID,
		&tr.GuildID,
		&tr.GiverID,
		&tr.ReceiverID,
		&tr.Reason,
		&tr.ChannelID,
		&tr.Type,
		&tr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}

	return &tr, nil
}

// CreateWithTime appends a transfer record with a specific timestamp.
// Useful for testing and data migration.
func (r *TransferRepository) CreateWithTime(ctx context.Context, guildID, giverID, receiverID, reason, channelID, recordType string, createdAt time.Time) (*model.Transfer, error) {
	const query = `
		INSERT INTO rep_transfers (guild_id, giver_id, receiver_id, reason, channel_id, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, guild_id, giver_id, receiver_id, reason, channel_id, type, created_at
	`

	var tr model.Transfer
	err := r.pool.QueryRow(ctx, query, guildID, giverID, receiverID, reason, channelID, recordType, createdAt).Scan(
		&tr.ID,
		&tr.GuildID,
		&tr.GiverID,
		&tr.ReceiverID,
		&tr.Reason,
		&tr.ChannelID,
		&tr.Type,
		&tr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}

	return &tr, nil
}

// GetReceivedByUser retrieves transfers received by a user, newest first.
func (r *TransferRepository) GetReceivedByUser(ctx context.Context, guildID, userID string, limit int) ([]*model.Transfer, error) {
	const query = `
		SELECT id, guild_id, giver_id, receiver_id, reason, channel_id, type, created_at
		FROM rep_transfers
		WHERE guild_id = $1 AND receiver_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer history: %w", err)
	}
	defer rows.Close()

	var transfers []*model.Transfer
	for rows.Next() {
		var tr model.Transfer
		err := rows.Scan(
			&tr.ID,
			&tr.GuildID,
			&tr.GiverID,
			&tr.ReceiverID,
			&tr.Reason,
			&tr.ChannelID,
			&tr.Type,
			&tr.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, &tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}

	return transfers, nil
}

// CountByGiverSince counts give-type transfers made by one giver in a guild
// since the given time. Drives the rolling daily-limit check.
func (r *TransferRepository) CountByGiverSince(ctx context.Context, guildID, giverID string, since time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM rep_transfers
		WHERE guild_id = $1 AND giver_id = $2 AND type = $3 AND created_at >= $4
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, guildID, giverID, model.TransferTypeGive, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count giver transfers: %w", err)
	}

	return count, nil
}

// CountSince counts give-type transfers in a guild since the given time.
func (r *TransferRepository) CountSince(ctx context.Context, guildID string, since time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM rep_transfers
		WHERE guild_id = $1 AND type = $2 AND created_at >= $3
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, guildID, model.TransferTypeGive, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}

	return count, nil
}

// CountDirectional counts give-type transfers from one user to another
// since the given time. Used by reciprocal-pattern detection.
func (r *TransferRepository) CountDirectional(ctx context.Context, guildID, fromID, toID string, since time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM rep_transfers
		WHERE guild_id = $1 AND giver_id = $2 AND receiver_id = $3
		  AND type = $4 AND created_at >= $5
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, guildID, fromID, toID, model.TransferTypeGive, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count directional transfers: %w", err)
	}

	return count, nil
}

// TrimToLast evicts the oldest records of a guild beyond the retention cap.
// Eviction is FIFO by record id. Returns the number of evicted rows.
func (r *TransferRepository) TrimToLast(ctx context.Context, guildID string, keep int) (int64, error) {
	const query = `
		DELETE FROM rep_transfers
		WHERE guild_id = $1 AND id NOT IN (
			SELECT id FROM rep_transfers
			WHERE guild_id = $1
			ORDER BY id DESC
			LIMIT $2
		)
	`

	tag, err := r.pool.Exec(ctx, query, guildID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim transfer log: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GuildIDs returns the distinct guilds present in the transfer log.
// Used by the retention sweep.
func (r *TransferRepository) GuildIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT guild_id FROM rep_transfers`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guilds: %w", err)
	}

	return ids, nil
}
