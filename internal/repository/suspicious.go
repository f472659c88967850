package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"discord-rep-bot/internal/model"
)

// SuspiciousRepository handles flagged reciprocal-exchange records.
type SuspiciousRepository struct {
	pool *pgxpool.Pool
}

// NewSuspiciousRepository creates a new SuspiciousRepository instance.
func NewSuspiciousRepository(pool *pgxpool.Pool) *SuspiciousRepository {
	return &SuspiciousRepository{pool: pool}
}

// LoggedSince reports whether a record for the unordered user pair was
// logged at or after the given time. Drives the de-duplication window.
func (r *SuspiciousRepository) LoggedSince(ctx context.Context, guildID, userA, userB string, since time.Time) (bool, error) {
	a, b := model.PairKey(userA, userB)

	const query = `
		SELECT EXISTS(
			SELECT 1 FROM rep_suspicious
			WHERE guild_id = $1 AND user_a = $2 AND user_b = $3 AND logged_at >= $4
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, guildID, a, b, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check suspicious log: %w", err)
	}

	return exists, nil
}

// Create logs a new suspicious-pattern record for the unordered pair.
// countAToB and countBToA must be given relative to the caller's (userA,
// userB) order; they are swapped along with the pair normalization.
func (r *SuspiciousRepository) Create(ctx context.Context, guildID, userA, userB string, countAToB, countBToA int64) (*model.SuspiciousPattern, error) {
	a, b := model.PairKey(userA, userB)
	if a != userA {
		countAToB, countBToA = countBToA, countAToB
	}

	const query = `
		INSERT INTO rep_suspicious (guild_id, user_a, user_b, count_a_to_b, count_b_to_a, reviewed, logged_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		RETURNING id, guild_id, user_a, user_b, count_a_to_b, count_b_to_a, reviewed, logged_at, reviewed_at
	`

	var sp model.SuspiciousPattern
	err := r.pool.QueryRow(ctx, query, guildID, a, b, countAToB, countBToA).Scan(
		&sp.ID,
		&sp.GuildID,
		&sp.UserA,
		&sp.UserB,
		&sp.CountAToB,
		&sp.CountBToA,
		&sp.Reviewed,
		&sp.LoggedAt,
		&sp.ReviewedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create suspicious record: %w", err)
	}

	return &sp, nil
}

// MarkReviewed flags a record as reviewed by a moderator.
// Returns true if the record existed and was not yet reviewed.
func (r *SuspiciousRepository) MarkReviewed(ctx context.Context, guildID string, id int64) (bool, error) {
	const query = `
		UPDATE rep_suspicious
		SET reviewed = TRUE, reviewed_at = NOW()
		WHERE guild_id = $1 AND id = $2 AND reviewed = FALSE
	`

	tag, err := r.pool.Exec(ctx, query, guildID, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark suspicious record reviewed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByGuild retrieves a guild's suspicious records, newest first.
// When unreviewedOnly is set, already-reviewed records are skipped.
func (r *SuspiciousRepository) ListByGuild(ctx context.Context, guildID string, unreviewedOnly bool, limit int) ([]*model.SuspiciousPattern, error) {
	const query = `
		SELECT id, guild_id, user_a, user_b, count_a_to_b, count_b_to_a, reviewed, logged_at, reviewed_at
		FROM rep_suspicious
		WHERE guild_id = $1 AND (NOT $2 OR reviewed = FALSE)
		ORDER BY logged_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, guildID, unreviewedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious records: %w", err)
	}
	defer rows.Close()

	var records []*model.SuspiciousPattern
	for rows.Next() {
		var sp model.SuspiciousPattern
		err := rows.Scan(
			&sp.ID,
			&sp.GuildID,
			&sp.UserA,
			&sp.UserB,
			&sp.CountAToB,
			&sp.CountBToA,
			&sp.Reviewed,
			&sp.LoggedAt,
			&sp.ReviewedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspicious record: %w", err)
		}
		records = append(records, &sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suspicious records: %w", err)
	}

	return records, nil
}

// TrimToLast evicts the oldest records of a guild beyond the retention cap.
// Returns the number of evicted rows.
func (r *SuspiciousRepository) TrimToLast(ctx context.Context, guildID string, keep int) (int64, error) {
	const query = `
		DELETE FROM rep_suspicious
		WHERE guild_id = $1 AND id NOT IN (
			SELECT id FROM rep_suspicious
			WHERE guild_id = $1
			ORDER BY id DESC
			LIMIT $2
		)
	`

	tag, err := r.pool.Exec(ctx, query, guildID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim suspicious records: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GuildIDs returns the distinct guilds present in the suspicious table.
func (r *SuspiciousRepository) GuildIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT guild_id FROM rep_suspicious`

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
