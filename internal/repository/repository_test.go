// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"discord-rep-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = applySchema(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applySchema creates the reputation tables.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rep_accounts (
			guild_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
			last_received_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rep_transfers (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			channel_id VARCHAR(32) NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL DEFAULT 'give',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS rep_cooldowns (
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (guild_id, giver_id, receiver_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rep_role_rewards (
			guild_id VARCHAR(32) NOT NULL,
			role_id VARCHAR(32) NOT NULL,
			threshold BIGINT NOT NULL CHECK (threshold >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rep_suspicious (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			user_a VARCHAR(32) NOT NULL,
			user_b VARCHAR(32) NOT NULL,
			count_a_to_b BIGINT NOT NULL DEFAULT 0,
			count_b_to_a BIGINT NOT NULL DEFAULT 0,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func TestAccountIncrementAndReset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewAccountRepository(pool)

	// Lazy creation yields a zero-point account.
	acc, err := repo.GetOrCreate(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Points)
	assert.Nil(t, acc.LastReceivedAt)

	// Each give adds exactly one point and stamps last_received_at.
	acc, err = repo.IncrementPoints(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Points)
	assert.NotNil(t, acc.LastReceivedAt)

	acc, err = repo.IncrementPoints(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Points)

	// Increment also lazily creates accounts.
	acc, err = repo.IncrementPoints(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Points)

	// Reset clamps to exactly zero and keeps the row.
	acc, err = repo.ResetPoints(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Points)

	acc, err = repo.Get(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Points)

	// Missing accounts surface the sentinel error.
	_, err = repo.Get(ctx, "g1", "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLeaderboardAndRank(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewAccountRepository(pool)

	give := func(userID string, n int) {
		for i := 0; i < n; i++ {
			_, err := repo.IncrementPoints(ctx, "g1", userID)
			require.NoError(t, err)
		}
	}

	give("alice", 3)
	give("bob", 5)
	give("carol", 3) // Same points as alice but created later
	_, err := repo.GetOrCreate(ctx, "g1", "dave") // Zero points, unranked

	require.NoError(t, err)

	entries, err := repo.GetLeaderboard(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Ties break toward the earlier-created account.
	assert.Equal(t, "bob", entries[0].UserID)
	assert.Equal(t, "alice", entries[1].UserID)
	assert.Equal(t, "carol", entries[2].UserID)
	assert.Equal(t, int64(1), entries[0].Rank)
	assert.Equal(t, int64(3), entries[2].Rank)

	rank, err := repo.GetRank(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	rank, err = repo.GetRank(ctx, "g1", "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rank)

	// Zero points and missing accounts are unranked.
	rank, err = repo.GetRank(ctx, "g1", "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rank)

	rank, err = repo.GetRank(ctx, "g1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rank)

	// Guilds are isolated from each other.
	entries, err = repo.GetLeaderboard(ctx, "g2", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ranked, total, err := repo.GetGuildTotals(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), ranked)
	assert.Equal(t, int64(11), total)
}

func TestCooldownAcquireIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewCooldownRepository(pool)

	future := time.Now().Add(7 * 24 * time.Hour)

	// First acquire wins.
	acquired, err := repo.Acquire(ctx, "g1", "alice", "bob", future)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second acquire against the live cooldown loses.
	acquired, err = repo.Acquire(ctx, "g1", "alice", "bob", future)
	require.NoError(t, err)
	assert.False(t, acquired)

	cd, err := repo.GetActive(ctx, "g1", "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, cd)
	assert.WithinDuration(t, future, cd.ExpiresAt, time.Second)

	// The cooldown is per-receiver: a different receiver is free.
	acquired, err = repo.Acquire(ctx, "g1", "alice", "carol", future)
	require.NoError(t, err)
	assert.True(t, acquired)

	// An expired cooldown behaves as absent and can be re-acquired.
	acquired, err = repo.Acquire(ctx, "g1", "dave", "bob", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, acquired)

	cd, err = repo.GetActive(ctx, "g1", "dave", "bob")
	require.NoError(t, err)
	assert.Nil(t, cd)

	acquired, err = repo.Acquire(ctx, "g1", "dave", "bob", future)
	require.NoError(t, err)
	assert.True(t, acquired)

	// PurgeExpired only removes expired rows.
	acquired, err = repo.Acquire(ctx, "g1", "erin", "bob", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, acquired)

	purged, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	cd, err = repo.GetActive(ctx, "g1", "alice", "bob")
	require.NoError(t, err)
	assert.NotNil(t, cd)
}

func TestTransferWindowsAndRetention(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewTransferRepository(pool)

	now := time.Now()

	// Two recent gives by alice, one stale one outside the 24h window.
	// Inserted oldest first so log ids follow time.
	_, err := repo.CreateWithTime(ctx, "g1", "alice", "bob", "Old favour", "c1", model.TransferTypeGive, now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateWithTime(ctx, "g1", "alice", "carol", "Great code review", "c1", model.TransferTypeGive, now.Add(-20*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateWithTime(ctx, "g1", "alice", "bob", "Helped with testing", "c1", model.TransferTypeGive, now.Add(-2*time.Hour))
	require.NoError(t, err)

	count, err := repo.CountByGiverSince(ctx, "g1", "alice", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Reset records never count toward the give windows.
	_, err = repo.CreateWithTime(ctx, "g1", "mod", "bob", "Reputation reset by moderator mod", "c1", model.TransferTypeReset, now)
	require.NoError(t, err)

	count, err = repo.CountSince(ctx, "g1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountDirectional(ctx, "g1", "alice", "bob", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountDirectional(ctx, "g1", "bob", "alice", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// History returns newest first, reset records included.
	history, err := repo.GetReceivedByUser(ctx, "g1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.TransferTypeReset, history[0].Type)
	assert.Equal(t, "Helped with testing", history[1].Reason)
	assert.Equal(t, "Old favour", history[2].Reason)

	// Retention evicts the oldest entries first.
	evicted, err := repo.TrimToLast(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)

	history, err = repo.GetReceivedByUser(ctx, "g1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.TransferTypeReset, history[0].Type)
	assert.Equal(t, "Helped with testing", history[1].Reason)

	guilds, err := repo.GuildIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, guilds)
}

func TestSuspiciousDedupAndReview(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewSuspiciousRepository(pool)

	// Pair is normalized regardless of argument order; the directional
	// counts travel with the swap.
	sp, err := repo.Create(ctx, "g1", "zed", "alice", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", sp.UserA)
	assert.Equal(t, "zed", sp.UserB)
	assert.Equal(t, int64(1), sp.CountAToB)
	assert.Equal(t, int64(2), sp.CountBToA)
	assert.False(t, sp.Reviewed)

	// Dedup sees the record regardless of argument order.
	logged, err := repo.LoggedSince(ctx, "g1", "alice", "zed", time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, logged)

	logged, err = repo.LoggedSince(ctx, "g1", "zed", "alice", time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, logged)

	// A different pair is not deduplicated.
	logged, err = repo.LoggedSince(ctx, "g1", "alice", "bob", time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, logged)

	// Review transitions exactly once.
	marked, err := repo.MarkReviewed(ctx, "g1", sp.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = repo.MarkReviewed(ctx, "g1", sp.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	records, err := repo.ListByGuild(ctx, "g1", true, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = repo.ListByGuild(ctx, "g1", false, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Reviewed)
	assert.NotNil(t, records[0].ReviewedAt)

	// Retention keeps the newest records.
	for i := 0; i < 3; i++ {
		_, err = repo.Create(ctx, "g1", "bob", "carol", 2, 2)
		require.NoError(t, err)
	}
	evicted, err := repo.TrimToLast(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)

	records, err = repo.ListByGuild(ctx, "g1", false, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRoleRewardUpsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewRoleRewardRepository(pool)

	_, err := repo.Upsert(ctx, "g1", "gold", 25)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "g1", "bronze", 5)
	require.NoError(t, err)

	// Upsert on the same role updates the threshold in place.
	reward, err := repo.Upsert(ctx, "g1", "gold", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), reward.Threshold)

	rewards, err := repo.ListByGuild(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "bronze", rewards[0].RoleID)
	assert.Equal(t, "gold", rewards[1].RoleID)

	removed, err := repo.Delete(ctx, "g1", "bronze")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, "g1", "bronze")
	require.NoError(t, err)
	assert.False(t, removed)
}
